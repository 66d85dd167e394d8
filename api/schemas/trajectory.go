package schemas

// ActionType is the category of a recorded trajectory entry.
type ActionType string

const (
	ActionClick      ActionType = "click"
	ActionKeypress   ActionType = "keypress"
	ActionScroll     ActionType = "scroll"
	ActionTouch      ActionType = "touch"
	ActionNavigation ActionType = "navigation"
)

// TrajectoryEntry is one normalized action record. Entries are immutable once
// appended; their order reconstructs the session for the evaluator.
type TrajectoryEntry struct {
	TimestampMs int64          `json:"timestamp"`
	Type        ActionType     `json:"type"`
	Data        map[string]any `json:"data"`
}

// TrajectoryKey is the reserved params key under which the trajectory is
// submitted to the page's evaluation entry point.
const TrajectoryKey = "trajectory"
