// Package evaluation implements the evaluation lifecycle: Idle until a cycle is
// started, Active until it is finished, Idle again whatever the outcome.
package evaluation

import (
	"sync"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

// State is a lifecycle state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Machine holds the per-instance evaluation session. The zero value is Idle
// with no result.
type Machine struct {
	mu         sync.Mutex
	state      State
	lastResult schemas.EvaluationResult
}

// New returns an Idle machine.
func New() *Machine { return &Machine{} }

// Begin moves Idle to Active. ready runs first and may veto the transition with
// NotReady; onEnter runs after the state has changed and is where the caller
// resets its trajectory. A rejected Begin changes nothing.
func (m *Machine) Begin(ready func() error, onEnter func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Active {
		return schemas.NewCommandError("", schemas.KindAlreadyActive, "an evaluation is already in progress")
	}
	if ready != nil {
		if err := ready(); err != nil {
			return &schemas.CommandError{Kind: schemas.KindNotReady, Message: "page is not ready", Err: err}
		}
	}
	m.state = Active
	if onEnter != nil {
		onEnter()
	}
	return nil
}

// Finish moves Active to Idle unconditionally and runs submit in between. The
// returned result is stored as the last result only when submit succeeds.
func (m *Machine) Finish(submit func() (schemas.EvaluationResult, error)) (schemas.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Active {
		return nil, schemas.NewCommandError("", schemas.KindNotActive, "no evaluation in progress")
	}
	defer func() { m.state = Idle }()

	res, err := submit()
	if err != nil {
		return nil, err
	}
	m.lastResult = cloneResult(res)
	return cloneResult(res), nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether an evaluation cycle is in progress.
func (m *Machine) Active() bool { return m.State() == Active }

// LastResult returns a copy of the most recent successful result, or nil.
func (m *Machine) LastResult() schemas.EvaluationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneResult(m.lastResult)
}

// Reset forces the machine back to Idle, keeping the last result. It is used
// when the host goes away mid-cycle.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
}

func cloneResult(r schemas.EvaluationResult) schemas.EvaluationResult {
	if r == nil {
		return nil
	}
	out := make(schemas.EvaluationResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
