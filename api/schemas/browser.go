package schemas

import "encoding/json"

// -- Page Inspection Schemas --

// Geometry is an element's box in page-native CSS pixels. X and Y are the
// center of the box.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementDescriptor is a read-only snapshot of an element taken right after a
// command ran. It is never cached between calls.
type ElementDescriptor struct {
	TagName    string            `json:"tagName"`
	ID         string            `json:"id"`
	ClassName  string            `json:"className"`
	Text       string            `json:"text"`
	Type       string            `json:"type,omitempty"`
	Value      string            `json:"value,omitempty"`
	Geometry   Geometry          `json:"geometry"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsInput reports whether the element is a form control that accepts text.
func (d ElementDescriptor) IsInput() bool {
	switch d.TagName {
	case "INPUT", "TEXTAREA", "SELECT":
		return true
	}
	return false
}

// Summary is the reduced subset of the descriptor copied into trajectory entries.
func (d ElementDescriptor) Summary() map[string]any {
	return map[string]any{
		"tagName":   d.TagName,
		"id":        d.ID,
		"className": d.ClassName,
		"text":      d.Text,
	}
}

// ComputedStyle is the subset of computed style reported by element inspection.
type ComputedStyle struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// Bounds extends Geometry with the raw edges of the bounding client rect.
type Bounds struct {
	Geometry
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// ElementInfo is the full inspection result for the element at a point.
type ElementInfo struct {
	ElementDescriptor
	Href     string        `json:"href,omitempty"`
	Src      string        `json:"src,omitempty"`
	Position Bounds        `json:"position"`
	Style    ComputedStyle `json:"style"`
}

// SelectorMatch is the result of a convenience selector lookup.
type SelectorMatch struct {
	ElementDescriptor
	Visible bool `json:"visible"`
}

// Viewport describes the visible area and scroll offsets of the hosted page.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// PageState is a side-effect free snapshot of the hosted page.
type PageState struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Viewport   Viewport `json:"viewport"`
	ReadyState string   `json:"readyState"`
}

// ReadyStateComplete is the document.readyState value of a fully loaded page.
const ReadyStateComplete = "complete"

// Loaded reports whether the page reports a fully loaded document.
func (s PageState) Loaded() bool { return s.ReadyState == ReadyStateComplete }

// ScrollDelta is the signed delta applied by a scroll gesture.
type ScrollDelta struct {
	DeltaX int `json:"deltaX"`
	DeltaY int `json:"deltaY"`
}

// EvaluationResult is the verbatim object returned by the page's evaluation
// entry point. A result whose success flag is false is still a valid result.
type EvaluationResult map[string]any

// Success reports the page's own verdict.
func (r EvaluationResult) Success() bool {
	v, _ := r["success"].(bool)
	return v
}

// Message returns the page's explanation, if any.
func (r EvaluationResult) Message() string {
	for _, key := range []string{"message", "error"} {
		if v, ok := r[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// DecodeEvaluationResult decodes a raw evaluation payload. Non-object payloads
// are wrapped under "value" so they survive verbatim.
func DecodeEvaluationResult(raw json.RawMessage) (EvaluationResult, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err == nil && out != nil {
		return EvaluationResult(out), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return EvaluationResult{"value": v}, nil
}
