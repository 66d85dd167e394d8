package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

// Click clicks the element at screenshot coordinates (x, y) after waiting
// delay inside the page.
func (a *Automation) Click(ctx context.Context, x, y float64, delay time.Duration) (schemas.ElementDescriptor, error) {
	nx, ny := a.normalizer.Normalize(x, y)
	raw, err := a.send(ctx, schemas.CommandClick, map[string]any{
		"x":       nx,
		"y":       ny,
		"options": map[string]any{"delay": delay.Milliseconds()},
	}, delay)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}

	el, element, err := decodeElement(schemas.CommandClick, raw)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	a.record(schemas.ActionClick, map[string]any{
		"x":         nx,
		"y":         ny,
		"element":   element,
		"tagName":   el.TagName,
		"id":        el.ID,
		"className": el.ClassName,
		"text":      el.Text,
	})
	return el, nil
}

// Type types text into the focused element, holding typingDelay after each
// character.
func (a *Automation) Type(ctx context.Context, text string, typingDelay time.Duration) (schemas.ElementDescriptor, error) {
	hold := time.Duration(len([]rune(text))) * typingDelay
	raw, err := a.send(ctx, schemas.CommandType, map[string]any{
		"text":    text,
		"options": map[string]any{"typingDelay": typingDelay.Milliseconds()},
	}, hold)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}

	el, element, err := decodeElement(schemas.CommandType, raw)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	a.record(schemas.ActionKeypress, map[string]any{
		"text":    text,
		"element": element,
		"target": map[string]any{
			"tagName":   el.TagName,
			"id":        el.ID,
			"className": el.ClassName,
			"inputType": el.Type,
			"isInput":   el.IsInput(),
		},
	})
	return el, nil
}

// Scroll scrolls from screenshot coordinates (x, y) by distance pixels in
// direction and returns the delta the page applied.
func (a *Automation) Scroll(ctx context.Context, x, y float64, direction string, distance int) (schemas.ScrollDelta, error) {
	nx, ny := a.normalizer.Normalize(x, y)
	raw, err := a.send(ctx, schemas.CommandScroll, map[string]any{
		"x":         nx,
		"y":         ny,
		"direction": direction,
		"options":   map[string]any{"distance": distance},
	}, 0)
	if err != nil {
		return schemas.ScrollDelta{}, err
	}

	var delta schemas.ScrollDelta
	if err := codec.Unmarshal(raw, &delta); err != nil {
		return schemas.ScrollDelta{}, malformed(schemas.CommandScroll, err)
	}
	a.record(schemas.ActionScroll, map[string]any{
		"x":         nx,
		"y":         ny,
		"direction": direction,
		"distance":  distance,
		"deltaX":    delta.DeltaX,
		"deltaY":    delta.DeltaY,
		"eventType": "wheel",
	})
	return delta, nil
}

// LongPress touches the element at screenshot coordinates (x, y) for duration.
func (a *Automation) LongPress(ctx context.Context, x, y float64, duration time.Duration) (schemas.ElementDescriptor, error) {
	nx, ny := a.normalizer.Normalize(x, y)
	raw, err := a.send(ctx, schemas.CommandLongPress, map[string]any{
		"x":       nx,
		"y":       ny,
		"options": map[string]any{"duration": duration.Milliseconds()},
	}, duration)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}

	el, element, err := decodeElement(schemas.CommandLongPress, raw)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	a.record(schemas.ActionTouch, map[string]any{
		"x":         nx,
		"y":         ny,
		"duration":  duration.Milliseconds(),
		"touchType": "long_press",
		"element":   element,
	})
	return el, nil
}

// Drag drags from screenshot coordinates (x, y) by distance pixels in
// direction. The returned descriptor is the element the drag started on.
func (a *Automation) Drag(ctx context.Context, x, y float64, direction string, distance int) (schemas.ElementDescriptor, error) {
	nx, ny := a.normalizer.Normalize(x, y)
	raw, err := a.send(ctx, schemas.CommandDrag, map[string]any{
		"x":         nx,
		"y":         ny,
		"direction": direction,
		"options":   map[string]any{"distance": distance},
	}, 0)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}

	el, element, err := decodeElement(schemas.CommandDrag, raw)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	a.record(schemas.ActionTouch, map[string]any{
		"x":         nx,
		"y":         ny,
		"direction": direction,
		"distance":  distance,
		"touchType": "drag",
		"element":   element,
	})
	return el, nil
}

// Back navigates back in the page's history and waits BackSettle for the
// previous page to settle.
func (a *Automation) Back(ctx context.Context) error {
	if _, err := a.send(ctx, schemas.CommandBack, nil, 0); err != nil {
		return err
	}
	if err := sleepContext(ctx, BackSettle); err != nil {
		return err
	}
	a.record(schemas.ActionNavigation, map[string]any{"action": "back"})
	return nil
}

// GetState returns a snapshot of the page.
func (a *Automation) GetState(ctx context.Context) (schemas.PageState, error) {
	raw, err := a.send(ctx, schemas.CommandGetState, nil, 0)
	if err != nil {
		return schemas.PageState{}, err
	}
	var state schemas.PageState
	if err := codec.Unmarshal(raw, &state); err != nil {
		return schemas.PageState{}, malformed(schemas.CommandGetState, err)
	}
	return state, nil
}

// GetElementInfo inspects the element at screenshot coordinates (x, y).
func (a *Automation) GetElementInfo(ctx context.Context, x, y float64) (schemas.ElementInfo, error) {
	nx, ny := a.normalizer.Normalize(x, y)
	raw, err := a.send(ctx, schemas.CommandGetElementInfo, map[string]any{"x": nx, "y": ny}, 0)
	if err != nil {
		return schemas.ElementInfo{}, err
	}
	var info schemas.ElementInfo
	if err := codec.Unmarshal(raw, &info); err != nil {
		return schemas.ElementInfo{}, malformed(schemas.CommandGetElementInfo, err)
	}
	return info, nil
}

// GetElementInfoBySelector describes the first element matching a CSS
// selector. Selector lookups take no coordinates and are not rescaled.
func (a *Automation) GetElementInfoBySelector(ctx context.Context, selector string) (schemas.SelectorMatch, error) {
	script, err := gesture.SelectorLookupScript(selector)
	if err != nil {
		return schemas.SelectorMatch{}, err
	}
	raw, err := a.ExecuteScript(ctx, script)
	if err != nil {
		return schemas.SelectorMatch{}, err
	}

	var match struct {
		Found bool `json:"found"`
		schemas.SelectorMatch
	}
	if err := codec.Unmarshal(raw, &match); err != nil {
		return schemas.SelectorMatch{}, malformed(schemas.CommandExecuteScript, err)
	}
	if !match.Found {
		return schemas.SelectorMatch{}, schemas.NewCommandError(schemas.CommandExecuteScript, schemas.KindElementNotFound,
			fmt.Sprintf("no element matches %q", selector))
	}
	return match.SelectorMatch, nil
}

// ExecuteScript runs a function body in the page and returns its value.
func (a *Automation) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	return a.send(ctx, schemas.CommandExecuteScript, map[string]any{"script": script}, 0)
}

func (a *Automation) record(kind schemas.ActionType, data map[string]any) {
	entry := a.recorder.Record(kind, data)
	a.logger.Debug("Recorded action.", zap.String("type", string(kind)), zap.Int64("timestamp", entry.TimestampMs))
}

// decodeElement decodes a descriptor payload both as a typed descriptor and as
// a generic object for the trajectory.
func decodeElement(cmd schemas.CommandName, raw json.RawMessage) (schemas.ElementDescriptor, map[string]any, error) {
	var el schemas.ElementDescriptor
	if err := codec.Unmarshal(raw, &el); err != nil {
		return el, nil, malformed(cmd, err)
	}
	var generic map[string]any
	if err := codec.Unmarshal(raw, &generic); err != nil {
		return el, nil, malformed(cmd, err)
	}
	return el, generic, nil
}

func malformed(cmd schemas.CommandName, err error) error {
	return &schemas.CommandError{Command: cmd, Kind: schemas.KindScriptError, Message: "malformed result", Err: err}
}
