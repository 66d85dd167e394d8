package gesture

import (
	stdjson "encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

func decodeDescriptor(t *testing.T, raw stdjson.RawMessage) schemas.ElementDescriptor {
	t.Helper()
	var d schemas.ElementDescriptor
	require.NoError(t, stdjson.Unmarshal(raw, &d))
	return d
}

func TestLibraryDirectionTable(t *testing.T) {
	h := newHarness(t)
	h.exec("var lib = " + Library() + ";")
	tests := []struct {
		direction string
		want      schemas.ScrollDelta
	}{
		{DirectionDown, schemas.ScrollDelta{DeltaX: 0, DeltaY: 30}},
		{DirectionUp, schemas.ScrollDelta{DeltaX: 0, DeltaY: -30}},
		{DirectionRight, schemas.ScrollDelta{DeltaX: 30, DeltaY: 0}},
		{DirectionLeft, schemas.ScrollDelta{DeltaX: -30, DeltaY: 0}},
		{"diagonal", schemas.ScrollDelta{DeltaX: 0, DeltaY: 30}},
		{"", schemas.ScrollDelta{DeltaX: 0, DeltaY: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			raw := h.exec("JSON.stringify(lib.delta('" + tt.direction + "', 30))")
			var got schemas.ScrollDelta
			require.NoError(t, stdjson.Unmarshal([]byte(raw.String()), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuild_EncodesParams(t *testing.T) {
	expr, err := Build(schemas.NewCommand(schemas.CommandType, map[string]any{"text": "</script>'\""}, 0))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(expr, ")"))
	assert.Contains(t, expr, `.dispatch("type", `)
	assert.NotContains(t, expr, "</script>")

	expr, err = Build(schemas.Command{Name: schemas.CommandGetState})
	require.NoError(t, err)
	assert.Contains(t, expr, `.dispatch("get-state", {})`)

	_, err = Build(schemas.NewCommand(schemas.CommandClick, map[string]any{"bad": make(chan int)}, 0))
	assert.Error(t, err)
}

func TestClick(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('BUTTON', {
		id: 'submit', className: 'btn primary', textContent: 'Submit',
		rect: { left: 250, top: 100, width: 100, height: 100 },
		attributes: [{ name: 'data-role', value: 'cta' }]
	}));`)

	out := h.dispatch(schemas.CommandClick, map[string]any{"x": 300, "y": 150, "options": map[string]any{"delay": 0}})
	require.True(t, out.Success, out.Error)

	d := decodeDescriptor(t, out.Result)
	assert.Equal(t, "BUTTON", d.TagName)
	assert.Equal(t, "submit", d.ID)
	assert.Equal(t, "btn primary", d.ClassName)
	assert.Equal(t, "Submit", d.Text)
	assert.Equal(t, schemas.Geometry{X: 300, Y: 150, Width: 100, Height: 100}, d.Geometry)
	assert.Equal(t, map[string]string{"data-role": "cta"}, d.Attributes)

	evs := h.events()
	assert.Equal(t, []string{"pointerdown", "mousedown", "pointerup", "mouseup", "click"}, eventTypes(evs))
	for _, e := range evs[:4] {
		assert.Equal(t, 300.0, e.ClientX)
		assert.Equal(t, 150.0, e.ClientY)
		assert.True(t, e.Bubbles)
		assert.True(t, e.Cancelable)
	}
	assert.Equal(t, "native", evs[4].Family, "activation goes through el.click()")

	focused := h.exec("document.activeElement && document.activeElement.id")
	assert.Equal(t, "submit", focused.String())
}

func TestClick_SyntheticActivationWithoutNativeClick(t *testing.T) {
	h := newHarness(t)
	h.exec(`var svg = makeElement('svg', {
		id: 'icon', className: { baseVal: 'glyph' },
		attributes: [{ name: 'class', value: 'glyph' }],
		rect: { left: 0, top: 0, width: 20, height: 20 }
	});
	svg.click = undefined;
	svg.focus = function () { throw new Error('not focusable'); };
	place(svg);`)

	out := h.dispatch(schemas.CommandClick, map[string]any{"x": 5, "y": 5, "options": map[string]any{"delay": 0}})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "glyph", decodeDescriptor(t, out.Result).ClassName)

	evs := h.events()
	require.Len(t, evs, 5)
	assert.Equal(t, "click", evs[4].Type)
	assert.Equal(t, "MouseEvent", evs[4].Family)
}

func TestClick_ElementNotFound(t *testing.T) {
	h := newHarness(t)
	out := h.dispatch(schemas.CommandClick, map[string]any{"x": 10, "y": 10, "options": map[string]any{"delay": 0}})
	assert.False(t, out.Success)
	assert.Equal(t, schemas.CodeElementNotFound, out.Code)
	assert.Empty(t, h.events())
}

func TestType_PacesEachCharacter(t *testing.T) {
	h := newHarness(t)
	h.exec(`var input = place(makeElement('INPUT', { id: 'city', type: 'text', value: '' }));
	input.focus();`)

	start := time.Now()
	out := h.dispatch(schemas.CommandType, map[string]any{"text": "NY", "options": map[string]any{"typingDelay": 10}})
	elapsed := time.Since(start)
	require.True(t, out.Success, out.Error)

	d := decodeDescriptor(t, out.Result)
	assert.Equal(t, "NY", d.Value)
	assert.Equal(t, "city", d.ID)
	assert.Equal(t, "text", d.Type)

	evs := h.events()
	assert.Equal(t, []string{"keydown", "input", "keyup", "keydown", "input", "keyup", "change"}, eventTypes(evs))
	assert.Equal(t, "N", evs[0].Key)
	assert.Equal(t, "N", evs[1].Value, "value is mutated before the input notification")
	assert.Equal(t, "N", evs[2].Key)
	assert.Equal(t, "Y", evs[3].Key)
	assert.Equal(t, "NY", evs[6].Value)

	// Two characters held ~10ms each inside the page.
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}

func TestType_ContentEditable(t *testing.T) {
	h := newHarness(t)
	h.exec(`var note = place(makeElement('DIV', { id: 'note', isContentEditable: true, textContent: 'a' }));
	note.focus();`)

	out := h.dispatch(schemas.CommandType, map[string]any{"text": "bc", "options": map[string]any{"typingDelay": 0}})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "abc", decodeDescriptor(t, out.Result).Value)
	assert.Equal(t, "abc", h.exec("note.textContent").String())
}

func TestType_NoFocusedInput(t *testing.T) {
	h := newHarness(t)

	out := h.dispatch(schemas.CommandType, map[string]any{"text": "x"})
	assert.False(t, out.Success)
	assert.Equal(t, schemas.CodeNoFocusedInput, out.Code)

	h.exec(`place(makeElement('BUTTON', { id: 'b' })).focus();`)
	out = h.dispatch(schemas.CommandType, map[string]any{"text": "x"})
	assert.Equal(t, schemas.CodeNoFocusedInput, out.Code)
	assert.Empty(t, h.events())
}

func TestScroll_ViewportFallback(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('P', { id: 'para', rect: { left: 0, top: 0, width: 390, height: 844 } }));`)

	out := h.dispatch(schemas.CommandScroll, map[string]any{"x": 100, "y": 200, "direction": "up", "options": map[string]any{"distance": 50}})
	require.True(t, out.Success, out.Error)

	var d schemas.ScrollDelta
	require.NoError(t, stdjson.Unmarshal(out.Result, &d))
	assert.Equal(t, schemas.ScrollDelta{DeltaX: 0, DeltaY: -50}, d)

	evs := h.events()
	require.Len(t, evs, 1)
	assert.Equal(t, "wheel", evs[0].Type)
	assert.Equal(t, -50.0, evs[0].DeltaY)
	assert.Equal(t, 100.0, evs[0].ClientX)

	assert.Equal(t, int64(-50), h.exec("window.scrollY").ToInteger())
}

func TestScroll_NearestScrollableAncestor(t *testing.T) {
	h := newHarness(t)
	h.exec(`var list = makeElement('UL', { id: 'list', scrollHeight: 2000, clientHeight: 400, parentElement: body });
	var item = makeElement('LI', { id: 'item', parentElement: list, rect: { left: 0, top: 0, width: 100, height: 40 } });
	place(item);`)

	out := h.dispatch(schemas.CommandScroll, map[string]any{"x": 10, "y": 10, "direction": "down", "options": map[string]any{"distance": 120}})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, int64(120), h.exec("list.scrollTop").ToInteger())
	assert.Equal(t, int64(0), h.exec("window.scrollY").ToInteger())
}

func TestScroll_UnknownDirectionFallsBackToDown(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('P', { id: 'p' }));`)
	out := h.dispatch(schemas.CommandScroll, map[string]any{"x": 1, "y": 1, "direction": "north"})
	require.True(t, out.Success, out.Error)

	var d schemas.ScrollDelta
	require.NoError(t, stdjson.Unmarshal(out.Result, &d))
	assert.Equal(t, schemas.ScrollDelta{DeltaX: 0, DeltaY: DefaultDistance}, d)
}

func TestLongPress_TouchFallbackAndHold(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('IMG', { id: 'photo', rect: { left: 0, top: 0, width: 200, height: 200 } }));`)

	start := time.Now()
	out := h.dispatch(schemas.CommandLongPress, map[string]any{"x": 50, "y": 60, "options": map[string]any{"duration": 25}})
	require.True(t, out.Success, out.Error)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, "photo", decodeDescriptor(t, out.Result).ID)

	evs := h.events()
	assert.Equal(t, []string{"touchstart", "touchend"}, eventTypes(evs))
	for _, e := range evs {
		assert.Equal(t, 50.0, e.ClientX)
		assert.Equal(t, 60.0, e.ClientY)
		assert.True(t, e.Bubbles)
	}
}

func TestDrag_EndPointFromDirectionTable(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('DIV', { id: 'slider', rect: { left: 0, top: 0, width: 300, height: 50 } }));`)

	out := h.dispatch(schemas.CommandDrag, map[string]any{"x": 20, "y": 25, "direction": "right", "options": map[string]any{"distance": 40}})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "slider", decodeDescriptor(t, out.Result).ID)

	evs := h.events()
	require.Equal(t, []string{"touchstart", "touchmove", "touchend"}, eventTypes(evs))
	assert.Equal(t, 20.0, evs[0].ClientX)
	assert.Equal(t, 60.0, evs[1].ClientX)
	assert.Equal(t, 25.0, evs[1].ClientY)
	assert.Equal(t, 60.0, evs[2].ClientX)
	// All events target the originating element.
	for _, e := range evs {
		assert.Equal(t, "slider", e.Target)
	}
}

func TestBack(t *testing.T) {
	h := newHarness(t)
	out := h.dispatch(schemas.CommandBack, nil)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, []string{"history.back"}, eventTypes(h.events()))
}

func TestGetState(t *testing.T) {
	h := newHarness(t)
	out := h.dispatch(schemas.CommandGetState, nil)
	require.True(t, out.Success, out.Error)

	var st schemas.PageState
	require.NoError(t, stdjson.Unmarshal(out.Result, &st))
	assert.Equal(t, schemas.PageState{
		URL:        "https://example.test/env/index.html",
		Title:      "Fixture",
		Viewport:   schemas.Viewport{Width: 390, Height: 844},
		ReadyState: "complete",
	}, st)
	assert.True(t, st.Loaded())
	assert.Empty(t, h.events())
}

func TestGetElementInfo(t *testing.T) {
	h := newHarness(t)
	h.exec(`place(makeElement('A', {
		id: 'home', textContent: 'Home', href: 'https://example.test/',
		rect: { left: 10, top: 20, width: 40, height: 10 },
		attributes: [{ name: 'href', value: '/' }, { name: 'class', value: 'nav' }]
	}));`)

	out := h.dispatch(schemas.CommandGetElementInfo, map[string]any{"x": 15, "y": 25})
	require.True(t, out.Success, out.Error)

	var info schemas.ElementInfo
	require.NoError(t, stdjson.Unmarshal(out.Result, &info))
	assert.Equal(t, "A", info.TagName)
	assert.Equal(t, "https://example.test/", info.Href)
	assert.Equal(t, schemas.ComputedStyle{Display: "block", Visibility: "visible", Opacity: "1"}, info.Style)
	assert.Equal(t, 30.0, info.Position.X)
	assert.Equal(t, 25.0, info.Position.Y)
	assert.Equal(t, 20.0, info.Position.Top)
	assert.Equal(t, 50.0, info.Position.Right)
	assert.Equal(t, map[string]string{"href": "/", "class": "nav"}, info.Attributes)
}

func TestGetElementInfo_NoElement(t *testing.T) {
	h := newHarness(t)
	out := h.dispatch(schemas.CommandGetElementInfo, map[string]any{"x": 999, "y": 999})
	assert.False(t, out.Success)
	assert.Equal(t, schemas.CodeElementNotFound, out.Code)
	assert.Equal(t, schemas.KindElementNotFound, schemas.KindOf(out.AsResult().Err(schemas.CommandGetElementInfo)))
}

func TestExecuteScript(t *testing.T) {
	h := newHarness(t)

	out := h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": "return { sum: 1 + 1 };"})
	require.True(t, out.Success, out.Error)
	assert.JSONEq(t, `{"sum":2}`, string(out.Result))

	out = h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": "document.title = 'changed';"})
	require.True(t, out.Success, out.Error)
	assert.JSONEq(t, `{}`, string(out.Result))

	out = h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": ""})
	assert.Equal(t, schemas.CodeScriptError, out.Code)

	out = h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": "throw new Error('boom');"})
	assert.False(t, out.Success)
	assert.Equal(t, schemas.CodeScriptError, out.Code)
	assert.Equal(t, "boom", out.Error)
}

func TestSelectorLookupScript(t *testing.T) {
	h := newHarness(t)
	h.exec(`var hero = makeElement('H1', { id: 'hero', textContent: 'Welcome', rect: { left: 0, top: 0, width: 100, height: 30 } });
	document.querySelector = function (sel) { return sel === '#hero' ? hero : null; };`)

	script, err := SelectorLookupScript("#hero")
	require.NoError(t, err)
	out := h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": script})
	require.True(t, out.Success, out.Error)

	var got struct {
		Found   bool   `json:"found"`
		TagName string `json:"tagName"`
		Visible bool   `json:"visible"`
	}
	require.NoError(t, stdjson.Unmarshal(out.Result, &got))
	assert.True(t, got.Found)
	assert.Equal(t, "H1", got.TagName)
	assert.True(t, got.Visible)

	script, err = SelectorLookupScript("#missing'); alert('x")
	require.NoError(t, err)
	out = h.dispatch(schemas.CommandExecuteScript, map[string]any{"script": script})
	require.True(t, out.Success, out.Error)
	require.NoError(t, stdjson.Unmarshal(out.Result, &got))
	assert.False(t, got.Found)
}

func TestEvaluate(t *testing.T) {
	h := newHarness(t)

	out := h.dispatch(schemas.CommandEvaluate, map[string]any{"trajectory": []any{}})
	require.True(t, out.Success, "a missing evaluator is reported as a verdict")
	assert.JSONEq(t, `{"success":false,"error":"page does not expose evaluateTask"}`, string(out.Result))

	h.exec(`window.evaluateTask = function (params) {
		return Promise.resolve({ success: false, message: 'task not completed', steps: params.trajectory.length });
	};`)
	out = h.dispatch(schemas.CommandEvaluate, map[string]any{"trajectory": []any{map[string]any{"type": "click"}}})
	require.True(t, out.Success, "a failing verdict is still a successful command")
	assert.JSONEq(t, `{"success":false,"message":"task not completed","steps":1}`, string(out.Result))
}

func TestEvaluate_EvaluatorFaultsAreVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		evaluator string
	}{
		{"throws", `window.evaluateTask = function () { throw new Error('evaluator crashed'); };`},
		{"rejects", `window.evaluateTask = function () { return Promise.reject(new Error('evaluator crashed')); };`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.exec(tt.evaluator)
			out := h.dispatch(schemas.CommandEvaluate, map[string]any{})
			require.True(t, out.Success, out.Error)
			assert.Empty(t, out.Code)
			assert.JSONEq(t, `{"success":false,"error":"evaluator crashed"}`, string(out.Result))
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	out := h.dispatch(schemas.CommandName("teleport"), nil)
	assert.False(t, out.Success)
	assert.Equal(t, schemas.CodeUnknownCommand, out.Code)

	out = h.dispatch(schemas.CommandName("toString"), nil)
	assert.Equal(t, schemas.CodeUnknownCommand, out.Code)
}
