package gesture

import (
	stdjson "encoding/json"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

// fakeDOM is a minimal document model: enough surface for the gesture library
// to resolve elements, dispatch events and report geometry. Every dispatched
// event is appended to `events`.
const fakeDOM = `
var window = this;
var events = [];

function makeCtor(family) {
  return function (type, init) {
    init = init || {};
    this.type = type;
    this.family = family;
    for (var k in init) { this[k] = init[k]; }
  };
}

var Event = makeCtor('Event');
var KeyboardEvent = makeCtor('KeyboardEvent');
var MouseEvent = makeCtor('MouseEvent');
var PointerEvent = makeCtor('PointerEvent');
var WheelEvent = makeCtor('WheelEvent');
var InputEvent = makeCtor('InputEvent');

function record(el, e) {
  events.push({
    type: e.type,
    family: e.family || '',
    target: el.id,
    key: e.key === undefined ? '' : e.key,
    clientX: e.clientX === undefined ? 0 : e.clientX,
    clientY: e.clientY === undefined ? 0 : e.clientY,
    deltaX: e.deltaX === undefined ? 0 : e.deltaX,
    deltaY: e.deltaY === undefined ? 0 : e.deltaY,
    bubbles: !!e.bubbles,
    cancelable: !!e.cancelable,
    value: typeof el.value === 'string' ? el.value : ''
  });
  return true;
}

function makeElement(tag, props) {
  var el = {
    tagName: tag,
    id: '',
    className: '',
    textContent: '',
    attributes: [],
    parentElement: null,
    scrollHeight: 0, clientHeight: 0, scrollWidth: 0, clientWidth: 0,
    scrollTop: 0, scrollLeft: 0,
    rect: { left: 0, top: 0, width: 10, height: 10 },
    getBoundingClientRect: function () {
      var r = this.rect;
      return { left: r.left, top: r.top, width: r.width, height: r.height, right: r.left + r.width, bottom: r.top + r.height };
    },
    getAttribute: function (name) {
      for (var i = 0; i < this.attributes.length; i++) {
        if (this.attributes[i].name === name) { return this.attributes[i].value; }
      }
      return null;
    },
    dispatchEvent: function (e) { return record(this, e); },
    focus: function () { document.activeElement = this; },
    click: function () { return record(this, { type: 'click', family: 'native', clientX: 0, clientY: 0 }); }
  };
  for (var k in props) { el[k] = props[k]; }
  return el;
}

var body = makeElement('BODY', { id: 'body' });

var document = {
  title: 'Fixture',
  readyState: 'complete',
  activeElement: null,
  body: body,
  documentElement: makeElement('HTML', { id: 'html' }),
  placed: [],
  elementFromPoint: function (x, y) {
    for (var i = this.placed.length - 1; i >= 0; i--) {
      var r = this.placed[i].rect;
      if (x >= r.left && x < r.left + r.width && y >= r.top && y < r.top + r.height) {
        return this.placed[i];
      }
    }
    return null;
  }
};

function place(el) {
  if (!el.parentElement) { el.parentElement = body; }
  document.placed.push(el);
  return el;
}

window.location = { href: 'https://example.test/env/index.html' };
window.innerWidth = 390;
window.innerHeight = 844;
window.scrollX = 0;
window.scrollY = 0;
window.scrollBy = function (dx, dy) { window.scrollX += dx; window.scrollY += dy; };
window.history = { back: function () { events.push({ type: 'history.back' }); } };
window.getComputedStyle = function () { return { display: 'block', visibility: 'visible', opacity: 1 }; };
`

type recordedEvent struct {
	Type       string  `json:"type"`
	Family     string  `json:"family"`
	Target     string  `json:"target"`
	Key        string  `json:"key"`
	ClientX    float64 `json:"clientX"`
	ClientY    float64 `json:"clientY"`
	DeltaX     float64 `json:"deltaX"`
	DeltaY     float64 `json:"deltaY"`
	Bubbles    bool    `json:"bubbles"`
	Cancelable bool    `json:"cancelable"`
	Value      string  `json:"value"`
}

type harness struct {
	t  *testing.T
	vm *goja.Runtime
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(fakeDOM)
	require.NoError(t, err)
	return &harness{t: t, vm: vm}
}

// exec runs arbitrary setup script in the fake page.
func (h *harness) exec(script string) goja.Value {
	h.t.Helper()
	v, err := h.vm.RunString(script)
	require.NoError(h.t, err)
	return v
}

// dispatch runs cmd the way the direct channel does and returns the settled
// outcome. Promise jobs are drained when RunString returns.
func (h *harness) dispatch(name schemas.CommandName, params map[string]any) schemas.Outcome {
	h.t.Helper()
	expr, err := Build(schemas.NewCommand(name, params, 0))
	require.NoError(h.t, err)

	h.exec("var __out = null; Promise.resolve(" + expr + ").then(function (v) { __out = JSON.stringify(v); });")
	raw := h.vm.Get("__out")
	require.False(h.t, raw == nil || goja.IsNull(raw) || goja.IsUndefined(raw), "outcome never settled")

	var out schemas.Outcome
	require.NoError(h.t, stdjson.Unmarshal([]byte(raw.String()), &out))
	return out
}

func (h *harness) events() []recordedEvent {
	h.t.Helper()
	raw := h.exec("JSON.stringify(events)")
	var evs []recordedEvent
	require.NoError(h.t, stdjson.Unmarshal([]byte(raw.String()), &evs))
	return evs
}

func (h *harness) resetEvents() { h.exec("events = [];") }

func eventTypes(evs []recordedEvent) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}
