// Package gesture holds the page-side gesture library and builds the scripts
// that run it, either directly in the hosted page or behind a cross-frame relay.
package gesture

import (
	_ "embed"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

//go:embed gestures.js
var librarySource string

//go:embed relay.js
var relaySource string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default gesture parameters applied when a caller leaves them unset.
const (
	DefaultClickDelayMs     = 100
	DefaultTypingDelayMs    = 50
	DefaultDistance         = 100
	DefaultLongPressMs      = 1000
	DefaultDirection        = DirectionDown
	DefaultRelayBindingName = "__wobRelayResponse"
)

// Direction names accepted by scroll and drag.
const (
	DirectionDown  = "down"
	DirectionUp    = "up"
	DirectionRight = "right"
	DirectionLeft  = "left"
)

// Library returns the page-side gesture library as a JavaScript expression
// evaluating to an object with a dispatch(command, params) method.
func Library() string { return strings.TrimSpace(librarySource) }

// Build returns a self-contained expression that runs cmd against the current
// document and evaluates to the handler's outcome object (or a promise of it).
func Build(cmd schemas.Command) (string, error) {
	name, err := json.Marshal(string(cmd.Name))
	if err != nil {
		return "", fmt.Errorf("failed to encode command name: %w", err)
	}
	params := cmd.Params
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params for %s: %w", cmd.Name, err)
	}
	return fmt.Sprintf("%s.dispatch(%s, %s)", Library(), name, encoded), nil
}

// RelayBootstrap returns the script injected into every document of a relayed
// session. Inside a frame it answers command envelopes from the parent; in the
// top-level page it forwards response envelopes to the named binding as a JSON
// string.
func RelayBootstrap(bindingName string) (string, error) {
	if bindingName == "" {
		bindingName = DefaultRelayBindingName
	}
	name, err := json.Marshal(bindingName)
	if err != nil {
		return "", fmt.Errorf("failed to encode binding name: %w", err)
	}
	return fmt.Sprintf("%s(%s, %s);", strings.TrimSpace(relaySource), Library(), name), nil
}

// PostScript returns an expression that posts env to the content window of the
// first element matching frameSelector. It evaluates to false when no frame is
// present.
func PostScript(frameSelector string, env schemas.CommandEnvelope) (string, error) {
	sel, err := json.Marshal(frameSelector)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope %s: %w", env.ID, err)
	}
	return fmt.Sprintf(`(function () {
  var frame = document.querySelector(%s);
  if (!frame || !frame.contentWindow) { return false; }
  frame.contentWindow.postMessage(%s, '*');
  return true;
})()`, sel, body), nil
}

// SelectorLookupScript returns an execute-script body that describes the first
// element matching selector. The result carries found=false when nothing
// matches.
func SelectorLookupScript(selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`var el = document.querySelector(%s);
if (!el) { return { found: false }; }
var r = el.getBoundingClientRect();
var s = window.getComputedStyle(el);
return {
  found: true,
  tagName: el.tagName || '',
  id: el.id || '',
  className: typeof el.className === 'string' ? el.className : (el.getAttribute('class') || ''),
  text: (el.textContent || '').substring(0, 100),
  type: el.type || '',
  value: typeof el.value === 'string' ? el.value : '',
  geometry: { x: r.left + r.width / 2, y: r.top + r.height / 2, width: r.width, height: r.height },
  visible: r.width > 0 && r.height > 0 && s.display !== 'none' && s.visibility !== 'hidden'
};`, sel), nil
}

// ReadyStateScript evaluates to true once the document is fully loaded and has
// a populated body.
const ReadyStateScript = `document.readyState === 'complete' && !!document.body && document.body.children.length > 0`
