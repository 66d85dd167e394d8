package schemas

import (
	"encoding/json"
	"time"
)

// CommandName identifies a command understood by the page-side gesture library.
type CommandName string

const (
	CommandClick          CommandName = "click"
	CommandType           CommandName = "type"
	CommandScroll         CommandName = "scroll"
	CommandLongPress      CommandName = "long_press"
	CommandDrag           CommandName = "drag"
	CommandBack           CommandName = "back"
	CommandGetState       CommandName = "get-state"
	CommandGetElementInfo CommandName = "get-element-info"
	CommandExecuteScript  CommandName = "execute-script"
	CommandEvaluate       CommandName = "evaluate"
)

// knownCommands is the complete command catalog. Anything else is rejected
// before it reaches a transport.
var knownCommands = map[CommandName]struct{}{
	CommandClick:          {},
	CommandType:           {},
	CommandScroll:         {},
	CommandLongPress:      {},
	CommandDrag:           {},
	CommandBack:           {},
	CommandGetState:       {},
	CommandGetElementInfo: {},
	CommandExecuteScript:  {},
	CommandEvaluate:       {},
}

// IsKnownCommand reports whether name is part of the command catalog.
func IsKnownCommand(name CommandName) bool {
	_, ok := knownCommands[name]
	return ok
}

// Command is a single request dispatched through a channel. It is treated as
// immutable once handed to Send.
type Command struct {
	Name    CommandName    `json:"command"`
	Params  map[string]any `json:"params"`
	Timeout time.Duration  `json:"-"`
}

// NewCommand builds a command, copying params so later caller mutations do not
// leak into an in-flight dispatch.
func NewCommand(name CommandName, params map[string]any, timeout time.Duration) Command {
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Command{Name: name, Params: cp, Timeout: timeout}
}

// FailureKind distinguishes "we never heard back" from "the remote side said no".
type FailureKind string

const (
	FailureTimedOut FailureKind = "TimedOut"
	FailureRejected FailureKind = "Rejected"
)

// Failure describes why a command did not succeed.
type Failure struct {
	Kind    FailureKind
	Code    string
	Message string
}

// Result is the discriminated outcome of a dispatched command: exactly one of
// Payload (success) or Failure is meaningful.
type Result struct {
	Payload json.RawMessage
	Failure *Failure
}

// Succeeded reports whether the result carries a payload.
func (r Result) Succeeded() bool { return r.Failure == nil }

// SuccessResult wraps a payload.
func SuccessResult(payload json.RawMessage) Result {
	return Result{Payload: payload}
}

// FailureResult wraps a failure.
func FailureResult(kind FailureKind, code, message string) Result {
	return Result{Failure: &Failure{Kind: kind, Code: code, Message: message}}
}

// Err converts the result into the error taxonomy. It returns nil on success.
func (r Result) Err(command CommandName) error {
	if r.Failure == nil {
		return nil
	}
	if r.Failure.Kind == FailureTimedOut {
		return NewCommandError(command, KindTimedOut, r.Failure.Message)
	}
	return NewCommandError(command, KindFromCode(r.Failure.Code), r.Failure.Message)
}

// Outcome is the object every page-side handler returns, and the payload of a
// relayed response envelope.
type Outcome struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// AsResult maps a page outcome onto the channel result union.
func (o Outcome) AsResult() Result {
	if o.Success {
		payload := o.Result
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		return SuccessResult(payload)
	}
	if o.Code == CodeTimedOut {
		return FailureResult(FailureTimedOut, o.Code, o.Error)
	}
	return FailureResult(FailureRejected, o.Code, o.Error)
}
