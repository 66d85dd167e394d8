package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the driver can report.
type ErrorKind string

const (
	KindTransportNotReady ErrorKind = "TransportNotReady"
	KindUnknownCommand    ErrorKind = "UnknownCommand"
	KindElementNotFound   ErrorKind = "ElementNotFound"
	KindNoFocusedInput    ErrorKind = "NoFocusedInput"
	KindScriptError       ErrorKind = "ScriptError"
	KindTimedOut          ErrorKind = "TimedOut"
	KindRejected          ErrorKind = "Rejected"
	KindAlreadyActive     ErrorKind = "AlreadyActive"
	KindNotActive         ErrorKind = "NotActive"
	KindNotReady          ErrorKind = "NotReady"
)

// Codes emitted by the page-side gesture library.
const (
	CodeElementNotFound = "ELEMENT_NOT_FOUND"
	CodeNoFocusedInput  = "NO_FOCUSED_INPUT"
	CodeScriptError     = "SCRIPT_ERROR"
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
	CodeTimedOut        = "TIMED_OUT"
)

// KindFromCode maps a page-side failure code to an ErrorKind. Unrecognized or
// empty codes are plain rejections.
func KindFromCode(code string) ErrorKind {
	switch code {
	case CodeElementNotFound:
		return KindElementNotFound
	case CodeNoFocusedInput:
		return KindNoFocusedInput
	case CodeScriptError:
		return KindScriptError
	case CodeUnknownCommand:
		return KindUnknownCommand
	case CodeTimedOut:
		return KindTimedOut
	default:
		return KindRejected
	}
}

// CommandError is the single concrete error type of the driver. Sentinels below
// match any CommandError of the same Kind via errors.Is.
type CommandError struct {
	Command CommandName
	Kind    ErrorKind
	Message string
	Err     error
}

// NewCommandError builds a CommandError.
func NewCommandError(command CommandName, kind ErrorKind, message string) *CommandError {
	return &CommandError{Command: command, Kind: kind, Message: message}
}

func (e *CommandError) Error() string {
	msg := string(e.Kind)
	if e.Command != "" {
		msg = fmt.Sprintf("%s: %s", e.Command, msg)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, schemas.ErrTimedOut).
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Command == "" || t.Command == e.Command)
}

var (
	ErrTransportNotReady = &CommandError{Kind: KindTransportNotReady}
	ErrUnknownCommand    = &CommandError{Kind: KindUnknownCommand}
	ErrElementNotFound   = &CommandError{Kind: KindElementNotFound}
	ErrNoFocusedInput    = &CommandError{Kind: KindNoFocusedInput}
	ErrScriptError       = &CommandError{Kind: KindScriptError}
	ErrTimedOut          = &CommandError{Kind: KindTimedOut}
	ErrRejected          = &CommandError{Kind: KindRejected}
	ErrAlreadyActive     = &CommandError{Kind: KindAlreadyActive}
	ErrNotActive         = &CommandError{Kind: KindNotActive}
	ErrNotReady          = &CommandError{Kind: KindNotReady}
)

// KindOf extracts the ErrorKind of err, or "" when err is not a CommandError.
func KindOf(err error) ErrorKind {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
