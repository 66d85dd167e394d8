// Package channel carries commands to the hosted page and returns their results.
// Two addressing modes exist: Direct evaluates the gesture script in the page's
// own context, Relay posts command envelopes across a frame boundary and
// correlates responses by ID.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Mode selects how a channel reaches the hosted page.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeRelayed Mode = "relayed"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeRelayed:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown channel mode %q", s)
}

// DefaultTimeout applies to commands dispatched without an explicit timeout.
const DefaultTimeout = 5 * time.Second

// Channel dispatches a single command and blocks until it resolves, fails or
// times out. Implementations never retry.
type Channel interface {
	Send(ctx context.Context, cmd schemas.Command) (json.RawMessage, error)
}

// Evaluator runs a JavaScript expression in the hosted page and returns the
// JSON encoding of its (awaited) value.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string) ([]byte, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string) ([]byte, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expression string) ([]byte, error) {
	return f(ctx, expression)
}

// Poster delivers a command envelope into the inner content context.
type Poster interface {
	Post(ctx context.Context, env schemas.CommandEnvelope) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, env schemas.CommandEnvelope) error

func (f PosterFunc) Post(ctx context.Context, env schemas.CommandEnvelope) error {
	return f(ctx, env)
}

func effectiveTimeout(cmd schemas.Command, fallback time.Duration) time.Duration {
	if cmd.Timeout > 0 {
		return cmd.Timeout
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeout
}

// precheck rejects commands that can never succeed before any transport work.
func precheck(cmd schemas.Command, ready bool) error {
	if !schemas.IsKnownCommand(cmd.Name) {
		return schemas.NewCommandError(cmd.Name, schemas.KindUnknownCommand, "not part of the command catalog")
	}
	if !ready {
		return schemas.NewCommandError(cmd.Name, schemas.KindTransportNotReady, "channel has no transport")
	}
	return nil
}

func timedOut(cmd schemas.Command, after time.Duration) error {
	return schemas.NewCommandError(cmd.Name, schemas.KindTimedOut, fmt.Sprintf("no response after %v", after))
}

// abandoned reports an outer context cancellation. It keeps the context error
// in the chain so callers can match context.Canceled.
func abandoned(cmd schemas.Command, err error) error {
	return fmt.Errorf("%s: abandoned: %w", cmd.Name, err)
}
