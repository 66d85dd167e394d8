package channel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

// Direct runs every command in the same execution context as the hosted page.
type Direct struct {
	eval           Evaluator
	logger         *zap.Logger
	defaultTimeout time.Duration
}

var _ Channel = (*Direct)(nil)

// NewDirect creates a direct channel over eval.
func NewDirect(eval Evaluator, defaultTimeout time.Duration, logger *zap.Logger) *Direct {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{
		eval:           eval,
		logger:         logger.Named("direct"),
		defaultTimeout: defaultTimeout,
	}
}

// Send builds the gesture script for cmd and evaluates it. The command's
// timeout bounds the evaluation, including any promise it returns.
func (d *Direct) Send(ctx context.Context, cmd schemas.Command) (json.RawMessage, error) {
	if err := precheck(cmd, d.eval != nil); err != nil {
		return nil, err
	}

	expr, err := gesture.Build(cmd)
	if err != nil {
		return nil, &schemas.CommandError{Command: cmd.Name, Kind: schemas.KindScriptError, Message: "could not build script", Err: err}
	}

	timeout := effectiveTimeout(cmd, d.defaultTimeout)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.logger.Debug("Dispatching command.", zap.String("command", string(cmd.Name)), zap.Duration("timeout", timeout))
	raw, err := d.eval.Evaluate(opCtx, expr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abandoned(cmd, ctx.Err())
		}
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			d.logger.Debug("Command timed out.", zap.String("command", string(cmd.Name)), zap.Duration("timeout", timeout))
			return nil, timedOut(cmd, timeout)
		}
		var ce *schemas.CommandError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &schemas.CommandError{Command: cmd.Name, Kind: schemas.KindScriptError, Message: "evaluation raised", Err: err}
	}

	var out schemas.Outcome
	if err := codec.Unmarshal(raw, &out); err != nil {
		return nil, &schemas.CommandError{Command: cmd.Name, Kind: schemas.KindScriptError, Message: "malformed outcome", Err: err}
	}
	res := out.AsResult()
	if err := res.Err(cmd.Name); err != nil {
		d.logger.Debug("Command rejected.", zap.String("command", string(cmd.Name)), zap.Error(err))
		return nil, err
	}
	return res.Payload, nil
}
