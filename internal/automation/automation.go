// Package automation is the public gesture API. It wires the coordinate
// normalizer, the command channel, the trajectory recorder and the evaluation
// state machine around one hosted environment page.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/channel"
	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/coords"
	"github.com/xkilldash9x/wobdriver/internal/evaluation"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
	"github.com/xkilldash9x/wobdriver/internal/trajectory"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Default gesture parameters.
const (
	DefaultClickDelay  = gesture.DefaultClickDelayMs * time.Millisecond
	DefaultTypingDelay = gesture.DefaultTypingDelayMs * time.Millisecond
	DefaultLongPress   = gesture.DefaultLongPressMs * time.Millisecond
	DefaultDistance    = gesture.DefaultDistance
	DefaultDirection   = gesture.DefaultDirection
)

// BackSettle is how long Back waits for the previous page to settle.
const BackSettle = 500 * time.Millisecond

// Automation drives one environment page. It is meant for one caller at a
// time; run independent instances for parallel sessions.
type Automation struct {
	cfg        config.Interface
	logger     *zap.Logger
	normalizer coords.Normalizer
	recorder   *trajectory.Recorder
	machine    *evaluation.Machine
	newHost    HostFactory
	override   channel.Channel

	mu   sync.Mutex
	host Host
	ch   channel.Channel
}

// Option configures an Automation.
type Option func(*Automation)

// WithHostFactory replaces the Chrome host.
func WithHostFactory(f HostFactory) Option {
	return func(a *Automation) { a.newHost = f }
}

// WithChannel makes Start use ch instead of building a channel over the host.
func WithChannel(ch channel.Channel) Option {
	return func(a *Automation) { a.override = ch }
}

// WithClock sets the clock used to timestamp trajectory entries.
func WithClock(clock trajectory.Clock) Option {
	return func(a *Automation) { a.recorder = trajectory.NewRecorder(clock) }
}

// New creates an Automation. The scale factor is fixed here for the lifetime
// of the instance.
func New(cfg config.Interface, logger *zap.Logger, opts ...Option) (*Automation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env := cfg.Environment()
	normalizer, err := coords.FromQuality(env.ScreenshotQuality, env.ScaleFactor)
	if err != nil {
		return nil, err
	}

	a := &Automation{
		cfg:        cfg,
		logger:     logger.Named("automation"),
		normalizer: normalizer,
		recorder:   trajectory.NewRecorder(nil),
		machine:    evaluation.New(),
		newHost:    ChromeHost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Scale returns the screenshot scale factor in use.
func (a *Automation) Scale() float64 { return a.normalizer.Scale() }

// Start launches the host, connects the command channel and loads the
// environment. Calling Start on a started instance does nothing.
func (a *Automation) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.host != nil {
		return nil
	}

	url, err := a.cfg.Environment().ResolveURL()
	if err != nil {
		return err
	}
	chCfg := a.cfg.Channel()
	mode, err := channel.ParseMode(chCfg.Mode)
	if err != nil {
		return err
	}

	host, err := a.newHost(ctx, a.cfg.Browser(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	ch, err := a.connect(ctx, host, mode, url, chCfg)
	if err != nil {
		if closeErr := host.Close(context.WithoutCancel(ctx)); closeErr != nil {
			a.logger.Warn("Failed to close browser after start failure.", zap.Error(closeErr))
		}
		return err
	}

	a.host = host
	a.ch = ch
	a.logger.Info("Environment loaded.", zap.String("url", url), zap.String("mode", string(mode)), zap.Float64("scale", a.Scale()))
	return nil
}

func (a *Automation) connect(ctx context.Context, host Host, mode channel.Mode, url string, chCfg config.ChannelConfig) (channel.Channel, error) {
	if a.override != nil {
		if err := host.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return a.override, nil
	}

	if mode == channel.ModeDirect {
		if err := host.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return channel.NewDirect(host, chCfg.DefaultTimeout, a.logger), nil
	}

	relay := channel.NewRelay(nil, chCfg.DefaultTimeout, a.logger)
	if err := host.InstallRelay(ctx, gesture.DefaultRelayBindingName, relay.Deliver); err != nil {
		return nil, fmt.Errorf("failed to install relay: %w", err)
	}
	if err := host.Navigate(ctx, url); err != nil {
		return nil, err
	}
	relay.SetPoster(host.FramePoster(chCfg.FrameSelector))
	return relay, nil
}

// Close tears the host down and returns the evaluation state to Idle. It is
// safe to call more than once.
func (a *Automation) Close(ctx context.Context) error {
	a.mu.Lock()
	host := a.host
	a.host = nil
	a.ch = nil
	a.mu.Unlock()

	a.machine.Reset()
	if host == nil {
		return nil
	}
	if err := host.Close(ctx); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG bytes.
func (a *Automation) Screenshot(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	host := a.host
	a.mu.Unlock()
	if host == nil {
		return nil, schemas.NewCommandError("", schemas.KindTransportNotReady, "browser not started")
	}
	return host.Screenshot(ctx)
}

func (a *Automation) activeChannel() (channel.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return nil, schemas.NewCommandError("", schemas.KindTransportNotReady, "browser not started")
	}
	return a.ch, nil
}

// send dispatches a command. hold is the time the page is expected to spend
// pacing the gesture; it extends the channel's default timeout.
func (a *Automation) send(ctx context.Context, name schemas.CommandName, params map[string]any, hold time.Duration) (json.RawMessage, error) {
	ch, err := a.activeChannel()
	if err != nil {
		var ce *schemas.CommandError
		if errors.As(err, &ce) {
			ce.Command = name
		}
		return nil, err
	}

	var timeout time.Duration
	if hold > 0 {
		timeout = a.cfg.Channel().DefaultTimeout + hold
	}
	return ch.Send(ctx, schemas.NewCommand(name, params, timeout))
}

// GetTrajectory returns a copy of the trajectory.
func (a *Automation) GetTrajectory() []schemas.TrajectoryEntry {
	return a.recorder.Snapshot()
}

// ClearTrajectory empties the trajectory without touching the evaluation state.
func (a *Automation) ClearTrajectory() {
	a.recorder.Clear()
}

// GetEvaluationResult returns the result of the last successful
// FinishEvaluation, or nil.
func (a *Automation) GetEvaluationResult() schemas.EvaluationResult {
	return a.machine.LastResult()
}

// EvaluationActive reports whether an evaluation cycle is in progress.
func (a *Automation) EvaluationActive() bool {
	return a.machine.Active()
}

// StartEvaluation begins an evaluation cycle. The page must be started and
// report a fully loaded document; on success the trajectory is cleared.
func (a *Automation) StartEvaluation(ctx context.Context) error {
	ready := func() error {
		if _, err := a.activeChannel(); err != nil {
			return err
		}
		if err := sleepContext(ctx, a.cfg.Evaluation().StartSettle); err != nil {
			return err
		}
		state, err := a.GetState(ctx)
		if err != nil {
			return fmt.Errorf("failed to verify environment state: %w", err)
		}
		if !state.Loaded() {
			return fmt.Errorf("environment not fully loaded (readyState %q)", state.ReadyState)
		}
		return nil
	}

	if err := a.machine.Begin(ready, a.recorder.Clear); err != nil {
		return err
	}
	a.logger.Info("Evaluation started.")
	return nil
}

// FinishEvaluation submits the trajectory with params to the page's
// evaluation entry point and ends the cycle, whatever the outcome. A result
// whose success flag is false is returned as a value, not an error.
func (a *Automation) FinishEvaluation(ctx context.Context, params map[string]any) (schemas.EvaluationResult, error) {
	evalCfg := a.cfg.Evaluation()
	submit := func() (schemas.EvaluationResult, error) {
		out := make(map[string]any, len(params)+1)
		for k, v := range params {
			out[k] = v
		}
		out[evalCfg.TrajectoryKey] = a.recorder.Snapshot()

		ch, err := a.activeChannel()
		if err != nil {
			return nil, fmt.Errorf("evaluation failed: %w", err)
		}
		raw, err := ch.Send(ctx, schemas.NewCommand(schemas.CommandEvaluate, out, evalCfg.Timeout))
		if err != nil {
			return nil, fmt.Errorf("evaluation failed: %w", err)
		}
		res, err := schemas.DecodeEvaluationResult(raw)
		if err != nil {
			return nil, fmt.Errorf("evaluation failed: %w", &schemas.CommandError{
				Command: schemas.CommandEvaluate,
				Kind:    schemas.KindScriptError,
				Message: "malformed evaluation result",
				Err:     err,
			})
		}
		return res, nil
	}

	res, err := a.machine.Finish(submit)
	if err != nil {
		a.logger.Debug("Evaluation finished with error.", zap.Error(err))
		return nil, err
	}
	a.logger.Info("Evaluation finished.", zap.Bool("success", res.Success()), zap.String("message", res.Message()))
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
