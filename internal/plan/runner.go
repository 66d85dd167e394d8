package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

// Default gesture parameters used when a step leaves them unset.
const (
	DefaultClickDelay  = gesture.DefaultClickDelayMs * time.Millisecond
	DefaultTypingDelay = gesture.DefaultTypingDelayMs * time.Millisecond
	DefaultLongPress   = gesture.DefaultLongPressMs * time.Millisecond
	DefaultDistance    = gesture.DefaultDistance
	DefaultDirection   = gesture.DefaultDirection
)

// Driver is the gesture surface a plan runs against.
type Driver interface {
	Click(ctx context.Context, x, y float64, delay time.Duration) (schemas.ElementDescriptor, error)
	Type(ctx context.Context, text string, typingDelay time.Duration) (schemas.ElementDescriptor, error)
	Scroll(ctx context.Context, x, y float64, direction string, distance int) (schemas.ScrollDelta, error)
	LongPress(ctx context.Context, x, y float64, duration time.Duration) (schemas.ElementDescriptor, error)
	Drag(ctx context.Context, x, y float64, direction string, distance int) (schemas.ElementDescriptor, error)
	Back(ctx context.Context) error
	GetState(ctx context.Context) (schemas.PageState, error)
	GetElementInfo(ctx context.Context, x, y float64) (schemas.ElementInfo, error)
	GetElementInfoBySelector(ctx context.Context, selector string) (schemas.SelectorMatch, error)
	Screenshot(ctx context.Context) ([]byte, error)
	StartEvaluation(ctx context.Context) error
	FinishEvaluation(ctx context.Context, params map[string]any) (schemas.EvaluationResult, error)
	GetTrajectory() []schemas.TrajectoryEntry
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index      int                        `json:"index"`
	Action     Action                     `json:"action"`
	OK         bool                       `json:"ok"`
	Error      string                     `json:"error,omitempty"`
	ErrorKind  schemas.ErrorKind          `json:"error_kind,omitempty"`
	Element    *schemas.ElementDescriptor `json:"element,omitempty"`
	Delta      *schemas.ScrollDelta       `json:"delta,omitempty"`
	State      *schemas.PageState         `json:"state,omitempty"`
	Info       *schemas.ElementInfo       `json:"info,omitempty"`
	Match      *schemas.SelectorMatch     `json:"match,omitempty"`
	Screenshot string                     `json:"screenshot,omitempty"`
}

// Report is the outcome of a plan run against one environment.
type Report struct {
	EnvID      string                    `json:"env_id"`
	Plan       string                    `json:"plan,omitempty"`
	Steps      []StepResult              `json:"steps"`
	Evaluation schemas.EvaluationResult  `json:"evaluation,omitempty"`
	Trajectory []schemas.TrajectoryEntry `json:"trajectory"`
	Error      string                    `json:"error,omitempty"`
}

// OK reports whether every step ran and the evaluation, if any, succeeded.
func (r *Report) OK() bool {
	if r.Error != "" {
		return false
	}
	if r.Evaluation != nil {
		return r.Evaluation.Success()
	}
	return true
}

// Runner executes plans against a Driver, pacing steps through a token bucket.
type Runner struct {
	driver  Driver
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRunner creates a Runner. actionsPerSecond <= 0 disables pacing.
func NewRunner(driver Driver, actionsPerSecond float64, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if actionsPerSecond > 0 {
		limit = rate.Limit(actionsPerSecond)
	}
	return &Runner{
		driver:  driver,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("plan"),
	}
}

// Run executes the plan for envID. When the plan asks for an evaluation the
// steps run inside a cycle that is always finished, so the page's verdict is
// reported even when a step failed. Failures are carried in the report.
func (r *Runner) Run(ctx context.Context, envID string, p *Plan) *Report {
	report := &Report{EnvID: envID, Plan: p.Name, Steps: make([]StepResult, 0, len(p.Steps))}
	logger := r.logger.With(zap.String("env_id", envID), zap.String("plan", p.Name))

	if p.Evaluation != nil {
		if err := r.driver.StartEvaluation(ctx); err != nil {
			report.Error = fmt.Sprintf("failed to start evaluation: %v", err)
			logger.Error("Could not start evaluation.", zap.Error(err))
			return report
		}
	}

	for i, step := range p.Steps {
		if err := r.limiter.Wait(ctx); err != nil {
			report.Error = fmt.Sprintf("step %d (%s): %v", i+1, step.Action, err)
			break
		}
		res := r.runStep(ctx, envID, i+1, step)
		report.Steps = append(report.Steps, res)
		if res.OK {
			logger.Debug("Step completed.", zap.Int("step", res.Index), zap.String("action", string(step.Action)))
			continue
		}
		logger.Warn("Step failed.", zap.Int("step", res.Index), zap.String("action", string(step.Action)), zap.String("error", res.Error))
		if report.Error == "" {
			report.Error = fmt.Sprintf("step %d (%s): %s", res.Index, step.Action, res.Error)
		}
		if !p.ContinueOnError {
			break
		}
	}

	if p.Evaluation != nil {
		// The cycle must end even if the run was cancelled.
		finishCtx := ctx
		if ctx.Err() != nil {
			finishCtx = context.WithoutCancel(ctx)
		}
		res, err := r.driver.FinishEvaluation(finishCtx, p.Evaluation.Params)
		if err != nil {
			if report.Error == "" {
				report.Error = err.Error()
			}
			logger.Error("Evaluation failed.", zap.Error(err))
		} else {
			report.Evaluation = res
			logger.Info("Evaluation finished.", zap.Bool("success", res.Success()), zap.String("message", res.Message()))
		}
	}

	report.Trajectory = r.driver.GetTrajectory()
	return report
}

func (r *Runner) runStep(ctx context.Context, envID string, index int, step Step) StepResult {
	res := StepResult{Index: index, Action: step.Action}
	err := r.execute(ctx, envID, step, &res)
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = schemas.KindOf(err)
		return res
	}
	res.OK = true
	return res
}

func (r *Runner) execute(ctx context.Context, envID string, step Step, res *StepResult) error {
	a := step.Args
	switch step.Action {
	case ActionClick:
		el, err := r.driver.Click(ctx, *a.X, *a.Y, durationOr(a.Delay, DefaultClickDelay))
		res.Element = &el
		return clearOnError(err, func() { res.Element = nil })

	case ActionType:
		el, err := r.driver.Type(ctx, a.Text, durationOr(a.Delay, DefaultTypingDelay))
		res.Element = &el
		return clearOnError(err, func() { res.Element = nil })

	case ActionScroll:
		delta, err := r.driver.Scroll(ctx, *a.X, *a.Y, directionOr(a.Direction), intOr(a.Distance, DefaultDistance))
		res.Delta = &delta
		return clearOnError(err, func() { res.Delta = nil })

	case ActionLongPress:
		el, err := r.driver.LongPress(ctx, *a.X, *a.Y, durationOr(a.Duration, DefaultLongPress))
		res.Element = &el
		return clearOnError(err, func() { res.Element = nil })

	case ActionDrag:
		el, err := r.driver.Drag(ctx, *a.X, *a.Y, directionOr(a.Direction), intOr(a.Distance, DefaultDistance))
		res.Element = &el
		return clearOnError(err, func() { res.Element = nil })

	case ActionBack:
		return r.driver.Back(ctx)

	case ActionWait:
		return sleepContext(ctx, *a.Duration)

	case ActionScreenshot:
		png, err := r.driver.Screenshot(ctx)
		if err != nil {
			return err
		}
		if a.Path == "" {
			res.Screenshot = fmt.Sprintf("%d bytes", len(png))
			return nil
		}
		path, err := writeScreenshot(a.Path, envID, png)
		if err != nil {
			return err
		}
		res.Screenshot = path
		return nil

	case ActionState:
		state, err := r.driver.GetState(ctx)
		res.State = &state
		return clearOnError(err, func() { res.State = nil })

	case ActionElementInfo:
		if a.Selector != "" {
			match, err := r.driver.GetElementInfoBySelector(ctx, a.Selector)
			res.Match = &match
			return clearOnError(err, func() { res.Match = nil })
		}
		info, err := r.driver.GetElementInfo(ctx, *a.X, *a.Y)
		res.Info = &info
		return clearOnError(err, func() { res.Info = nil })
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// writeScreenshot writes png to path, replacing {env} with the environment ID
// so parallel runs do not overwrite each other.
func writeScreenshot(path, envID string, png []byte) (string, error) {
	expanded, err := expandPath(strings.ReplaceAll(path, "{env}", envID))
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(expanded); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create screenshot directory: %w", err)
		}
	}
	if err := os.WriteFile(expanded, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return expanded, nil
}

func clearOnError(err error, clear func()) error {
	if err != nil {
		clear()
	}
	return err
}

func durationOr(d *time.Duration, fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}
	return *d
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func directionOr(d string) string {
	if d == "" {
		return DefaultDirection
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
