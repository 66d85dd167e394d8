// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/internal/browser/stealth"
	"github.com/xkilldash9x/wobdriver/internal/channel"
	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

const readyPollInterval = 100 * time.Millisecond

// Session is one Chrome instance with a single tab hosting an environment.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	isClosed bool
}

var _ channel.Evaluator = (*Session)(nil)

// Launch starts Chrome, opens a tab and applies device emulation and the
// stealth persona. The browser lives until Close, independent of ctx.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(cfg)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	s := &Session{
		cfg:         cfg,
		logger:      log,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	log.Info("Launching browser.", zap.Bool("headless", cfg.Headless))
	if err := s.start(ctx); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	if err := s.runActions(ctx, s.emulationTasks()); err != nil {
		if ctx.Err() != nil {
			_ = s.Close(context.Background())
			return nil, ctx.Err()
		}
		log.Warn("Could not apply device emulation.", zap.Error(err))
	}

	if err := s.runActions(ctx, stealth.Apply(stealth.PersonaFromConfig(cfg), log)); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to apply browser persona: %w", err)
	}
	return s, nil
}

// start allocates the browser. The first Run on a chromedp context binds the
// browser process to that context, so it must be the session context rather
// than ctx.
func (s *Session) start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Session) emulationTasks() chromedp.Tasks {
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(
			int64(s.cfg.Viewport.Width),
			int64(s.cfg.Viewport.Height),
			s.cfg.DeviceScaleFactor,
			s.cfg.Mobile,
		),
	}
	if s.cfg.Touch {
		tasks = append(tasks, emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5))
	}
	return tasks
}

// Navigate loads url, waits for the document to report ready and then lets
// the page settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.runActions(ctx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	return sleepContext(ctx, s.cfg.Settle)
}

// WaitReady polls until the document is complete with a populated body, or
// the configured ready timeout elapses.
func (s *Session) WaitReady(ctx context.Context) error {
	var ready bool
	err := s.runActions(ctx, chromedp.Poll(gesture.ReadyStateScript, &ready,
		chromedp.WithPollingInterval(readyPollInterval),
		chromedp.WithPollingTimeout(s.cfg.ReadyTimeout),
	))
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, chromedp.ErrPollingTimeout):
		return fmt.Errorf("page not ready after %s", s.cfg.ReadyTimeout)
	default:
		return fmt.Errorf("failed to wait for page readiness: %w", err)
	}
}

// Evaluate runs expression in the top document, awaiting a returned promise,
// and returns the JSON encoded value.
func (s *Session) Evaluate(ctx context.Context, expression string) ([]byte, error) {
	var raw []byte
	err := s.runActions(ctx, chromedp.Evaluate(expression, &raw, awaitPromise))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// InjectScriptPersistently adds a script that runs on every new document in
// the tab, including embedded frames.
func (s *Session) InjectScriptPersistently(ctx context.Context, script string) error {
	var scriptID page.ScriptIdentifier
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		scriptID, err = page.AddScriptToEvaluateOnNewDocument(script).Do(c)
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("could not inject persistent script: %w", err)
	}
	s.logger.Debug("Injected persistent script.", zap.String("scriptID", string(scriptID)))
	return nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Info("Closing browser session.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	s.allocCancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// runActions executes actions against the tab, bounded by both the session
// lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}
