package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/internal/automation"
	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/plan"
)

// closeTimeout bounds browser teardown after a run.
const closeTimeout = 15 * time.Second

// session is one started environment page.
type session interface {
	plan.Driver
	Scale() float64
	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// sessionFactory creates an unstarted session for one environment.
type sessionFactory func(cfg config.Interface, logger *zap.Logger) (session, error)

func newAutomationSession(cfg config.Interface, logger *zap.Logger) (session, error) {
	a, err := automation.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// overrideFlags are the config overrides shared by run and inspect.
type overrideFlags struct {
	mode     string
	quality  string
	headless bool
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.mode, "mode", "", "Command channel mode: 'direct' or 'relayed'. (Overrides config/env)")
	cmd.Flags().StringVar(&o.quality, "quality", "", "Screenshot quality: 'low' or 'high'. (Overrides config/env)")
	cmd.Flags().BoolVar(&o.headless, "headless", true, "Run the browser headless. (Overrides config/env)")
}

// apply copies explicitly set flags into cfg and revalidates it.
func (o *overrideFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("mode") {
		cfg.SetChannelMode(o.mode)
	}
	if cmd.Flags().Changed("quality") {
		cfg.SetScreenshotQuality(o.quality)
	}
	if cmd.Flags().Changed("headless") {
		cfg.SetBrowserHeadless(o.headless)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// forEnvironment returns a copy of cfg pointed at one environment.
func forEnvironment(cfg *config.Config, envID string) *config.Config {
	c := *cfg
	c.SetEnvironmentID(envID)
	return &c
}

// closeSession tears s down on a context detached from ctx's cancellation.
func closeSession(ctx context.Context, s session, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		logger.Warn("Error during browser shutdown.", zap.Error(err))
	}
}
