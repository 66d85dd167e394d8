package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/observability"
	"github.com/xkilldash9x/wobdriver/internal/plan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates the `run` command.
func newRunCmd() *cobra.Command {
	var (
		envs      []string
		planPath  string
		output    string
		parallel  int
		overrides overrideFlags
	)

	runCmd := &cobra.Command{
		Use:   "run --plan <file> --env <id> [--env <id>...]",
		Short: "Runs a gesture plan against one or more environments",
		Long: `Loads each environment in its own browser, runs the plan inside an
evaluation cycle when the plan asks for one, and writes one JSON report per
environment. Environments run concurrently up to --parallel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.SetPlanParallel(parallel)
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid flags: %w", err)
				}
			}
			if output == "" {
				output = cfg.Plan().OutputPath
			}

			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}
			return runPlan(ctx, logger, cfg, envs, p, output, cmd.OutOrStdout(), newAutomationSession)
		},
	}

	runCmd.Flags().StringSliceVarP(&envs, "env", "e", nil, "Environment ID to run (repeatable). Defaults to environment.env_id.")
	runCmd.Flags().StringVarP(&planPath, "plan", "p", "", "Plan file (required)")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "Report file. If unset, reports are printed to stdout.")
	runCmd.Flags().IntVarP(&parallel, "parallel", "j", 1, "Environments to run at once. (Overrides config/env)")
	overrides.register(runCmd)
	_ = runCmd.MarkFlagRequired("plan")

	return runCmd
}

// runPlan runs p against every environment and writes the reports. It returns
// an error when any environment failed, after the reports have been written.
func runPlan(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	envs []string,
	p *plan.Plan,
	output string,
	stdout io.Writer,
	newSession sessionFactory,
) error {
	if len(envs) == 0 {
		if cfg.Environment().EnvID == "" && cfg.Environment().URL == "" {
			return fmt.Errorf("no environment given: use --env or set environment.env_id")
		}
		envs = []string{cfg.Environment().EnvID}
	}
	if cfg.Environment().URL != "" && len(envs) > 1 {
		return fmt.Errorf("environment.url pins a single page; it cannot be combined with %d environments", len(envs))
	}

	logger.Info("Starting plan run.",
		zap.String("plan", p.Name),
		zap.Strings("environments", envs),
		zap.Int("parallel", cfg.Plan().Parallel),
		zap.String("mode", cfg.Channel().Mode),
	)

	reports := make([]*plan.Report, len(envs))
	var g errgroup.Group
	g.SetLimit(cfg.Plan().Parallel)
	for i, envID := range envs {
		g.Go(func() error {
			reports[i] = runEnvironment(ctx, logger, forEnvironment(cfg, envID), envID, p, newSession)
			return nil
		})
	}
	_ = g.Wait()

	if err := writeReports(reports, output, stdout); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d environments did not pass", failed, len(reports))
	}
	logger.Info("Plan run completed.", zap.Int("environments", len(reports)))
	return nil
}

// runEnvironment owns one browser for the duration of one plan run.
func runEnvironment(ctx context.Context, logger *zap.Logger, cfg *config.Config, envID string, p *plan.Plan, newSession sessionFactory) *plan.Report {
	envLogger := observability.ForEnvironment(logger, envID)

	s, err := newSession(cfg, envLogger)
	if err != nil {
		return &plan.Report{EnvID: envID, Plan: p.Name, Error: err.Error()}
	}
	if err := s.Start(ctx); err != nil {
		envLogger.Error("Failed to load environment.", zap.Error(err))
		closeSession(ctx, s, envLogger)
		return &plan.Report{EnvID: envID, Plan: p.Name, Error: fmt.Sprintf("failed to load environment: %v", err)}
	}
	defer closeSession(ctx, s, envLogger)

	return plan.NewRunner(s, cfg.Plan().ActionsPerSecond, envLogger).Run(ctx, envID, p)
}

func writeReports(reports []*plan.Report, output string, stdout io.Writer) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err := stdout.Write(data)
		return err
	}
	path, err := homedir.Expand(output)
	if err != nil {
		return fmt.Errorf("failed to expand output path: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	return nil
}
