package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/observability"
)

// inspectOptions selects what inspect reports beyond the page state.
type inspectOptions struct {
	envID      string
	url        string
	x, y       float64
	hasPoint   bool
	selector   string
	screenshot string
}

// inspection is the JSON document printed by inspect.
type inspection struct {
	EnvID      string                 `json:"env_id,omitempty"`
	Scale      float64                `json:"scale"`
	State      schemas.PageState      `json:"state"`
	Element    *schemas.ElementInfo   `json:"element,omitempty"`
	Match      *schemas.SelectorMatch `json:"match,omitempty"`
	Screenshot string                 `json:"screenshot,omitempty"`
}

// newInspectCmd creates the `inspect` command.
func newInspectCmd() *cobra.Command {
	var (
		opts      inspectOptions
		overrides overrideFlags
	)

	inspectCmd := &cobra.Command{
		Use:   "inspect --env <id> [--x <x> --y <y>] [--selector <css>]",
		Short: "Loads an environment and prints its state and element details",
		Long: `Loads one environment and prints the page state as JSON. With --x and --y
the element at those screenshot coordinates is described as well; with
--selector the first matching element is.`,
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

			xSet, ySet := cmd.Flags().Changed("x"), cmd.Flags().Changed("y")
			if xSet != ySet {
				return fmt.Errorf("--x and --y must be given together")
			}
			opts.hasPoint = xSet
			if opts.hasPoint && opts.selector != "" {
				return fmt.Errorf("use either --x/--y or --selector, not both")
			}
			return runInspect(ctx, logger, cfg, opts, cmd.OutOrStdout(), newAutomationSession)
		},
	}

	inspectCmd.Flags().StringVarP(&opts.envID, "env", "e", "", "Environment ID. Defaults to environment.env_id.")
	inspectCmd.Flags().StringVar(&opts.url, "url", "", "Load this page instead of an environment ID.")
	inspectCmd.Flags().Float64Var(&opts.x, "x", 0, "Screenshot x coordinate of the element to describe.")
	inspectCmd.Flags().Float64Var(&opts.y, "y", 0, "Screenshot y coordinate of the element to describe.")
	inspectCmd.Flags().StringVarP(&opts.selector, "selector", "s", "", "CSS selector of the element to describe.")
	inspectCmd.Flags().StringVar(&opts.screenshot, "screenshot", "", "Also save a PNG screenshot to this path.")
	overrides.register(inspectCmd)

	return inspectCmd
}

func runInspect(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	opts inspectOptions,
	stdout io.Writer,
	newSession sessionFactory,
) error {
	envID := opts.envID
	if envID == "" {
		envID = cfg.Environment().EnvID
	}
	envCfg := forEnvironment(cfg, envID)
	if opts.url != "" {
		envCfg.SetEnvironmentURL(opts.url)
	}
	envLogger := observability.ForEnvironment(logger, envID)

	s, err := newSession(envCfg, envLogger)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		closeSession(ctx, s, envLogger)
		return fmt.Errorf("failed to load environment: %w", err)
	}
	defer closeSession(ctx, s, envLogger)

	out := inspection{EnvID: envID, Scale: s.Scale()}

	if out.State, err = s.GetState(ctx); err != nil {
		return err
	}
	switch {
	case opts.hasPoint:
		info, err := s.GetElementInfo(ctx, opts.x, opts.y)
		if err != nil {
			return err
		}
		out.Element = &info
	case opts.selector != "":
		match, err := s.GetElementInfoBySelector(ctx, opts.selector)
		if err != nil {
			return err
		}
		out.Match = &match
	}

	if opts.screenshot != "" {
		png, err := s.Screenshot(ctx)
		if err != nil {
			return err
		}
		path, err := homedir.Expand(opts.screenshot)
		if err != nil {
			return fmt.Errorf("failed to expand screenshot path: %w", err)
		}
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}
		out.Screenshot = path
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}
