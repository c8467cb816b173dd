// Package cmd defines the build-progress command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/build-progress/internal/app"
	"github.com/JakeFAU/build-progress/internal/config"
	"github.com/JakeFAU/build-progress/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configFile string
	projectDir string
	logLevel   string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "build-progress",
		Short: "Estimates bundler build progress from lifecycle hooks.",
		Long: `build-progress turns a bundler's lifecycle hooks into a completion
estimate. The first build counts the project's source files; later builds
use the totals saved by the previous successful build.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.projectDir != "" {
				cfg.Project.Dir = opts.projectDir
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}

			logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, logger, app.Options{Output: cmd.ErrOrStderr()})
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&opts.projectDir, "project", "", "project directory (overrides project.dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (overrides logging.level)")

	cmd.AddCommand(newConsumeCmd(), newServeCmd(), newCacheCmd(), newScanCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// withApp resolves the App for fn and shuts it down once fn returns, whether
// or not fn failed. Cobra skips post-run hooks after an error, so the
// cleanup lives here.
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			a.Close(ctx)
			_ = a.Logger().Sync()
		}()
		return fn(cmd, args, a)
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
