// Package cmd defines and implements the CLI commands for the tradefair-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/app"
	"github.com/JakeFAU/tradefair-crawler/internal/config"
	"github.com/JakeFAU/tradefair-crawler/internal/logging"
)

// ctxKey namespaces values stored on the command context.
type ctxKey string

const (
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"
	appKey    ctxKey = "app"
)

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = app.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "tradefair-crawler",
		Short: "Harvests trade-fair exhibitors into a relational store.",
		Long: `tradefair-crawler lists the events published by targikielce.pl, counts
their exhibitors, and inserts the companies that are not stored yet. Runs are
incremental and safe to repeat.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logger are built here; subcommands pick the persistence
		// they need when they build the App.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},

		// Runs after a successful RunE; failures are cleaned up by Execute.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			shutdown(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// buildApp constructs the App for mode and stores it on the command context
// so shutdown can release it.
func buildApp(cmd *cobra.Command, mode app.Mode) (*app.App, error) {
	cfg, ok := cmd.Context().Value(configKey).(config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	logger := loggerFrom(cmd.Context())

	a, err := newApp(cmd.Context(), cfg, logger, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	holder, _ := cmd.Context().Value(appKey).(*appHolder)
	if holder != nil {
		holder.app = a
	}
	return a, nil
}

// appHolder lets Execute reach the App built deep inside a subcommand.
type appHolder struct {
	app *app.App
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

func shutdown(ctx context.Context) {
	if holder, ok := ctx.Value(appKey).(*appHolder); ok && holder.app != nil {
		holder.app.Close()
		holder.app = nil
	}
	_ = loggerFrom(ctx).Sync()
}

// execute runs the root command with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	holder := &appHolder{}
	ctx = context.WithValue(ctx, appKey, holder)

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if holder.app != nil {
		holder.app.Close()
	}
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
