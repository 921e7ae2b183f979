package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/api"
	"github.com/JakeFAU/tradefair-crawler/internal/app"
	"github.com/JakeFAU/tradefair-crawler/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// newScheduleCmd creates the 'schedule' subcommand: a long-running process
// that crawls on a cron schedule and serves health and metrics endpoints.
func newScheduleCmd() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Crawl on a cron schedule until interrupted",
		Long: `Runs the crawler on schedule.cron (standard five-field syntax) and exposes
/healthz, /readyz, /metrics and /v1/runs on server.port. Runs never overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, app.Postgres)
			if err != nil {
				return err
			}
			return runScheduler(cmd.Context(), a, runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "start a run immediately instead of waiting for the schedule")
	return cmd
}

func runScheduler(ctx context.Context, a *app.App, runNow bool) error {
	logger := a.Logger
	a.Metrics.RegisterRuntime()

	sched, err := scheduler.New(a.Config.Schedule.Cron, a.RunOnce, logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var srv *http.Server
	if port := a.Config.Server.Port; port > 0 {
		handler := api.NewServer(sched, a.DB, api.Options{
			Metrics:    a.Metrics.Handler(),
			Instrument: a.Metrics.Middleware,
			APIKey:     a.Config.Server.APIKey,
			Logger:     logger.Named("api"),
		}).Handler()
		srv = &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(port)),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	sched.Start(ctx)
	if runNow {
		if err := sched.Trigger(); err != nil {
			logger.Warn("initial run not started", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("shutdown initiated")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}
	sched.Stop()
	logger.Info("shutdown complete")
	return nil
}
