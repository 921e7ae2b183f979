// Package scheduler triggers crawl runs on a cron schedule or on demand and
// guarantees that at most one run is active per process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/runner"
)

var (
	// ErrRunning is returned by Trigger while a run is in progress.
	ErrRunning = errors.New("run already in progress")
	// ErrStopped is returned by Trigger once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")
)

// RunFunc performs one crawl run.
type RunFunc func(ctx context.Context) (runner.Stats, error)

// Status describes the most recent finished run.
type Status struct {
	Stats      runner.Stats `json:"stats"`
	Error      string       `json:"error,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Scheduler owns the cron loop. The zero value is not usable; call New.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	stopped bool
	last    *Status
	wg      sync.WaitGroup
}

// New validates spec (standard five-field cron syntax) and binds run to it.
func New(spec string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	cronLogger := zapCronLogger{logger: logger.Named("cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		spec:   spec,
		run:    run,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.scheduled); err != nil {
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	return s, nil
}

// Start begins firing runs. Runs use ctx, so canceling it aborts an active run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("schedule", s.spec),
		zap.Time("next_run", s.Next()),
	)
}

// Stop prevents new runs and waits for an active one to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Next returns when the cron job fires next, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Trigger starts a run in the background unless one is already active.
func (s *Scheduler) Trigger() error {
	ctx, err := s.acquire()
	if err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		s.execute(ctx, "manual")
	}()
	return nil
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the status of the most recent finished run.
func (s *Scheduler) Last() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Status{}, false
	}
	return *s.last, true
}

func (s *Scheduler) scheduled() {
	ctx, err := s.acquire()
	if err != nil {
		s.logger.Warn("scheduled run skipped", zap.Error(err))
		return
	}
	defer s.wg.Done()
	s.execute(ctx, "cron")
}

// acquire marks a run active and registers it with the wait group. The caller
// must call wg.Done when the run returns.
func (s *Scheduler) acquire() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if s.running {
		return nil, ErrRunning
	}
	s.running = true
	s.wg.Add(1)
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, nil
}

func (s *Scheduler) execute(ctx context.Context, trigger string) {
	s.logger.Info("run triggered", zap.String("trigger", trigger))
	stats, err := s.run(ctx)

	status := Status{Stats: stats, FinishedAt: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
		s.logger.Error("run failed", zap.String("run_id", stats.RunID), zap.Error(err))
	}

	s.mu.Lock()
	s.running = false
	s.last = &status
	s.mu.Unlock()
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
