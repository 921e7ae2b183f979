// Package runner drives one crawl run: list events, filter them, and hand each
// one to the reconciler in order.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/fetch"
	"github.com/JakeFAU/tradefair-crawler/internal/metrics"
	"github.com/JakeFAU/tradefair-crawler/internal/reconcile"
	"github.com/JakeFAU/tradefair-crawler/internal/tradefair"
)

// Stats aggregates one run.
type Stats struct {
	RunID       string `json:"run_id"`
	EventsFound int    `json:"events_found"`
	// EventsFiltered counts events dropped by the date and slug filters.
	EventsFiltered int           `json:"events_filtered"`
	Processed      int           `json:"processed"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	CompaniesAdded int           `json:"companies_added"`
	InsertErrors   int           `json:"insert_errors"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// EventSource lists the events currently published by the site.
type EventSource interface {
	ListEvents(ctx context.Context) []tradefair.Event
}

// EventReconciler persists the exhibitors of one event.
type EventReconciler interface {
	BeginRun(ctx context.Context) int64
	Reconcile(ctx context.Context, ev tradefair.Event) reconcile.Result
}

// Recorder receives per-event and per-run observations.
type Recorder interface {
	ObserveEvent(outcome string, added, insertErrors int)
	ObserveRun(status string, duration time.Duration, finished time.Time)
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies the current time; its location defines "today".
type Clock interface {
	Now() time.Time
}

// Config selects events and paces the run.
type Config struct {
	FutureOnly bool
	EventSlugs []string
	// DelayBetweenEvents is the pause between two reconciled events.
	DelayBetweenEvents time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithIDGenerator overrides how run ids are minted.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) {
		if g != nil {
			r.ids = g
		}
	}
}

// uuidV7 mints time-ordered run ids.
type uuidV7 struct{}

func (uuidV7) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Runner executes crawl runs. Runs must not overlap; callers serialize them.
type Runner struct {
	events     EventSource
	reconciler EventReconciler
	cfg        Config
	slugs      map[string]struct{}
	clock      Clock
	ids        IDGenerator
	recorder   Recorder
	logger     *zap.Logger
}

// New builds a Runner. Run ids default to UUIDv7.
func New(events EventSource, reconciler EventReconciler, cfg Config, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		events:     events,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      wallClock{},
		ids:        uuidV7{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(cfg.EventSlugs) > 0 {
		r.slugs = make(map[string]struct{}, len(cfg.EventSlugs))
		for _, slug := range cfg.EventSlugs {
			if slug = strings.ToLower(strings.TrimSpace(slug)); slug != "" {
				r.slugs[slug] = struct{}{}
			}
		}
	}
	return r, nil
}

// Run performs one crawl. Per-event failures are counted in Stats, not
// returned; the error reports setup failures and cancellation.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Stats{}, fmt.Errorf("run id: %w", err)
	}
	stats := Stats{RunID: runID, StartedAt: r.clock.Now()}
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("run started")

	runErr := r.run(ctx, logger, &stats)

	finished := r.clock.Now()
	stats.Duration = finished.Sub(stats.StartedAt)
	status := metrics.RunSucceeded
	if runErr != nil {
		status = metrics.RunFailed
	}
	if r.recorder != nil {
		r.recorder.ObserveRun(status, stats.Duration, finished)
	}
	logger.Info("run finished",
		zap.String("status", status),
		zap.Int("events_found", stats.EventsFound),
		zap.Int("events_filtered", stats.EventsFiltered),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("companies_added", stats.CompaniesAdded),
		zap.Int("insert_errors", stats.InsertErrors),
		zap.Duration("duration", stats.Duration),
	)
	return stats, runErr
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, stats *Stats) error {
	r.reconciler.BeginRun(ctx)

	events := r.events.ListEvents(ctx)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	stats.EventsFound = len(events)
	selected := r.filter(events, logger)
	stats.EventsFiltered = len(events) - len(selected)
	logger.Info("events selected",
		zap.Int("found", len(events)),
		zap.Int("selected", len(selected)),
	)

	for i, ev := range selected {
		if i > 0 {
			if err := fetch.Pause(ctx, r.cfg.DelayBetweenEvents); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}
		}
		res := r.reconciler.Reconcile(ctx, ev)
		switch res.Outcome {
		case reconcile.Processed:
			stats.Processed++
		case reconcile.SkippedEmpty, reconcile.SkippedUpToDate:
			stats.Skipped++
		default:
			stats.Failed++
		}
		stats.CompaniesAdded += res.Added
		stats.InsertErrors += res.InsertErrors
		if r.recorder != nil {
			r.recorder.ObserveEvent(string(res.Outcome), res.Added, res.InsertErrors)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}
	}
	return nil
}

// filter applies the slug allow-list and the future-only rule. Events whose
// date cannot be parsed normalize to today and are kept.
func (r *Runner) filter(events []tradefair.Event, logger *zap.Logger) []tradefair.Event {
	now := r.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := make([]tradefair.Event, 0, len(events))
	for _, ev := range events {
		if r.slugs != nil {
			if _, ok := r.slugs[strings.ToLower(ev.Slug)]; !ok {
				logger.Debug("event not in allow-list", zap.String("event", ev.Name), zap.String("slug", ev.Slug))
				continue
			}
		}
		if r.cfg.FutureOnly {
			if date := tradefair.NormalizeDate(ev.DateRange, now); date.Before(today) {
				logger.Debug("past event dropped",
					zap.String("event", ev.Name),
					zap.String("date_range", ev.DateRange),
				)
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
