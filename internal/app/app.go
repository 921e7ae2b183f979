// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/clock/system"
	"github.com/JakeFAU/tradefair-crawler/internal/config"
	"github.com/JakeFAU/tradefair-crawler/internal/fetch"
	"github.com/JakeFAU/tradefair-crawler/internal/metrics"
	"github.com/JakeFAU/tradefair-crawler/internal/parser"
	"github.com/JakeFAU/tradefair-crawler/internal/reconcile"
	"github.com/JakeFAU/tradefair-crawler/internal/runner"
	"github.com/JakeFAU/tradefair-crawler/internal/storage/memory"
	"github.com/JakeFAU/tradefair-crawler/internal/storage/postgres"
	"github.com/JakeFAU/tradefair-crawler/internal/store"
	"github.com/JakeFAU/tradefair-crawler/internal/tradefair"
)

// Mode selects which persistence the App is built with.
type Mode int

// Persistence modes.
const (
	// NoStore builds only the scraping side, for discover.
	NoStore Mode = iota
	// Postgres connects to db.dsn.
	Postgres
	// DryRun keeps rows in process memory and discards them on exit.
	DryRun
)

// App holds the shared, long-lived services. It is built once per command
// and released with Close.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   *system.Clock
	Fetch   *fetch.Client
	Site    *tradefair.Site
	Parsers *parser.Registry

	// DB is set only in Postgres mode.
	DB     *postgres.Store
	Repo   store.Repository
	Runner *runner.Runner
}

const pushTimeout = 10 * time.Second

// storeFactory opens the Postgres store; tests replace it.
var storeFactory = func(ctx context.Context, cfg postgres.Config) (*postgres.Store, error) {
	return postgres.New(ctx, cfg)
}

// New wires every service for mode. A failure releases whatever was already
// acquired.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, mode Mode) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Clock:   system.NewIn(cfg.Location()),
	}

	a.Fetch = fetch.New(fetch.Config{
		UserAgent:         cfg.Scraping.UserAgent,
		Timeout:           cfg.Scraping.Timeout,
		MaxRetries:        cfg.Scraping.MaxRetries,
		RetryDelay:        cfg.Scraping.RetryDelay,
		RequestsPerSecond: cfg.Scraping.MaxRequestsPerSecond,
	}, logger.Named("fetch"), fetch.NewMetrics(a.Metrics.Registerer()))

	site, err := tradefair.NewSite(a.Fetch, tradefair.Options{
		BaseURL:         cfg.Site.BaseURL,
		EventsSearchURL: cfg.Site.EventsSearchURL,
		PageDelay:       cfg.Scraping.PageDelay,
		MaxPages:        cfg.Scraping.MaxPages,
	}, logger.Named("site"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("site init failed: %w", err)
	}
	a.Site = site

	routes := make([]parser.Route, 0, len(cfg.Parsers.Mapping))
	for _, r := range cfg.Parsers.Mapping {
		routes = append(routes, parser.Route{Domain: r.Domain, Parser: r.Parser})
	}
	a.Parsers, err = parser.NewRegistry(cfg.Parsers.Default, routes, logger.Named("parser"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parser registry init failed: %w", err)
	}

	switch mode {
	case NoStore:
		return a, nil
	case DryRun:
		logger.Warn("dry run: rows are kept in memory and discarded on exit")
		a.Repo = memory.NewStore()
	case Postgres:
		if err := cfg.RequireDSN(); err != nil {
			a.Close()
			return nil, err
		}
		a.DB, err = storeFactory(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		a.Repo = a.DB
		logger.Info("database connected")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown mode %d", mode)
	}

	if err := a.buildRunner(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildRunner() error {
	cfg := a.Config
	opts := []reconcile.Option{reconcile.WithClock(a.Clock)}
	if cfg.Scraping.FetchDetails {
		opts = append(opts, reconcile.WithDetails(a.Fetch, a.Parsers))
	}
	rec, err := reconcile.New(a.Site, a.Repo, reconcile.Config{
		DataSourceName:      cfg.Site.DataSourceName,
		DataSourceWWW:       cfg.Site.BaseURL,
		DefaultDataSourceID: cfg.Mapping.DefaultDataSourceID,
		DefaultCountryID:    cfg.Mapping.DefaultCountryID,
		DefaultIndustryID:   cfg.Mapping.DefaultIndustryID,
		DetailDelay:         cfg.Scraping.DelayBetweenRequests,
	}, a.Logger.Named("reconcile"), opts...)
	if err != nil {
		return fmt.Errorf("reconciler init failed: %w", err)
	}

	a.Runner, err = runner.New(a.Site, rec, runner.Config{
		FutureOnly:         cfg.Filter.FutureOnly,
		EventSlugs:         cfg.Filter.EventSlugs,
		DelayBetweenEvents: cfg.Scraping.DelayBetweenRequests,
	}, a.Logger.Named("runner"),
		runner.WithClock(a.Clock),
		runner.WithRecorder(a.Metrics),
	)
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}
	return nil
}

// RunOnce performs one crawl run and pushes metrics when a Pushgateway is
// configured. A failed push is logged, never returned.
func (a *App) RunOnce(ctx context.Context) (runner.Stats, error) {
	if a.Runner == nil {
		return runner.Stats{}, fmt.Errorf("app built without a store")
	}
	stats, err := a.Runner.Run(ctx)
	if url := a.Config.Metrics.PushgatewayURL; url != "" {
		// Interrupted runs are pushed too.
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if perr := a.Metrics.Push(pushCtx, url, a.Config.Metrics.JobName); perr != nil {
			a.Logger.Warn("metrics push failed", zap.Error(perr))
		}
	}
	return stats, err
}

// Close releases the database pool and idle HTTP connections.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Fetch != nil {
		a.Fetch.Close()
	}
}
