// Package reconcile brings the stored exhibitors of one event in line with the
// live listing. Only missing companies are inserted; nothing is updated or
// deleted.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/fetch"
	"github.com/JakeFAU/tradefair-crawler/internal/parser"
	"github.com/JakeFAU/tradefair-crawler/internal/store"
	"github.com/JakeFAU/tradefair-crawler/internal/tradefair"
)

// Outcome classifies what happened to one event.
type Outcome string

// Event outcomes.
const (
	SkippedEmpty    Outcome = "skipped_empty"
	SkippedUpToDate Outcome = "skipped_up_to_date"
	Processed       Outcome = "processed"
	Failed          Outcome = "failed"
)

// Result summarizes the reconciliation of one event.
type Result struct {
	Event        string
	Outcome      Outcome
	Expected     int
	Existing     int
	Added        int
	InsertErrors int
	Err          error
}

// Site is the part of tradefair.Site the reconciler drives.
type Site interface {
	ProbeCount(ctx context.Context, exhibitorsURL string) (int, *tradefair.CachedPage)
	ListExhibitors(ctx context.Context, exhibitorsURL string, cached *tradefair.CachedPage) []tradefair.Exhibitor
}

// DetailFetcher downloads exhibitor detail pages.
type DetailFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// DetailParser turns a detail page into company fields.
type DetailParser interface {
	Parse(html, pageURL string) (*parser.Details, bool)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Config holds the dimension defaults applied to new rows.
type Config struct {
	DataSourceName      string
	DataSourceWWW       string
	DefaultDataSourceID int64
	DefaultCountryID    int64
	DefaultIndustryID   int64
	// DetailDelay is the pause before each detail page fetch.
	DetailDelay time.Duration
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithDetails enables detail page enrichment of new companies.
func WithDetails(f DetailFetcher, p DetailParser) Option {
	return func(r *Reconciler) {
		r.details = f
		r.parser = p
	}
}

// Reconciler persists the exhibitors of events. It is not safe for
// concurrent use; one run drives it from a single goroutine.
type Reconciler struct {
	site    Site
	repo    store.Repository
	cfg     Config
	clock   Clock
	logger  *zap.Logger
	details DetailFetcher
	parser  DetailParser

	begun        bool
	dataSourceID int64
	countries    map[string]int64
}

// New builds a Reconciler.
func New(site Site, repo store.Repository, cfg Config, logger *zap.Logger, opts ...Option) (*Reconciler, error) {
	if site == nil {
		return nil, fmt.Errorf("site is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		site:   site,
		repo:   repo,
		cfg:    cfg,
		clock:  wallClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BeginRun resolves the data source id for the run and clears run-scoped
// caches. A lookup failure falls back to the configured default id.
func (r *Reconciler) BeginRun(ctx context.Context) int64 {
	r.countries = make(map[string]int64)
	id, err := r.repo.EnsureDataSource(ctx, r.cfg.DataSourceName, r.cfg.DataSourceWWW)
	if err != nil {
		r.logger.Warn("data source unavailable, using default id",
			zap.String("data_source", r.cfg.DataSourceName),
			zap.Int64("default_id", r.cfg.DefaultDataSourceID),
			zap.Error(err),
		)
		id = r.cfg.DefaultDataSourceID
	}
	r.dataSourceID = id
	r.begun = true
	return id
}

// Reconcile processes one event: ensure its row, compare stored and expected
// exhibitor counts, and insert the companies that are missing.
func (r *Reconciler) Reconcile(ctx context.Context, ev tradefair.Event) Result {
	if !r.begun {
		r.BeginRun(ctx)
	}
	res := Result{Event: ev.Name}
	logger := r.logger.With(zap.String("event", ev.Name), zap.String("url", ev.ExhibitorsURL))

	eventID, err := r.repo.EnsureEvent(ctx, store.Event{
		Name:         ev.Name,
		Date:         tradefair.NormalizeDate(ev.DateRange, r.clock.Now()),
		WWW:          ev.URL,
		DataSourceID: r.dataSourceID,
	})
	if err != nil {
		return r.fail(logger, res, fmt.Errorf("ensure event: %w", err))
	}

	existing, err := r.repo.CountCompanies(ctx, eventID)
	if err != nil {
		return r.fail(logger, res, fmt.Errorf("count companies: %w", err))
	}
	res.Existing = existing

	expected, cached := r.site.ProbeCount(ctx, ev.ExhibitorsURL)
	res.Expected = expected
	if expected == 0 {
		res.Outcome = SkippedEmpty
		logger.Info("no exhibitors listed")
		return res
	}
	if existing >= expected {
		res.Outcome = SkippedUpToDate
		logger.Info("event up to date", zap.Int("stored", existing), zap.Int("expected", expected))
		return res
	}

	exhibitors := r.site.ListExhibitors(ctx, ev.ExhibitorsURL, cached)
	seen, err := r.repo.CompanyNames(ctx, eventID)
	if err != nil {
		return r.fail(logger, res, fmt.Errorf("load company names: %w", err))
	}

	for _, ex := range exhibitors {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}
		name := store.Truncate(ex.Name, store.MaxCompanyName)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		company := r.newCompany(ctx, eventID, name, ex, logger)
		if err := r.repo.InsertCompany(ctx, company); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				logger.Debug("company already stored", zap.String("company", name))
				continue
			}
			res.InsertErrors++
			logger.Error("insert company failed", zap.String("company", name), zap.Error(err))
			continue
		}
		res.Added++
	}

	res.Outcome = Processed
	if res.Err != nil {
		res.Outcome = Failed
	}
	logger.Info("event reconciled",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("listed", len(exhibitors)),
		zap.Int("added", res.Added),
		zap.Int("insert_errors", res.InsertErrors),
	)
	return res
}

func (r *Reconciler) fail(logger *zap.Logger, res Result, err error) Result {
	res.Outcome = Failed
	res.Err = err
	logger.Error("event failed", zap.Error(err))
	return res
}

func (r *Reconciler) newCompany(
	ctx context.Context,
	eventID int64,
	name string,
	ex tradefair.Exhibitor,
	logger *zap.Logger,
) store.Company {
	company := store.Company{
		EventID:          eventID,
		IndustryID:       r.cfg.DefaultIndustryID,
		CountryID:        r.countryID(ctx, ex.Country, logger),
		Name:             name,
		CompanyEventLink: ex.DetailsURL,
		AddedAt:          r.clock.Now(),
	}
	r.enrich(ctx, &company, ex.DetailsURL, logger)
	return company
}

// countryID resolves a country name lazily, caching ids for the run. Empty
// names and lookup failures map to the default id.
func (r *Reconciler) countryID(ctx context.Context, country string, logger *zap.Logger) int64 {
	name := store.Truncate(country, store.MaxCountryName)
	if name == "" {
		return r.cfg.DefaultCountryID
	}
	if id, ok := r.countries[name]; ok {
		return id
	}
	id, err := r.repo.EnsureCountry(ctx, name)
	if err != nil {
		logger.Warn("country lookup failed, using default",
			zap.String("country", name),
			zap.Int64("default_id", r.cfg.DefaultCountryID),
			zap.Error(err),
		)
		return r.cfg.DefaultCountryID
	}
	r.countries[name] = id
	return id
}

// enrich fills contact fields from the exhibitor's detail page when enabled.
func (r *Reconciler) enrich(ctx context.Context, company *store.Company, detailsURL string, logger *zap.Logger) {
	if r.details == nil || r.parser == nil || detailsURL == "" {
		return
	}
	if err := fetch.Pause(ctx, r.cfg.DetailDelay); err != nil {
		return
	}
	page, err := r.details.FetchText(ctx, detailsURL)
	if err != nil {
		logger.Debug("detail page unavailable", zap.String("details_url", detailsURL), zap.Error(err))
		return
	}
	found, ok := r.parser.Parse(page, detailsURL)
	if !ok {
		return
	}
	merged := parser.Details{
		Description: company.Description,
		Address:     company.Address,
		Phone:       company.Phone,
		Email:       company.Email,
		WWW:         company.WWW,
	}
	parser.Merge(&merged, *found)
	company.Description = merged.Description
	company.Address = merged.Address
	company.Phone = merged.Phone
	company.Email = merged.Email
	company.WWW = merged.WWW
}
