// Package postgres provides the Postgres-backed store.Repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tradefair-crawler/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool used by Store; pgxmock satisfies it too.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements store.Repository on Postgres.
type Store struct {
	pool pool
}

var _ store.Repository = (*Store)(nil)

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// EnsureDataSource returns the id of the named data source, creating it if absent.
func (s *Store) EnsureDataSource(ctx context.Context, name, www string) (int64, error) {
	name = store.Truncate(name, store.MaxDataSourceName)
	const selectSQL = `SELECT id FROM data_source WHERE name = $1`
	return s.ensure(ctx, "data source", selectSQL, name,
		`INSERT INTO data_source (name, www) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, nullIfEmpty(store.Truncate(www, store.MaxEventWWW)),
	)
}

// EnsureEvent returns the id of the event named e.Name, creating it if absent.
// Existing events are never updated.
func (s *Store) EnsureEvent(ctx context.Context, e store.Event) (int64, error) {
	e = e.Normalized()
	if e.Name == "" {
		return 0, fmt.Errorf("event name is required")
	}
	const selectSQL = `SELECT id FROM event WHERE name = $1`
	return s.ensure(ctx, "event", selectSQL, e.Name,
		`INSERT INTO event (name, event_date, www, data_source_id) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
		e.Name, e.Date, nullIfEmpty(e.WWW), e.DataSourceID,
	)
}

// EnsureCountry returns the id of the named country, creating it if absent.
func (s *Store) EnsureCountry(ctx context.Context, name string) (int64, error) {
	name = store.Truncate(name, store.MaxCountryName)
	if name == "" {
		return 0, fmt.Errorf("country name is required")
	}
	const selectSQL = `SELECT id FROM country WHERE name = $1`
	return s.ensure(ctx, "country", selectSQL, name,
		`INSERT INTO country (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		name,
	)
}

// CountCompanies returns how many companies are stored for the event.
func (s *Store) CountCompanies(ctx context.Context, eventID int64) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM company WHERE event_id = $1`, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count companies for event %d: %w", eventID, err)
	}
	return count, nil
}

// CompanyNames returns the stored company names of the event.
func (s *Store) CompanyNames(ctx context.Context, eventID int64) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM company WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("load company names for event %d: %w", eventID, err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan company name: %w", err)
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company names: %w", err)
	}
	return names, nil
}

// InsertCompany stores c. A name already stored for the event yields store.ErrDuplicate.
func (s *Store) InsertCompany(ctx context.Context, c store.Company) error {
	c = c.Normalized()
	if c.Name == "" {
		return fmt.Errorf("company name is required")
	}
	addedAt := c.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO company (
	event_id,
	industry_id,
	name,
	description,
	address,
	country_id,
	phone,
	email,
	www,
	company_event_link,
	add_date_time
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (event_id, name) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		c.EventID,
		c.IndustryID,
		c.Name,
		nullIfEmpty(c.Description),
		nullIfEmpty(c.Address),
		c.CountryID,
		nullIfEmpty(c.Phone),
		nullIfEmpty(c.Email),
		nullIfEmpty(c.WWW),
		nullIfEmpty(c.CompanyEventLink),
		addedAt,
	)
	if err != nil {
		return fmt.Errorf("insert company %q: %w", c.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert company %q: %w", c.Name, store.ErrDuplicate)
	}
	return nil
}

// ensure looks a row up by key, inserts it when missing and re-reads its id.
// Inserts skip RETURNING; the id always comes from the second lookup.
func (s *Store) ensure(ctx context.Context, kind, selectSQL, key, insertSQL string, insertArgs ...any) (int64, error) {
	id, err := s.selectID(ctx, selectSQL, key)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("lookup %s %q: %w", kind, key, err)
	}
	if _, err := s.pool.Exec(ctx, insertSQL, insertArgs...); err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", kind, key, err)
	}
	id, err = s.selectID(ctx, selectSQL, key)
	if err != nil {
		return 0, fmt.Errorf("reload %s %q: %w", kind, key, err)
	}
	return id, nil
}

func (s *Store) selectID(ctx context.Context, query, key string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, query, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
