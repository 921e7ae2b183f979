package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tradefair-crawler/internal/config"
	"github.com/JakeFAU/tradefair-crawler/internal/storage/memory"
	"github.com/JakeFAU/tradefair-crawler/internal/storage/postgres"
)

const listingHTML = `<html><body><table>
<tr><td><a class="exhibitor-name" href="/wystawca/acme">Acme Corp</a></td><td>Polska</td><td>A-1</td></tr>
<tr><td><a class="exhibitor-name" href="/wystawca/beta">Beta SA</a></td><td>Niemcy</td><td>B-2</td></tr>
</table></body></html>`

// newFairServer serves one future event with a two-row exhibitor table.
func newFairServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"view": `<div class="event-item"><a href="/agrotech/o-targach">` +
				`<h3 class="title">Agrotech</h3><span class="date">10-12.09.2099</span></a></div>`,
		})
	})
	mux.HandleFunc("/agrotech/lista-wystawcow", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, siteURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Site.BaseURL = siteURL
	cfg.Site.EventsSearchURL = siteURL + "/api/events/search"
	cfg.Scraping.RetryDelay = time.Millisecond
	cfg.Scraping.DelayBetweenRequests = 0
	cfg.Scraping.PageDelay = 0
	cfg.DB.DSN = ""
	cfg.Metrics.PushgatewayURL = ""
	return cfg
}

func TestNewWithoutStoreBuildsScrapingSide(t *testing.T) {
	srv := newFairServer(t)
	a, err := New(context.Background(), testConfig(t, srv.URL), nil, NoStore)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Runner)
	assert.Nil(t, a.Repo)
	events := a.Site.ListEvents(context.Background())
	require.Len(t, events, 1)
	count, _ := a.Site.ProbeCount(context.Background(), events[0].ExhibitorsURL)
	assert.Equal(t, 2, count)

	_, err = a.RunOnce(context.Background())
	require.Error(t, err)
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	srv := newFairServer(t)
	_, err := New(context.Background(), testConfig(t, srv.URL), nil, Postgres)
	require.ErrorContains(t, err, "db.dsn")
}

func TestNewPostgresReportsConnectFailure(t *testing.T) {
	orig := storeFactory
	t.Cleanup(func() { storeFactory = orig })
	storeFactory = func(context.Context, postgres.Config) (*postgres.Store, error) {
		return nil, errors.New("connection refused")
	}

	srv := newFairServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.DB.DSN = "postgres://crawler@localhost:5432/leads"
	_, err := New(context.Background(), cfg, nil, Postgres)
	require.ErrorContains(t, err, "database init failed")
}

func TestNewPostgresUsesStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	orig := storeFactory
	t.Cleanup(func() { storeFactory = orig })
	var gotDSN string
	storeFactory = func(_ context.Context, cfg postgres.Config) (*postgres.Store, error) {
		gotDSN = cfg.DSN
		return postgres.NewWithPool(mock)
	}

	srv := newFairServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.DB.DSN = "postgres://crawler@localhost:5432/leads"
	a, err := New(context.Background(), cfg, nil, Postgres)
	require.NoError(t, err)

	assert.Equal(t, cfg.DB.DSN, gotDSN)
	require.NotNil(t, a.DB)
	assert.Same(t, a.DB, a.Repo)
	assert.NotNil(t, a.Runner)
	a.Close()
	assert.Nil(t, a.DB)
}

func TestRunOnceDryRunPersistsAndPushes(t *testing.T) {
	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			pushes.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	srv := newFairServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Metrics.PushgatewayURL = gateway.URL

	a, err := New(context.Background(), cfg, nil, DryRun)
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 1, stats.EventsFound)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.CompaniesAdded)
	assert.Equal(t, int32(1), pushes.Load())

	again, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)
	assert.Zero(t, again.CompaniesAdded)

	mem, ok := a.Repo.(*memory.Store)
	require.True(t, ok)
	events := mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Agrotech", events[0].Name)
	assert.Len(t, mem.Companies(events[0].ID), 2)
}
