package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvent(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveEvent("processed", 3, 1)
	m.ObserveEvent("skipped_empty", 0, 0)
	m.ObserveEvent("processed", 2, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.events.WithLabelValues("processed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.events.WithLabelValues("skipped_empty")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.companiesAdded), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.insertErrors), 0)
}

func TestObserveRunTracksLastSuccess(t *testing.T) {
	t.Parallel()

	m := New()
	finished := time.Unix(1700000000, 0)
	m.ObserveRun(RunSucceeded, 90*time.Second, finished)
	m.ObserveRun(RunFailed, time.Second, finished.Add(time.Hour))

	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(RunSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(RunFailed)), 0)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(m.lastSuccess), 0)
}

func TestMiddlewareRecordsRoutes(t *testing.T) {
	t.Parallel()

	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/healthz", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "404")), 0)
	assert.Positive(t, testutil.CollectAndCount(m.httpDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveEvent("processed", 1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tradefair_events_total{outcome="processed"} 1`)
}

func TestPushSendsToGateway(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New()
	m.ObserveRun(RunSucceeded, time.Minute, time.Now())
	require.NoError(t, m.Push(context.Background(), gateway.URL, "tradefair_crawler"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/tradefair_crawler", path)
	assert.Contains(t, body, "tradefair_runs_total")
}

func TestPushReportsGatewayErrors(t *testing.T) {
	t.Parallel()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	err := New().Push(context.Background(), gateway.URL, "tradefair_crawler")
	require.ErrorContains(t, err, "push metrics")
}
