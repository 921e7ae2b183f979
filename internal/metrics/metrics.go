// Package metrics exposes Prometheus collectors for crawl runs and the
// operator HTTP server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Metrics owns a private registry so tests and repeated app builds never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	companiesAdded prometheus.Counter
	insertErrors   prometheus.Counter
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastSuccess    prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradefair_events_total",
				Help: "Events reconciled, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		companiesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradefair_companies_added_total",
			Help: "Companies inserted across all events.",
		}),
		insertErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradefair_company_insert_errors_total",
			Help: "Company inserts that failed and were skipped.",
		}),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradefair_runs_total",
				Help: "Crawl runs, labeled by status.",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradefair_run_duration_seconds",
			Help:    "Wall time of a crawl run.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradefair_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// RegisterRuntime adds the Go and process collectors. Only long-running
// processes call it; pushed batch metrics stay free of runtime series.
func (m *Metrics) RegisterRuntime() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registerer lets other packages add their collectors to this registry.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent records the outcome of one reconciled event.
func (m *Metrics) ObserveEvent(outcome string, added, insertErrors int) {
	m.events.WithLabelValues(outcome).Inc()
	if added > 0 {
		m.companiesAdded.Add(float64(added))
	}
	if insertErrors > 0 {
		m.insertErrors.Add(float64(insertErrors))
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, duration time.Duration, finished time.Time) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	if status == RunSucceeded {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Push sends the registry to a Prometheus Pushgateway, replacing the metrics
// previously pushed under job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
