package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts fetch attempts. A nil registerer yields unregistered collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics registers fetch collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradefair_fetch_requests_total",
			Help: "HTTP requests issued by the fetch client, by method and outcome.",
		}, []string{"method", "outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradefair_fetch_retries_total",
			Help: "Retry attempts after a transient failure.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradefair_fetch_duration_seconds",
			Help:    "Latency of single fetch attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
