package reporting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the Runner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	slowQueries  *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewMetrics registers the report collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "report_cache_lookups_total",
			Help: "Report cache lookups by result (hit or miss).",
		}, []string{"report", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "report_compute_duration_seconds",
			Help:    "Time spent computing reports on cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"report"}),
		slowQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "report_slow_queries_total",
			Help: "Report computations slower than the configured threshold.",
		}, []string{"report"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "report_compute_failures_total",
			Help: "Report computations that returned an error.",
		}, []string{"report"}),
	}
}

func (m *Metrics) cacheHit(report string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(report, "hit").Inc()
}

func (m *Metrics) cacheMiss(report string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(report, "miss").Inc()
}

func (m *Metrics) computed(report string, seconds float64, slow bool) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(report).Observe(seconds)
	if slow {
		m.slowQueries.WithLabelValues(report).Inc()
	}
}

func (m *Metrics) failed(report string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(report).Inc()
}
