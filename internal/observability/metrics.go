package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects gateway metrics.
type Metrics interface {
	RecordDecision(provider, decision, code string, duration time.Duration)
	RecordRateLimiterError(backend string)
	RecordAuditDropped()
	RecordAuditWriteFailure()
	RecordUpstreamError(provider string)
	RecordTokenRefresh(provider, outcome string)
}

// PrometheusMetrics implements Metrics on a private registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	limiterErrors     *prometheus.CounterVec
	auditDropped      prometheus.Counter
	auditWriteFailure prometheus.Counter
	upstreamErrors    *prometheus.CounterVec
	tokenRefreshes    *prometheus.CounterVec
}

// NewPrometheusMetrics registers the gateway collectors plus the Go and
// process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "decisions_total",
			Help:      "Gateway decisions by provider, decision and error code.",
		}, []string{"provider", "decision", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway execute latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "decision"}),
		limiterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "rate_limiter_errors_total",
			Help:      "Rate limiter backend failures; each one denied a request.",
		}, []string{"backend"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the buffer was full.",
		}),
		auditWriteFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that failed to persist.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "upstream_errors_total",
			Help:      "Provider calls that failed or timed out.",
		}, []string{"provider"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "oauth_refreshes_total",
			Help:      "OAuth token refresh attempts by outcome.",
		}, []string{"provider", "outcome"}),
	}

	m.registry.MustRegister(
		m.decisions,
		m.latency,
		m.limiterErrors,
		m.auditDropped,
		m.auditWriteFailure,
		m.upstreamErrors,
		m.tokenRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterDBStats exports the pool statistics of db under the given name
func (m *PrometheusMetrics) RegisterDBStats(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry exposes the underlying registry for tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RecordDecision(provider, decision, code string, duration time.Duration) {
	m.decisions.WithLabelValues(provider, decision, code).Inc()
	m.latency.WithLabelValues(provider, decision).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRateLimiterError(backend string) {
	m.limiterErrors.WithLabelValues(backend).Inc()
}

func (m *PrometheusMetrics) RecordAuditDropped() {
	m.auditDropped.Inc()
}

func (m *PrometheusMetrics) RecordAuditWriteFailure() {
	m.auditWriteFailure.Inc()
}

func (m *PrometheusMetrics) RecordUpstreamError(provider string) {
	m.upstreamErrors.WithLabelValues(provider).Inc()
}

func (m *PrometheusMetrics) RecordTokenRefresh(provider, outcome string) {
	m.tokenRefreshes.WithLabelValues(provider, outcome).Inc()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordDecision(string, string, string, time.Duration) {}
func (NopMetrics) RecordRateLimiterError(string)                        {}
func (NopMetrics) RecordAuditDropped()                                  {}
func (NopMetrics) RecordAuditWriteFailure()                             {}
func (NopMetrics) RecordUpstreamError(string)                           {}
func (NopMetrics) RecordTokenRefresh(string, string)                    {}
