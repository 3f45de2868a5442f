package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics pipeline
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Write-side metrics
	EventsRecordedTotal   *prometheus.CounterVec
	EventsSuppressedTotal prometheus.Counter
	EventsInvalidTotal    prometheus.Counter
	RecordFailuresTotal   *prometheus.CounterVec
	RecordDuration        prometheus.Histogram

	// Reclassification metrics
	ReclassifiedRowsTotal prometheus.Counter

	// Read-side metrics
	QueryDuration    *prometheus.HistogramVec
	QueryErrorsTotal *prometheus.CounterVec

	// Rollup / archive metrics
	RollupRunsTotal   *prometheus.CounterVec
	ArchivedRowsTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scribe_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EventsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_analytics_events_recorded_total",
				Help: "Total number of analytics events persisted, by category",
			},
			[]string{"category"},
		),
		EventsSuppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scribe_analytics_events_suppressed_total",
				Help: "Total number of events suppressed by the opt-out gate",
			},
		),
		EventsInvalidTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scribe_analytics_events_invalid_total",
				Help: "Total number of events rejected as malformed",
			},
		),
		RecordFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_analytics_record_failures_total",
				Help: "Total number of store append failures, by reason",
			},
			[]string{"reason"},
		),
		RecordDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scribe_analytics_record_duration_seconds",
				Help:    "Event append duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
			},
		),
		ReclassifiedRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scribe_analytics_reclassified_rows_total",
				Help: "Total number of rows updated by retroactive reclassification",
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scribe_analytics_query_duration_seconds",
				Help:    "Aggregation query duration in seconds, by method",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"method"},
		),
		QueryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_analytics_query_errors_total",
				Help: "Total number of aggregation query failures, by method",
			},
			[]string{"method"},
		),
		RollupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_analytics_rollup_runs_total",
				Help: "Total number of rollup runs, by outcome",
			},
			[]string{"outcome"},
		),
		ArchivedRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scribe_analytics_archived_rows_total",
				Help: "Total number of event rows exported to cold storage",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scribe_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scribe_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsRecordedTotal,
		m.EventsSuppressedTotal,
		m.EventsInvalidTotal,
		m.RecordFailuresTotal,
		m.RecordDuration,
		m.ReclassifiedRowsTotal,
		m.QueryDuration,
		m.QueryErrorsTotal,
		m.RollupRunsTotal,
		m.ArchivedRowsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveQuery records the duration of an aggregation query
func (m *Metrics) ObserveQuery(method string, duration time.Duration, err error) {
	m.QueryDuration.WithLabelValues(method).Observe(duration.Seconds())
	if err != nil {
		m.QueryErrorsTotal.WithLabelValues(method).Inc()
	}
}
