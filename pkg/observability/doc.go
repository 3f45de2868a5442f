// Package observability provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the analytics pipeline.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and context helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("session_id", sid).Info("event recorded")
//
// FromContext builds a logger pre-populated with the request ID and user ID
// carried in the request context.
//
// # Metrics
//
// NewMetrics registers the pipeline's Prometheus collectors: write-side
// counters (recorded, suppressed, failed, reclassified) and read-side query
// duration histograms. MetricsHandler serves them on the health port.
//
// # Tracing
//
// InitTracing configures an OTLP gRPC tracer provider when enabled. It is off
// by default; Prometheus remains the primary metrics surface.
package observability
