// Package analytics is the event pipeline at the heart of Scribe's product
// analytics: it records discrete user/system events, classifies them, and
// answers aggregate questions over the persisted event log.
//
// # Overview
//
// Producers (browser client, payment webhook, background jobs) submit
// (name, payload, context) tuples. The pipeline gates them on the actor's
// opt-out preference, normalizes and sanitizes them, classifies the actor
// as internal or external, and appends one immutable row per event. The
// read side aggregates the log into funnels, business metrics, usage
// patterns, and gap-free time series.
//
// # Write Path
//
// Recording is a soft operation: any persistence failure is logged,
// counted, and returned as *RecordError without ever failing the caller's
// business operation.
//
//	recErr := recorder.Record(ctx, analytics.EventDocGeneration,
//		map[string]interface{}{"doc_type": "api", "success": true},
//		analytics.ActorContext{SessionID: sessionID, UserID: &userID},
//	)
//
// Events from opted-out actors are suppressed server-side but still return
// success, so opt-out status never leaks through the ingest response.
//
// # Reclassification
//
// Anonymous events default to is_internal=false. When a user authenticates
// later in the same session, ReclassifySession updates every prior record
// for that session. This is the single permitted mutation of persisted
// records.
//
// # Read Path
//
// The Engine's four query methods are pure reads parameterized by a time
// window and an exclude-internal flag:
//
//	stages, err := engine.Funnel(ctx, start, end, true)
//	metrics, err := engine.BusinessMetrics(ctx, start, end, true)
//	usage, err := engine.UsagePatterns(ctx, start, end, true)
//	series, err := engine.TimeSeries(ctx, analytics.MetricSessions, start, end, "day", true)
//
// Read failures surface as *QueryError; malformed parameters as
// *InvalidRangeError. Unlike the write path, nothing is swallowed.
//
// # Rollup
//
// The Rollup maintains analytics_daily, an upserted per-day summary that
// serves the overview dashboard without scanning the raw log:
//
//	rollup.RollupDay(ctx, yesterday)
//	overview, err := rollup.GetOverview(ctx)
//
// # Related Packages
//
//   - pkg/identity: role/billing-override lookup behind the classifier
//   - pkg/storage/postgres: connections and the opt-out preference store
//   - pkg/observability: logging, metrics, and tracing
package analytics
