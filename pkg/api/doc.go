// Package api exposes the analytics pipeline over HTTP.
//
// # Endpoints
//
// Ingest:
//   - POST /api/v1/events — record one event; responds 202 even when the
//     append soft-fails, 400 only for malformed JSON or an empty name
//   - POST /api/v1/sessions/{id}/identify — bind a user to a session and
//     retroactively reclassify its prior events
//
// Query:
//   - GET /api/v1/analytics/funnel
//   - GET /api/v1/analytics/business
//   - GET /api/v1/analytics/usage
//   - GET /api/v1/analytics/timeseries
//   - GET /api/v1/analytics/overview
//
// Query endpoints take start/end (RFC 3339) and exclude_internal; a
// malformed range responds 400, an unavailable store 503.
package api
