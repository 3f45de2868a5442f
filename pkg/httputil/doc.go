// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding, and request middleware (request IDs, logging,
// panic recovery).
package httputil
