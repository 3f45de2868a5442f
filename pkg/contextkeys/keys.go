// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/scribedocs/scribe/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
//   requestID := ctx.Value(contextkeys.RequestIDKey).(string)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's ID
	// Set by: HTTP middleware after decoding the event context
	// Used by: Logger, event recorder
	// Type: int64
	UserIDKey Key = "user_id"

	// SessionIDKey contains the anonymous session identifier
	// Set by: HTTP middleware after decoding the event context
	// Used by: Logger, event recorder
	// Type: string
	SessionIDKey Key = "session_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)
