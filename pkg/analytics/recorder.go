package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scribedocs/scribe/pkg/async"
	"github.com/scribedocs/scribe/pkg/observability"
)

// Recorder persists canonical records. Every call is a single-row append;
// the store's atomicity for one insert is all the coordination it needs, so
// it is safe under arbitrary concurrent invocation. Failures are soft: they
// are logged, counted, and returned as *RecordError, and must never fail
// the caller's business operation.
type Recorder struct {
	db         *sql.DB
	gate       *Gate
	validator  *Validator
	classifier *Classifier
	logger     *observability.Logger
	metrics    *observability.Metrics
	timeout    time.Duration
}

// NewRecorder creates a recorder and ensures the event table exists.
// timeout bounds each store append; a slow store becomes a soft failure
// instead of backpressure on the producer.
func NewRecorder(db *sql.DB, gate *Gate, validator *Validator, classifier *Classifier, logger *observability.Logger, metrics *observability.Metrics, timeout time.Duration) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	r := &Recorder{
		db:         db,
		gate:       gate,
		validator:  validator,
		classifier: classifier,
		logger:     logger,
		metrics:    metrics,
		timeout:    timeout,
	}

	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure analytics_events table: %w", err)
	}

	return r, nil
}

// ensureTable creates the analytics_events table if it doesn't exist
func (r *Recorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS analytics_events (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(20) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		session_id VARCHAR(255),
		user_id BIGINT,
		is_internal BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_analytics_events_name ON analytics_events(name);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_category ON analytics_events(category);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_session_id ON analytics_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_created_at ON analytics_events(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_payload ON analytics_events USING GIN (payload);
	`

	_, err := r.db.Exec(query)
	return err
}

// Record normalizes, classifies, and appends one event. A suppressed event
// (opted-out actor or non-production environment) returns nil exactly like
// a recorded one, so producers cannot distinguish the two. The returned
// *RecordError is informational; callers are free to ignore it.
func (r *Recorder) Record(ctx context.Context, name string, payload map[string]interface{}, actor ActorContext) *RecordError {
	start := time.Now()
	defer func() {
		r.metrics.RecordDuration.Observe(time.Since(start).Seconds())
	}()

	// Server-side re-check; producers gate client-side but are not trusted.
	if !r.gate.TrackingEnabled(ctx, actor) {
		r.metrics.EventsSuppressedTotal.Inc()
		return nil
	}

	record, err := r.validator.Normalize(name, payload, actor)
	if err != nil {
		r.metrics.EventsInvalidTotal.Inc()
		r.logger.WithError(err).WithField("event", name).Warn("dropping invalid event")
		return &RecordError{EventName: name, Reason: "invalid_event", Err: err}
	}

	record.IsInternal = r.classifier.IsInternal(ctx, record.UserID)

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		r.metrics.RecordFailuresTotal.WithLabelValues("marshal").Inc()
		r.logger.WithError(err).WithField("event", name).Error("failed to marshal event payload")
		return &RecordError{EventName: name, Reason: "marshal", Err: err}
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO analytics_events (
			name, category, payload, session_id, user_id, is_internal
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(storeCtx, query,
		record.Name, record.Category, payloadJSON,
		nullString(record.SessionID), record.UserID, record.IsInternal,
	)
	if err != nil {
		reason := "store"
		if storeCtx.Err() == context.DeadlineExceeded {
			reason = "timeout"
		}
		r.metrics.RecordFailuresTotal.WithLabelValues(reason).Inc()
		r.logger.WithError(err).
			WithFields(map[string]interface{}{"event": name, "session_id": record.SessionID}).
			Error("failed to persist analytics event")
		return &RecordError{EventName: name, Reason: reason, Err: err}
	}

	r.metrics.EventsRecordedTotal.WithLabelValues(string(record.Category)).Inc()
	return nil
}

// RecordAsync records in a detached goroutine for producers that want
// strict fire-and-forget. The event outlives the caller's request context;
// it cannot be cancelled once issued.
func (r *Recorder) RecordAsync(ctx context.Context, name string, payload map[string]interface{}, actor ActorContext) {
	async.SafeGoDetached(ctx, r.timeout+time.Second, "analytics.record", func(taskCtx context.Context) error {
		if recErr := r.Record(taskCtx, name, payload, actor); recErr != nil {
			return recErr
		}
		return nil
	})
}

// ReclassifySession is the single permitted mutation of persisted records.
// When a user authenticates mid-session, every prior record sharing the
// session is updated so is_internal reflects the now-known actor, and null
// user_id values are backfilled. Two users authenticating under one
// session resolve last-writer-wins. Returns the number of rows touched.
func (r *Recorder) ReclassifySession(ctx context.Context, sessionID string, userID int64) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session_id is required for reclassification")
	}

	isInternal := r.classifier.IsInternal(ctx, &userID)

	query := `
		UPDATE analytics_events
		SET is_internal = $1,
		    user_id = COALESCE(user_id, $2)
		WHERE session_id = $3
	`
	result, err := r.db.ExecContext(ctx, query, isInternal, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to reclassify session %s: %w", sessionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	r.metrics.ReclassifiedRowsTotal.Add(float64(rows))
	r.logger.WithFields(map[string]interface{}{
		"session_id":  sessionID,
		"user_id":     userID,
		"is_internal": isInternal,
		"rows":        rows,
	}).Info("reclassified session events")

	return rows, nil
}

// Helper function to convert empty strings to NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
