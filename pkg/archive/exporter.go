package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/observability"
)

// Uploader stores one archive object. Satisfied by S3Client; tests supply
// an in-memory implementation.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Exporter drains events past the retention window into cold storage.
type Exporter struct {
	db            *sql.DB
	uploader      Uploader
	logger        *observability.Logger
	metrics       *observability.Metrics
	retentionDays int
}

// NewExporter creates an exporter. retentionDays is how long events stay in
// PostgreSQL before they are archived and purged.
func NewExporter(db *sql.DB, uploader Uploader, logger *observability.Logger, metrics *observability.Metrics, retentionDays int) (*Exporter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	return &Exporter{
		db:            db,
		uploader:      uploader,
		logger:        logger,
		metrics:       metrics,
		retentionDays: retentionDays,
	}, nil
}

// Run exports and purges every day fully past the retention window,
// oldest first. A failed day stops the run; rows are only deleted after
// their export object is stored.
func (e *Exporter) Run(ctx context.Context, now time.Time) error {
	cutoff := now.UTC().AddDate(0, 0, -e.retentionDays).Truncate(24 * time.Hour)

	days, err := e.expiredDays(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, day := range days {
		count, err := e.ExportDay(ctx, day)
		if err != nil {
			return err
		}
		purged, err := e.PurgeDay(ctx, day)
		if err != nil {
			return err
		}
		e.logger.WithFields(map[string]interface{}{
			"date":     day.Format("2006-01-02"),
			"exported": count,
			"purged":   purged,
		}).Info("archived analytics events")
	}
	return nil
}

// expiredDays lists the distinct event days strictly before the cutoff.
func (e *Exporter) expiredDays(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT created_at::date AS day
		FROM analytics_events
		WHERE created_at < $1
		ORDER BY day ASC
	`
	rows, err := e.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// ExportDay writes one day of events to the uploader as NDJSON under
// events/YYYY/MM/DD.ndjson and returns the number of rows exported. A day
// with no events uploads nothing.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (int64, error) {
	query := `
		SELECT id, name, category, payload, session_id, user_id, is_internal, created_at
		FROM analytics_events
		WHERE created_at >= $1::date
		  AND created_at < $1::date + INTERVAL '1 day'
		ORDER BY id ASC
	`
	rows, err := e.db.QueryContext(ctx, query, day)
	if err != nil {
		return 0, fmt.Errorf("failed to read events for %s: %w", day.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	var count int64

	for rows.Next() {
		var record analytics.Record
		var payloadJSON []byte
		var sessionID sql.NullString
		if err := rows.Scan(&record.ID, &record.Name, &record.Category, &payloadJSON,
			&sessionID, &record.UserID, &record.IsInternal, &record.CreatedAt); err != nil {
			return 0, err
		}
		record.SessionID = sessionID.String
		if err := json.Unmarshal(payloadJSON, &record.Payload); err != nil {
			return 0, fmt.Errorf("corrupt payload on event %d: %w", record.ID, err)
		}
		if err := enc.Encode(&record); err != nil {
			return 0, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	key := fmt.Sprintf("events/%s.ndjson", day.Format("2006/01/02"))
	if err := e.uploader.Upload(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	e.metrics.ArchivedRowsTotal.Add(float64(count))
	return count, nil
}

// PurgeDay deletes one day of events and returns the rows removed.
func (e *Exporter) PurgeDay(ctx context.Context, day time.Time) (int64, error) {
	query := `
		DELETE FROM analytics_events
		WHERE created_at >= $1::date
		  AND created_at < $1::date + INTERVAL '1 day'
	`
	result, err := e.db.ExecContext(ctx, query, day)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events for %s: %w", day.Format("2006-01-02"), err)
	}
	return result.RowsAffected()
}
