package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/observability"
)

type fakeUploader struct {
	objects map[string][]byte
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func newTestExporter(t *testing.T, uploader Uploader) (*Exporter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	exporter, err := NewExporter(db, uploader, logger, metrics, 90)
	require.NoError(t, err)
	return exporter, mock
}

func TestExportDay_WritesNDJSON(t *testing.T) {
	uploader := &fakeUploader{}
	exporter, mock := newTestExporter(t, uploader)

	day := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	createdAt := day.Add(9 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "name", "category", "payload", "session_id", "user_id", "is_internal", "created_at"}).
		AddRow(1, "session_start", "workflow", []byte(`{}`), "s-1", nil, false, createdAt).
		AddRow(2, "doc_generation", "workflow", []byte(`{"doc_type":"api"}`), "s-1", 7, true, createdAt.Add(time.Minute))
	mock.ExpectQuery("FROM analytics_events").WithArgs(day).WillReturnRows(rows)

	count, err := exporter.ExportDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	data, ok := uploader.objects["events/2025/11/02.ndjson"]
	require.True(t, ok, "expected object under the day's key")

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var record analytics.Record
	require.NoError(t, json.Unmarshal(lines[1], &record))
	assert.Equal(t, "doc_generation", record.Name)
	assert.Equal(t, "api", record.Payload["doc_type"])
	assert.True(t, record.IsInternal)
}

func TestExportDay_EmptyDayUploadsNothing(t *testing.T) {
	uploader := &fakeUploader{}
	exporter, mock := newTestExporter(t, uploader)

	day := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM analytics_events").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "category", "payload", "session_id", "user_id", "is_internal", "created_at"}),
	)

	count, err := exporter.ExportDay(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, uploader.objects)
}

func TestRun_ExportsThenPurges(t *testing.T) {
	uploader := &fakeUploader{}
	exporter, mock := newTestExporter(t, uploader)

	day := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT DISTINCT").WillReturnRows(
		sqlmock.NewRows([]string{"day"}).AddRow(day),
	)
	mock.ExpectQuery("FROM analytics_events").WithArgs(day).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "category", "payload", "session_id", "user_id", "is_internal", "created_at"}).
			AddRow(1, "session_start", "workflow", []byte(`{}`), "s-1", nil, false, day),
	)
	mock.ExpectExec("DELETE FROM analytics_events").WithArgs(day).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, exporter.Run(context.Background(), now))
	assert.Len(t, uploader.objects, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_UploadFailureSkipsPurge(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("bucket unavailable")}
	exporter, mock := newTestExporter(t, uploader)

	day := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT DISTINCT").WillReturnRows(
		sqlmock.NewRows([]string{"day"}).AddRow(day),
	)
	mock.ExpectQuery("FROM analytics_events").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "category", "payload", "session_id", "user_id", "is_internal", "created_at"}).
			AddRow(1, "session_start", "workflow", []byte(`{}`), "s-1", nil, false, day),
	)

	// No DELETE expected: rows must survive a failed upload.
	err := exporter.Run(context.Background(), now)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewExporter_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	_, err = NewExporter(nil, &fakeUploader{}, logger, metrics, 90)
	assert.Error(t, err)

	_, err = NewExporter(db, nil, logger, metrics, 90)
	assert.Error(t, err)

	_, err = NewExporter(db, &fakeUploader{}, logger, metrics, 0)
	assert.Error(t, err)
}
