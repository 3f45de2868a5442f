package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/identity"
	"github.com/scribedocs/scribe/pkg/observability"
)

type stubPrefs struct {
	optedOut bool
	err      error
}

func (s *stubPrefs) OptedOut(ctx context.Context, userID int64) (bool, error) {
	return s.optedOut, s.err
}

type stubLookup struct {
	identity identity.Identity
	err      error
}

func (s *stubLookup) Lookup(ctx context.Context, userID int64) (identity.Identity, error) {
	return s.identity, s.err
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analytics_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analytics_daily").
		WillReturnResult(sqlmock.NewResult(0, 0))

	gate := analytics.NewGate(&stubPrefs{}, true, logger)
	validator := analytics.NewValidator(analytics.NewCatalog())
	classifier := analytics.NewClassifier(&stubLookup{identity: identity.Identity{Role: "admin"}}, logger)

	recorder, err := analytics.NewRecorder(db, gate, validator, classifier, logger, metrics, time.Second)
	require.NoError(t, err)
	rollup, err := analytics.NewRollup(db, logger, metrics)
	require.NoError(t, err)
	engine := analytics.NewEngine(analytics.StaticPool(db), logger, metrics, nil)

	return NewServer(recorder, engine, rollup, logger, metrics), mock
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestRecordEvent_Accepted(t *testing.T) {
	server, mock := newTestServer(t)

	// The append happens on a detached goroutine; the expectation may or
	// may not be consumed before the response returns.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("INSERT INTO analytics_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"name":    "doc_generation",
		"payload": map[string]interface{}{"doc_type": "api"},
		"context": map[string]interface{}{"session_id": "s-1"},
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRecordEvent_MalformedJSON(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEvent_EmptyName(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"name": "  ",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentifySession(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectExec("UPDATE analytics_events").
		WithArgs(true, int64(7), "s-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/sessions/s-1/identify", map[string]interface{}{
		"user_id": 7,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(4), resp["reclassified_count"])
	assert.Equal(t, "s-1", resp["session_id"])
}

func TestIdentifySession_MissingUserID(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/sessions/s-1/identify", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFunnel(t *testing.T) {
	server, mock := newTestServer(t)

	rows := sqlmock.NewRows([]string{"sessions", "code_input", "generation_started", "generation_completed", "export"}).
		AddRow(10, 6, 5, 4, 2)
	mock.ExpectQuery("WITH entered AS").WillReturnRows(rows)

	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/funnel?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z&exclude_internal=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stages []analytics.FunnelStage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stages))
	require.Len(t, stages, 5)
	assert.Equal(t, int64(10), stages[0].Count)
	assert.Equal(t, int64(2), stages[4].Count)
}

func TestGetFunnel_BadRange(t *testing.T) {
	server, _ := newTestServer(t)

	// start after end
	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/funnel?start=2026-03-02T00:00:00Z&end=2026-03-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unparseable timestamps
	rec = doJSON(t, server, http.MethodGet, "/api/v1/analytics/funnel?start=yesterday&end=today", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFunnel_StoreUnavailable(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("WITH entered AS").WillReturnError(errors.New("connection refused"))

	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/funnel?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetBusinessMetrics(t *testing.T) {
	server, mock := newTestServer(t)

	rows := sqlmock.NewRows([]string{"signups", "upgrades", "downgrades", "cancellations", "revenue_cents"}).
		AddRow(3, 1, 0, 0, 2900)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/business?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result analytics.BusinessMetricsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(2900), result.RevenueCents)
}

func TestGetTimeSeries_DefaultsAndGapFill(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("date_trunc").WillReturnRows(sqlmock.NewRows([]string{"bucket", "value"}))

	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/timeseries?start=2026-03-01T00:00:00Z&end=2026-03-03T00:00:00Z", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var points []analytics.TimeSeriesPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Len(t, points, 3)
}

func TestGetTimeSeries_BadGranularity(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet,
		"/api/v1/analytics/timeseries?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z&granularity=hour", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOverview(t *testing.T) {
	server, mock := newTestServer(t)

	kpis := sqlmock.NewRows([]string{
		"events_24h", "events_7d", "events_30d",
		"sessions_7d", "generations_7d", "revenue_30d_cents", "avg_daily_sessions",
	}).AddRow(10, 70, 300, 40, 12, 5800, 5.7)
	mock.ExpectQuery("FROM analytics_daily").WillReturnRows(kpis)
	mock.ExpectQuery("ORDER BY total DESC").WillReturnRows(
		sqlmock.NewRows([]string{"category"}).AddRow("workflow"),
	)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/analytics/overview", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var overview analytics.OverviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, int64(300), overview.Events30d)
	assert.Equal(t, "workflow", overview.TopCategory)
}
