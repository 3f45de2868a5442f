package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribedocs/scribe/pkg/identity"
)

func newTestRecorder(t *testing.T, prefs PreferenceReader, lookup IdentityLookup) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analytics_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	recorder, err := NewRecorder(db, newTestGate(prefs), NewValidator(NewCatalog()), newTestClassifier(lookup), newTestLogger(), newTestMetrics(), time.Second)
	require.NoError(t, err)
	return recorder, mock
}

func TestRecord_PersistsCanonicalRecord(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{identity: identity.Identity{Role: "admin"}})

	mock.ExpectExec("INSERT INTO analytics_events").
		WithArgs(
			EventDocGeneration,
			string(CategoryWorkflow),
			sqlmock.AnyArg(), // payload JSON
			"s-1",
			intPtr(7),
			true, // admin actor classified internal
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recErr := recorder.Record(context.Background(), EventDocGeneration,
		map[string]interface{}{"doc_type": "api"},
		ActorContext{SessionID: "s-1", UserID: intPtr(7)},
	)
	assert.Nil(t, recErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_AnonymousEvent(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	mock.ExpectExec("INSERT INTO analytics_events").
		WithArgs(EventSessionStart, string(CategoryWorkflow), sqlmock.AnyArg(), "s-9", nil, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recErr := recorder.Record(context.Background(), EventSessionStart, nil, ActorContext{SessionID: "s-9"})
	assert.Nil(t, recErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_SuppressedForOptedOutActor(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{optedOut: true}, &stubLookup{})

	// No INSERT expected; suppression is indistinguishable from success.
	recErr := recorder.Record(context.Background(), EventDocGeneration, nil, ActorContext{UserID: intPtr(42)})
	assert.Nil(t, recErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_ConcurrentBurstIsolatesOptOut(t *testing.T) {
	prefs := &perUserPrefs{optedOut: map[int64]bool{2: true}}
	recorder, mock := newTestRecorder(t, prefs, &stubLookup{})
	mock.MatchExpectationsInOrder(false)

	// Only the opted-in actors' rows may reach the store.
	for _, userID := range []int64{1, 3} {
		mock.ExpectExec("INSERT INTO analytics_events").
			WithArgs(EventFeatureUsed, string(CategoryUsage), sqlmock.AnyArg(), sqlmock.AnyArg(), intPtr(userID), false).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	var wg sync.WaitGroup
	errs := make([]*RecordError, 3)
	for i, userID := range []int64{1, 2, 3} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			errs[i] = recorder.Record(context.Background(), EventFeatureUsed, nil,
				ActorContext{SessionID: fmt.Sprintf("s-%d", userID), UserID: intPtr(userID)},
			)
		}(i, userID)
	}
	wg.Wait()

	// Suppression looks like success to every caller.
	for i, recErr := range errs {
		assert.Nil(t, recErr, "actor %d", i+1)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_EmptyNameIsSoftFailure(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	recErr := recorder.Record(context.Background(), "", nil, ActorContext{SessionID: "s-1"})
	require.NotNil(t, recErr)
	assert.Equal(t, "invalid_event", recErr.Reason)

	var invalidErr *InvalidEventError
	assert.True(t, errors.As(recErr, &invalidErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_StoreFailureIsSoft(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	mock.ExpectExec("INSERT INTO analytics_events").
		WillReturnError(errors.New("connection refused"))

	recErr := recorder.Record(context.Background(), EventDocExport, nil, ActorContext{SessionID: "s-1"})
	require.NotNil(t, recErr)
	assert.Equal(t, "store", recErr.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_SanitizesPayloadBeforeInsert(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	mock.ExpectExec("INSERT INTO analytics_events").
		WithArgs(EventDocGeneration, string(CategoryWorkflow), []byte(`{"doc_type":"api"}`), "s-1", nil, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recErr := recorder.Record(context.Background(), EventDocGeneration,
		map[string]interface{}{"doc_type": "api", "api_token": "sk-1"},
		ActorContext{SessionID: "s-1"},
	)
	assert.Nil(t, recErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclassifySession(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{identity: identity.Identity{Role: "admin"}})

	mock.ExpectExec("UPDATE analytics_events").
		WithArgs(true, int64(7), "s-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	rows, err := recorder.ReclassifySession(context.Background(), "s-1", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclassifySession_RequiresSessionID(t *testing.T) {
	recorder, _ := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	_, err := recorder.ReclassifySession(context.Background(), "", 7)
	assert.Error(t, err)
}

func TestReclassifySession_StoreError(t *testing.T) {
	recorder, mock := newTestRecorder(t, &stubPrefs{}, &stubLookup{})

	mock.ExpectExec("UPDATE analytics_events").
		WillReturnError(errors.New("deadlock detected"))

	_, err := recorder.ReclassifySession(context.Background(), "s-1", 7)
	assert.Error(t, err)
}
