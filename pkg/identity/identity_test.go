package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_IsInternal(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want bool
	}{
		{"admin role", Identity{Role: "admin"}, true},
		{"staff role", Identity{Role: "staff"}, true},
		{"tier override", Identity{Role: "member", TierOverride: "comped"}, true},
		{"plain member", Identity{Role: "member"}, false},
		{"empty identity", Identity{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.IsInternal())
		})
	}
}

func TestService_Lookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, time.Minute)

	rows := sqlmock.NewRows([]string{"role", "tier_override"}).AddRow("admin", "")
	mock.ExpectQuery("SELECT u.role, COALESCE").WithArgs(int64(7)).WillReturnRows(rows)

	id, err := svc.Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.UserID)
	assert.True(t, id.IsInternal())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Lookup_CachesResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, time.Minute)

	rows := sqlmock.NewRows([]string{"role", "tier_override"}).AddRow("member", "")
	mock.ExpectQuery("SELECT u.role, COALESCE").WithArgs(int64(7)).WillReturnRows(rows)

	_, err = svc.Lookup(context.Background(), 7)
	require.NoError(t, err)

	// Second lookup must be served from cache; no second query expected.
	id, err := svc.Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, id.IsInternal())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Lookup_UnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, time.Minute)

	mock.ExpectQuery("SELECT u.role, COALESCE").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"role", "tier_override"}))

	_, err = svc.Lookup(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestService_Invalidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, time.Minute)

	first := sqlmock.NewRows([]string{"role", "tier_override"}).AddRow("member", "")
	second := sqlmock.NewRows([]string{"role", "tier_override"}).AddRow("admin", "")
	mock.ExpectQuery("SELECT u.role, COALESCE").WithArgs(int64(7)).WillReturnRows(first)
	mock.ExpectQuery("SELECT u.role, COALESCE").WithArgs(int64(7)).WillReturnRows(second)

	_, err = svc.Lookup(context.Background(), 7)
	require.NoError(t, err)

	svc.Invalidate(7)

	id, err := svc.Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, id.IsInternal(), "post-invalidation lookup should see the fresh role")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Lookup_StoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, time.Minute)

	mock.ExpectQuery("SELECT u.role, COALESCE").WillReturnError(errors.New("connection reset"))

	_, err = svc.Lookup(context.Background(), 7)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownUser)
}
