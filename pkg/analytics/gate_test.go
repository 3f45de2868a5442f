package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_NonProductionNeverTracks(t *testing.T) {
	gate := NewGate(&stubPrefs{}, false, newTestLogger())

	assert.False(t, gate.TrackingEnabled(context.Background(), ActorContext{}))
	assert.False(t, gate.TrackingEnabled(context.Background(), ActorContext{UserID: intPtr(1)}))
}

func TestGate_AnonymousActorTracks(t *testing.T) {
	// An anonymous actor has no stored preference; the store must not even
	// be consulted.
	gate := NewGate(&stubPrefs{err: errors.New("must not be called")}, true, newTestLogger())

	assert.True(t, gate.TrackingEnabled(context.Background(), ActorContext{SessionID: "s-1"}))
}

func TestGate_OptedOut(t *testing.T) {
	gate := newTestGate(&stubPrefs{optedOut: true})

	assert.False(t, gate.TrackingEnabled(context.Background(), ActorContext{UserID: intPtr(42)}))
}

func TestGate_OptedIn(t *testing.T) {
	gate := newTestGate(&stubPrefs{optedOut: false})

	assert.True(t, gate.TrackingEnabled(context.Background(), ActorContext{UserID: intPtr(42)}))
}

func TestGate_StoreErrorFailsClosed(t *testing.T) {
	gate := newTestGate(&stubPrefs{err: errors.New("redis down")})

	assert.False(t, gate.TrackingEnabled(context.Background(), ActorContext{UserID: intPtr(42)}))
}
