package analytics

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scribedocs/scribe/pkg/identity"
	"github.com/scribedocs/scribe/pkg/observability"
)

func newTestLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func intPtr(i int64) *int64 {
	return &i
}

// stubPrefs is a canned PreferenceReader.
type stubPrefs struct {
	optedOut bool
	err      error
}

func (s *stubPrefs) OptedOut(ctx context.Context, userID int64) (bool, error) {
	return s.optedOut, s.err
}

// perUserPrefs opts out a fixed set of user IDs.
type perUserPrefs struct {
	optedOut map[int64]bool
}

func (p *perUserPrefs) OptedOut(ctx context.Context, userID int64) (bool, error) {
	return p.optedOut[userID], nil
}

// stubLookup is a canned IdentityLookup.
type stubLookup struct {
	identity identity.Identity
	err      error
}

func (s *stubLookup) Lookup(ctx context.Context, userID int64) (identity.Identity, error) {
	if s.err != nil {
		return identity.Identity{}, s.err
	}
	id := s.identity
	id.UserID = userID
	return id, nil
}

func newTestGate(prefs PreferenceReader) *Gate {
	return NewGate(prefs, true, newTestLogger())
}

func newTestClassifier(lookup IdentityLookup) *Classifier {
	return NewClassifier(lookup, newTestLogger())
}
