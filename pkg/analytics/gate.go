package analytics

import (
	"context"

	"github.com/scribedocs/scribe/pkg/observability"
)

// PreferenceReader reports whether a user has opted out of analytics. The
// production implementation is the Redis-backed preference store.
type PreferenceReader interface {
	OptedOut(ctx context.Context, userID int64) (bool, error)
}

// Gate decides whether tracking is enabled for a given actor. It is
// stateless per call: the preference is read fresh every time, so a
// mid-session opt-out takes effect on the very next event.
type Gate struct {
	prefs      PreferenceReader
	production bool
	logger     *observability.Logger
}

// NewGate creates an opt-out gate. Outside production-like deployments
// tracking is always disabled regardless of user preference.
func NewGate(prefs PreferenceReader, production bool, logger *observability.Logger) *Gate {
	return &Gate{prefs: prefs, production: production, logger: logger}
}

// TrackingEnabled resolves the gating decision for one actor. Resolution
// order: non-production never tracks; an explicit opt-out never tracks; a
// preference-store failure is treated as opted out, so an outage can only
// under-collect, never violate a user's preference.
func (g *Gate) TrackingEnabled(ctx context.Context, actor ActorContext) bool {
	if !g.production {
		return false
	}
	if actor.UserID == nil {
		// Anonymous actors have no stored preference to honor.
		return true
	}

	optedOut, err := g.prefs.OptedOut(ctx, *actor.UserID)
	if err != nil {
		g.logger.WithError(err).
			WithField("user_id", *actor.UserID).
			Warn("opt-out preference lookup failed, suppressing event")
		return false
	}
	return !optedOut
}
