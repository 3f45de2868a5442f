package analytics

import (
	"context"
	"errors"

	"github.com/scribedocs/scribe/pkg/identity"
	"github.com/scribedocs/scribe/pkg/observability"
)

// IdentityLookup resolves a user ID to its role and billing override. The
// production implementation is identity.Service.
type IdentityLookup interface {
	Lookup(ctx context.Context, userID int64) (identity.Identity, error)
}

// Classifier decides whether an event's actor is an internal identity
// (admin/staff role or billing override), so their events can be excluded
// from business metrics.
type Classifier struct {
	lookup IdentityLookup
	logger *observability.Logger
}

// NewClassifier creates a classifier backed by the given identity lookup.
func NewClassifier(lookup IdentityLookup, logger *observability.Logger) *Classifier {
	return &Classifier{lookup: lookup, logger: logger}
}

// IsInternal classifies an optional actor. Anonymous events default to
// false; so does a failed lookup, since blocking the write path on the
// users table being down would violate the recorder's soft-failure
// contract. A later identify call corrects the stored value.
func (c *Classifier) IsInternal(ctx context.Context, userID *int64) bool {
	if userID == nil {
		return false
	}

	id, err := c.lookup.Lookup(ctx, *userID)
	if err != nil {
		if !errors.Is(err, identity.ErrUnknownUser) {
			c.logger.WithError(err).
				WithField("user_id", *userID).
				Warn("identity lookup failed, classifying as external")
		}
		return false
	}
	return id.IsInternal()
}
