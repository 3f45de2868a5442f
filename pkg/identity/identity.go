package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrUnknownUser is returned when no user exists for the given ID.
var ErrUnknownUser = errors.New("unknown user")

// Identity describes the subset of a User entity the analytics pipeline
// cares about.
type Identity struct {
	UserID       int64
	Role         string
	TierOverride string
}

// IsInternal reports whether this actor's events should be excludable from
// business metrics: administrative roles and accounts with a billing tier
// override (comped staff, partner accounts) are internal.
func (i Identity) IsInternal() bool {
	switch i.Role {
	case "admin", "staff":
		return true
	}
	return i.TierOverride != ""
}

// Service resolves identities from the product's users table with a
// short-TTL LRU in front of it.
type Service struct {
	db    *sql.DB
	cache *lru.LRU[int64, Identity]
}

// cacheSize bounds the LRU; identities are tiny, this is generous.
const cacheSize = 4096

// NewService creates an identity service. ttl bounds how stale a cached
// role/tier lookup may be.
func NewService(db *sql.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		db:    db,
		cache: lru.NewLRU[int64, Identity](cacheSize, nil, ttl),
	}
}

// Lookup resolves the identity for userID. Results are cached for the
// configured TTL; ErrUnknownUser is returned for IDs with no user row.
func (s *Service) Lookup(ctx context.Context, userID int64) (Identity, error) {
	if id, ok := s.cache.Get(userID); ok {
		return id, nil
	}

	query := `
		SELECT u.role, COALESCE(s.tier_override, '')
		FROM users u
		LEFT JOIN subscriptions s ON s.user_id = u.id
		WHERE u.id = $1
	`

	id := Identity{UserID: userID}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id.Role, &id.TierOverride)
	if err == sql.ErrNoRows {
		return Identity{}, ErrUnknownUser
	} else if err != nil {
		return Identity{}, fmt.Errorf("identity lookup failed: %w", err)
	}

	s.cache.Add(userID, id)
	return id, nil
}

// Invalidate drops a cached identity, e.g. after a role change webhook.
func (s *Service) Invalidate(userID int64) {
	s.cache.Remove(userID)
}
