package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/scribedocs/scribe/pkg/storage"
)

// optOutKeyPrefix namespaces opt-out preference keys. The account service
// writes these keys whenever a user toggles the tracking preference; the
// analytics gate only ever reads them.
const optOutKeyPrefix = "optout:user:"

// PreferenceStore reads per-user opt-out preferences from Redis.
//
// Preferences are intentionally NOT cached here: a mid-session preference
// change must take effect on the next event, so every gate decision performs
// a fresh read.
type PreferenceStore struct {
	client *redis.Client
}

// NewPreferenceStore creates a Redis-backed preference store
func NewPreferenceStore(cfg storage.Config) (*PreferenceStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &PreferenceStore{client: client}, nil
}

// NewPreferenceStoreWithClient wraps an existing client (used by tests)
func NewPreferenceStoreWithClient(client *redis.Client) *PreferenceStore {
	return &PreferenceStore{client: client}
}

// OptedOut reports whether the given user has opted out of analytics
// tracking. A missing key means the user has not opted out.
func (s *PreferenceStore) OptedOut(ctx context.Context, userID int64) (bool, error) {
	val, err := s.client.Get(ctx, optOutKeyPrefix+strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	return val == "1" || val == "true", nil
}

// SetOptOut records a user's opt-out preference. Exposed for the account
// service integration and for seeding test fixtures; the analytics pipeline
// itself never calls this.
func (s *PreferenceStore) SetOptOut(ctx context.Context, userID int64, optedOut bool) error {
	key := optOutKeyPrefix + strconv.FormatInt(userID, 10)
	if !optedOut {
		return s.client.Del(ctx, key).Err()
	}
	return s.client.Set(ctx, key, "1", 0).Err()
}

// HealthCheck verifies the Redis connection
func (s *PreferenceStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *PreferenceStore) Close() error {
	return s.client.Close()
}
