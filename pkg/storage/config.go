package storage

import "time"

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration

	// Redis config (opt-out preference store)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible defaults for local development
func DefaultConfig() Config {
	return Config{
		PostgresURL:         "postgres://localhost/scribe?sslmode=disable",
		PostgresMaxConns:    25,
		PostgresMinConns:    5,
		PostgresTimeout:     5 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisURL:            "redis://localhost:6379/0",
		RedisDB:             -1,
	}
}
