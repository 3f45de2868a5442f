package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/scribedocs/scribe/pkg/observability"
	"github.com/scribedocs/scribe/pkg/storage"
)

// ConnectionManager manages PostgreSQL primary and read replica connections
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   storage.Config
	logger   *observability.Logger
}

// NewConnectionManager creates a new connection manager with primary and replicas
func NewConnectionManager(cfg storage.Config, logger *observability.Logger) (*ConnectionManager, error) {
	cm := &ConnectionManager{
		config:   cfg,
		replicas: make([]*sql.DB, 0),
		logger:   logger,
	}

	primary, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	primary.SetMaxOpenConns(cfg.PostgresMaxConns)
	primary.SetMaxIdleConns(cfg.PostgresMinConns)
	primary.SetConnMaxLifetime(cfg.PostgresMaxLifetime)
	primary.SetConnMaxIdleTime(cfg.PostgresMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
	defer cancel()

	if err := primary.PingContext(ctx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm.primary = primary

	// Replicas are optional; a bad replica URL degrades, it doesn't fail startup.
	for i, replicaURL := range ParseReplicaURLs(cfg.PostgresReplicaURLs) {
		replica, err := sql.Open("postgres", replicaURL)
		if err != nil {
			logger.WithError(err).Warnf("failed to open replica %d", i)
			continue
		}

		replicaMaxConns := cfg.PostgresMaxConns / 2
		if replicaMaxConns < 2 {
			replicaMaxConns = 2
		}
		replica.SetMaxOpenConns(replicaMaxConns)
		replica.SetMaxIdleConns(cfg.PostgresMinConns)
		replica.SetConnMaxLifetime(cfg.PostgresMaxLifetime)
		replica.SetConnMaxIdleTime(cfg.PostgresMaxIdleTime)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
		err = replica.PingContext(pingCtx)
		pingCancel()

		if err != nil {
			logger.WithError(err).Warnf("failed to ping replica %d", i)
			replica.Close()
			continue
		}

		cm.replicas = append(cm.replicas, replica)
	}

	logger.Infof("connection manager initialized with 1 primary and %d replicas", len(cm.replicas))

	return cm, nil
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	replicaCount := len(cm.replicas)
	cm.mu.RUnlock()

	if replicaCount == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	replicaIndex := int(index % uint32(replicaCount))

	cm.mu.RLock()
	replica := cm.replicas[replicaIndex]
	cm.mu.RUnlock()

	return replica
}

// HealthCheck checks the health of primary and all replicas
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		// All replicas down but primary up: degraded, reads fall back to primary.
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// ReportPoolStats pushes primary connection pool gauges into Prometheus.
// Intended to be called periodically from the server main loop.
func (cm *ConnectionManager) ReportPoolStats(metrics *observability.Metrics) {
	stats := cm.primary.Stats()
	metrics.DBConnectionsActive.Set(float64(stats.InUse))
	metrics.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}

	return nil
}

// StartPoolStatsRoutine reports pool gauges on an interval until ctx is done.
func (cm *ConnectionManager) StartPoolStatsRoutine(ctx context.Context, metrics *observability.Metrics, interval time.Duration) {
	if interval == 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.ReportPoolStats(metrics)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
