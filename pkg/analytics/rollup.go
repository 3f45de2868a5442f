package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scribedocs/scribe/pkg/observability"
)

// Rollup maintains the analytics_daily table: one row per day with the
// event counts the overview dashboard needs, so the hot KPI endpoint never
// scans the raw event log. Rows are upserted, so re-running a day is safe.
type Rollup struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRollup creates a rollup and ensures the daily table exists.
func NewRollup(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) (*Rollup, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &Rollup{db: db, logger: logger, metrics: metrics}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure analytics_daily table: %w", err)
	}
	return r, nil
}

// ensureTable creates the analytics_daily table if it doesn't exist
func (r *Rollup) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS analytics_daily (
		date DATE PRIMARY KEY,
		workflow_count BIGINT NOT NULL DEFAULT 0,
		business_count BIGINT NOT NULL DEFAULT 0,
		usage_count BIGINT NOT NULL DEFAULT 0,
		system_count BIGINT NOT NULL DEFAULT 0,
		distinct_sessions BIGINT NOT NULL DEFAULT 0,
		generations BIGINT NOT NULL DEFAULT 0,
		revenue_cents BIGINT NOT NULL DEFAULT 0,
		computed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	`
	_, err := r.db.Exec(query)
	return err
}

// RollupDay recomputes the rollup row for one calendar day. Internal-user
// events are excluded; the daily table feeds business dashboards only.
func (r *Rollup) RollupDay(ctx context.Context, date time.Time) error {
	query := `
		INSERT INTO analytics_daily (
			date,
			workflow_count, business_count, usage_count, system_count,
			distinct_sessions, generations, revenue_cents, computed_at
		)
		SELECT
			$1::date AS date,
			COUNT(*) FILTER (WHERE category = 'workflow') AS workflow_count,
			COUNT(*) FILTER (WHERE category = 'business') AS business_count,
			COUNT(*) FILTER (WHERE category = 'usage') AS usage_count,
			COUNT(*) FILTER (WHERE category = 'system') AS system_count,
			COUNT(DISTINCT session_id) FILTER (WHERE session_id IS NOT NULL) AS distinct_sessions,
			COUNT(*) FILTER (WHERE name = 'doc_generation') AS generations,
			COALESCE(SUM(CASE WHEN name = 'checkout_completed' THEN (payload->>'amount_cents')::bigint ELSE 0 END), 0) AS revenue_cents,
			NOW() AS computed_at
		FROM analytics_events
		WHERE created_at >= $1::date
		  AND created_at < $1::date + INTERVAL '1 day'
		  AND is_internal = FALSE
		ON CONFLICT (date) DO UPDATE SET
			workflow_count = EXCLUDED.workflow_count,
			business_count = EXCLUDED.business_count,
			usage_count = EXCLUDED.usage_count,
			system_count = EXCLUDED.system_count,
			distinct_sessions = EXCLUDED.distinct_sessions,
			generations = EXCLUDED.generations,
			revenue_cents = EXCLUDED.revenue_cents,
			computed_at = EXCLUDED.computed_at
	`
	_, err := r.db.ExecContext(ctx, query, date)
	if err != nil {
		r.metrics.RollupRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to roll up %s: %w", date.Format("2006-01-02"), err)
	}

	r.metrics.RollupRunsTotal.WithLabelValues("success").Inc()
	r.logger.WithField("date", date.Format("2006-01-02")).Info("daily rollup complete")
	return nil
}

// RollupRange rolls up every day in [start, end] inclusive, for backfills.
func (r *Rollup) RollupRange(ctx context.Context, start, end time.Time) error {
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := r.RollupDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// OverviewResponse contains high-level KPIs for the dashboard landing page.
type OverviewResponse struct {
	Events24h        int64   `json:"events_24h"`
	Events7d         int64   `json:"events_7d"`
	Events30d        int64   `json:"events_30d"`
	Sessions7d       int64   `json:"sessions_7d"`
	Generations7d    int64   `json:"generations_7d"`
	Revenue30dCents  int64   `json:"revenue_30d_cents"`
	AvgDailySessions float64 `json:"avg_daily_sessions"`
	TopCategory      string  `json:"top_category"`
}

// GetOverview retrieves high-level KPIs from the daily rollup.
func (r *Rollup) GetOverview(ctx context.Context) (*OverviewResponse, error) {
	var overview OverviewResponse

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '1 day' THEN workflow_count + business_count + usage_count + system_count ELSE 0 END), 0) AS events_24h,
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '7 days' THEN workflow_count + business_count + usage_count + system_count ELSE 0 END), 0) AS events_7d,
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '30 days' THEN workflow_count + business_count + usage_count + system_count ELSE 0 END), 0) AS events_30d,
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '7 days' THEN distinct_sessions ELSE 0 END), 0) AS sessions_7d,
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '7 days' THEN generations ELSE 0 END), 0) AS generations_7d,
			COALESCE(SUM(CASE WHEN date >= CURRENT_DATE - INTERVAL '30 days' THEN revenue_cents ELSE 0 END), 0) AS revenue_30d_cents,
			COALESCE(AVG(distinct_sessions) FILTER (WHERE date >= CURRENT_DATE - INTERVAL '7 days'), 0) AS avg_daily_sessions
		FROM analytics_daily
		WHERE date >= CURRENT_DATE - INTERVAL '30 days'
	`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&overview.Events24h,
		&overview.Events7d,
		&overview.Events30d,
		&overview.Sessions7d,
		&overview.Generations7d,
		&overview.Revenue30dCents,
		&overview.AvgDailySessions,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, &QueryError{Method: "GetOverview", Err: err}
	}

	// Top category over the last 30 days
	query = `
		SELECT category FROM (
			SELECT 'workflow' AS category, SUM(workflow_count) AS total FROM analytics_daily WHERE date >= CURRENT_DATE - INTERVAL '30 days'
			UNION ALL
			SELECT 'business', SUM(business_count) FROM analytics_daily WHERE date >= CURRENT_DATE - INTERVAL '30 days'
			UNION ALL
			SELECT 'usage', SUM(usage_count) FROM analytics_daily WHERE date >= CURRENT_DATE - INTERVAL '30 days'
			UNION ALL
			SELECT 'system', SUM(system_count) FROM analytics_daily WHERE date >= CURRENT_DATE - INTERVAL '30 days'
		) totals
		ORDER BY total DESC NULLS LAST
		LIMIT 1
	`
	err = r.db.QueryRowContext(ctx, query).Scan(&overview.TopCategory)
	if err != nil && err != sql.ErrNoRows {
		return nil, &QueryError{Method: "GetOverview", Err: err}
	}

	return &overview, nil
}
