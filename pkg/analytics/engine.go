package analytics

import (
	"context"
	"database/sql"
	"math"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/scribedocs/scribe/pkg/observability"
)

// Engine answers aggregate questions over the persisted event log. All
// methods are pure reads: no side effects, safe to call concurrently with
// each other and with ongoing writes. Results may trail the latest writes;
// this is a reporting surface, not a transactional ledger.
type Engine struct {
	pool    ReplicaPool
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// ReplicaPool selects a database handle for each read, so queries spread
// across replicas when several are configured. postgres.ConnectionManager
// satisfies this.
type ReplicaPool interface {
	Replica() *sql.DB
}

type staticPool struct {
	db *sql.DB
}

func (p staticPool) Replica() *sql.DB { return p.db }

// StaticPool adapts a single *sql.DB into a ReplicaPool, for single-node
// deployments and tests.
func StaticPool(db *sql.DB) ReplicaPool {
	return staticPool{db: db}
}

// NewEngine creates an aggregation engine. Each query draws its handle from
// pool. tracer may be nil when tracing is disabled.
func NewEngine(pool ReplicaPool, logger *observability.Logger, metrics *observability.Metrics, tracer trace.Tracer) *Engine {
	return &Engine{pool: pool, logger: logger, metrics: metrics, tracer: tracer}
}

// FunnelStage is a single step of the conversion funnel. ConversionRate is
// the percentage of the previous stage's sessions reaching this one; the
// first stage and any stage following an empty one report 0.
type FunnelStage struct {
	Stage          string  `json:"stage"`
	Count          int64   `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Funnel stage names, in order.
var funnelStages = []string{"session", "code_input", "generation_started", "generation_completed", "export"}

// Funnel computes the five-stage conversion funnel over the window. Counts
// are distinct sessions, and later stages are restricted to sessions
// already counted in stage one, so a server-originated generation without
// a session_start can never inflate conversion.
func (e *Engine) Funnel(ctx context.Context, start, end time.Time, excludeInternal bool) ([]FunnelStage, error) {
	ctx, done := e.startSpan(ctx, "Funnel")
	defer done()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	internalFilter := ""
	if excludeInternal {
		internalFilter = "AND is_internal = FALSE"
	}

	query := `
		WITH entered AS (
			SELECT DISTINCT session_id
			FROM analytics_events
			WHERE name = 'session_start'
			  AND session_id IS NOT NULL
			  AND created_at >= $1 AND created_at <= $2
			  ` + internalFilter + `
		)
		SELECT
			(SELECT COUNT(*) FROM entered) AS sessions,
			COUNT(DISTINCT e.session_id) FILTER (WHERE e.name = 'code_input') AS code_input,
			COUNT(DISTINCT e.session_id) FILTER (WHERE e.name = 'doc_generation') AS generation_started,
			COUNT(DISTINCT e.session_id) FILTER (WHERE e.name = 'doc_generation' AND e.payload->>'success' = 'true') AS generation_completed,
			COUNT(DISTINCT e.session_id) FILTER (WHERE e.name = 'doc_export') AS export
		FROM analytics_events e
		JOIN entered s ON s.session_id = e.session_id
		WHERE e.created_at >= $1 AND e.created_at <= $2
	`

	timer := e.observe("funnel")
	var counts [5]int64
	err := e.pool.Replica().QueryRowContext(ctx, query, start, end).Scan(
		&counts[0], &counts[1], &counts[2], &counts[3], &counts[4],
	)
	timer(err)
	if err != nil && err != sql.ErrNoRows {
		return nil, &QueryError{Method: "Funnel", Err: err}
	}

	stages := make([]FunnelStage, len(funnelStages))
	for i, name := range funnelStages {
		stages[i] = FunnelStage{Stage: name, Count: counts[i]}
		if i > 0 && counts[i-1] > 0 {
			// Later stages are only restricted to stage-1 sessions, so a
			// stage can out-count its predecessor; cap the rate at 100.
			stages[i].ConversionRate = math.Min(float64(counts[i])/float64(counts[i-1])*100, 100)
		}
	}
	return stages, nil
}

// BusinessMetricsResult aggregates the revenue and tier-transition events.
type BusinessMetricsResult struct {
	Signups       int64 `json:"signups"`
	Upgrades      int64 `json:"upgrades"`
	Downgrades    int64 `json:"downgrades"`
	Cancellations int64 `json:"cancellations"`
	RevenueCents  int64 `json:"revenue_cents"`
}

// BusinessMetrics sums revenue across checkout_completed records and counts
// tier transitions by their action discriminator.
func (e *Engine) BusinessMetrics(ctx context.Context, start, end time.Time, excludeInternal bool) (*BusinessMetricsResult, error) {
	ctx, done := e.startSpan(ctx, "BusinessMetrics")
	defer done()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	internalFilter := ""
	if excludeInternal {
		internalFilter = "AND is_internal = FALSE"
	}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE name = 'signup_completed') AS signups,
			COUNT(*) FILTER (WHERE name = 'tier_change' AND payload->>'action' = 'upgrade') AS upgrades,
			COUNT(*) FILTER (WHERE name = 'tier_change' AND payload->>'action' = 'downgrade') AS downgrades,
			COUNT(*) FILTER (WHERE name = 'tier_change' AND payload->>'action' = 'cancel') AS cancellations,
			COALESCE(SUM(CASE WHEN name = 'checkout_completed' THEN (payload->>'amount_cents')::bigint ELSE 0 END), 0) AS revenue_cents
		FROM analytics_events
		WHERE created_at >= $1 AND created_at <= $2
		` + internalFilter

	timer := e.observe("business_metrics")
	var result BusinessMetricsResult
	err := e.pool.Replica().QueryRowContext(ctx, query, start, end).Scan(
		&result.Signups, &result.Upgrades, &result.Downgrades,
		&result.Cancellations, &result.RevenueCents,
	)
	timer(err)
	if err != nil && err != sql.ErrNoRows {
		return nil, &QueryError{Method: "BusinessMetrics", Err: err}
	}

	return &result, nil
}

// UsagePatternsResult describes how generation is being used over a window.
// QualityScoreHistogram buckets scores into fixed 10-point ranges from
// 0-100; scores outside that range are excluded and counted in
// ScoreAnomalies instead.
type UsagePatternsResult struct {
	DocTypeCounts         map[string]int64 `json:"doc_type_counts"`
	LanguageCounts        map[string]int64 `json:"language_counts"`
	QualityScoreHistogram [10]int64        `json:"quality_score_histogram"`
	ScoreAnomalies        int64            `json:"score_anomalies"`
	BatchVsSingleRatio    float64          `json:"batch_vs_single_ratio"`
}

// UsagePatterns fans its independent sub-queries out concurrently; each is
// a pure read so ordering between them does not matter.
func (e *Engine) UsagePatterns(ctx context.Context, start, end time.Time, excludeInternal bool) (*UsagePatternsResult, error) {
	ctx, done := e.startSpan(ctx, "UsagePatterns")
	defer done()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	internalFilter := ""
	if excludeInternal {
		internalFilter = "AND is_internal = FALSE"
	}

	result := &UsagePatternsResult{
		DocTypeCounts:  make(map[string]int64),
		LanguageCounts: make(map[string]int64),
	}

	timer := e.observe("usage_patterns")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.countByPayloadKey(gctx, start, end, internalFilter, "doc_type", result.DocTypeCounts)
	})
	g.Go(func() error {
		return e.countByPayloadKey(gctx, start, end, internalFilter, "language", result.LanguageCounts)
	})
	g.Go(func() error {
		hist, anomalies, err := e.scoreHistogram(gctx, start, end, internalFilter)
		if err != nil {
			return err
		}
		result.QualityScoreHistogram = hist
		result.ScoreAnomalies = anomalies
		return nil
	})
	g.Go(func() error {
		ratio, err := e.batchRatio(gctx, start, end, internalFilter)
		if err != nil {
			return err
		}
		result.BatchVsSingleRatio = ratio
		return nil
	})

	err := g.Wait()
	timer(err)
	if err != nil {
		return nil, &QueryError{Method: "UsagePatterns", Err: err}
	}
	return result, nil
}

func (e *Engine) countByPayloadKey(ctx context.Context, start, end time.Time, internalFilter, key string, out map[string]int64) error {
	query := `
		SELECT payload->>'` + key + `' AS value, COUNT(*)
		FROM analytics_events
		WHERE name = 'doc_generation'
		  AND payload ? '` + key + `'
		  AND created_at >= $1 AND created_at <= $2
		  ` + internalFilter + `
		GROUP BY value
	`
	rows, err := e.pool.Replica().QueryContext(ctx, query, start, end)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return err
		}
		out[value] = count
	}
	return rows.Err()
}

func (e *Engine) scoreHistogram(ctx context.Context, start, end time.Time, internalFilter string) ([10]int64, int64, error) {
	// Bucket -1 collects out-of-range scores as anomalies.
	query := `
		SELECT
			CASE
				WHEN (payload->>'score')::numeric < 0 OR (payload->>'score')::numeric > 100 THEN -1
				ELSE LEAST(FLOOR((payload->>'score')::numeric / 10), 9)::int
			END AS bucket,
			COUNT(*)
		FROM analytics_events
		WHERE name = 'doc_generation'
		  AND payload ? 'score'
		  AND created_at >= $1 AND created_at <= $2
		  ` + internalFilter + `
		GROUP BY bucket
	`
	var hist [10]int64
	var anomalies int64

	rows, err := e.pool.Replica().QueryContext(ctx, query, start, end)
	if err != nil {
		return hist, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket int
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return hist, 0, err
		}
		if bucket == -1 {
			anomalies = count
			continue
		}
		if bucket >= 0 && bucket < len(hist) {
			hist[bucket] = count
		}
	}
	return hist, anomalies, rows.Err()
}

func (e *Engine) batchRatio(ctx context.Context, start, end time.Time, internalFilter string) (float64, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE payload->>'batch' = 'true') AS batch,
			COUNT(*) FILTER (WHERE payload->>'batch' IS DISTINCT FROM 'true') AS single
		FROM analytics_events
		WHERE name = 'doc_generation'
		  AND created_at >= $1 AND created_at <= $2
		  ` + internalFilter

	var batch, single int64
	err := e.pool.Replica().QueryRowContext(ctx, query, start, end).Scan(&batch, &single)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	if single == 0 {
		return 0, nil
	}
	return float64(batch) / float64(single), nil
}

// TimeSeriesPoint is a single bucket of a time series.
type TimeSeriesPoint struct {
	BucketStart time.Time `json:"bucket_start"`
	Value       int64     `json:"value"`
}

// Metrics available through TimeSeries.
const (
	MetricEvents       = "events"
	MetricSessions     = "sessions"
	MetricGenerations  = "generations"
	MetricRevenueCents = "revenue_cents"
)

var timeSeriesExprs = map[string]struct{ expr, filter string }{
	MetricEvents:       {expr: "COUNT(*)"},
	MetricSessions:     {expr: "COUNT(DISTINCT session_id)", filter: "AND session_id IS NOT NULL"},
	MetricGenerations:  {expr: "COUNT(*)", filter: "AND name = 'doc_generation'"},
	MetricRevenueCents: {expr: "COALESCE(SUM((payload->>'amount_cents')::bigint), 0)", filter: "AND name = 'checkout_completed'"},
}

// TimeSeries returns one point per bucket over the window, in order, with
// zero-valued buckets filled in so callers can render continuous charts.
// granularity must be day, week, or month.
func (e *Engine) TimeSeries(ctx context.Context, metric string, start, end time.Time, granularity string, excludeInternal bool) ([]TimeSeriesPoint, error) {
	ctx, done := e.startSpan(ctx, "TimeSeries")
	defer done()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	spec, ok := timeSeriesExprs[metric]
	if !ok {
		return nil, &InvalidRangeError{Start: start, End: end, Reason: "unknown metric " + metric}
	}
	switch granularity {
	case "day", "week", "month":
	default:
		return nil, &InvalidRangeError{Start: start, End: end, Reason: "granularity must be day, week, or month"}
	}

	internalFilter := ""
	if excludeInternal {
		internalFilter = "AND is_internal = FALSE"
	}

	query := `
		SELECT date_trunc('` + granularity + `', created_at) AS bucket, ` + spec.expr + `
		FROM analytics_events
		WHERE created_at >= $1 AND created_at <= $2
		` + spec.filter + `
		` + internalFilter + `
		GROUP BY bucket
		ORDER BY bucket ASC
	`

	timer := e.observe("time_series")
	rows, err := e.pool.Replica().QueryContext(ctx, query, start, end)
	if err != nil {
		timer(err)
		return nil, &QueryError{Method: "TimeSeries", Err: err}
	}
	defer rows.Close()

	values := make(map[time.Time]int64)
	for rows.Next() {
		var bucket time.Time
		var value int64
		if err := rows.Scan(&bucket, &value); err != nil {
			timer(err)
			return nil, &QueryError{Method: "TimeSeries", Err: err}
		}
		values[bucket.UTC()] = value
	}
	if err := rows.Err(); err != nil {
		timer(err)
		return nil, &QueryError{Method: "TimeSeries", Err: err}
	}
	timer(nil)

	var points []TimeSeriesPoint
	for bucket := truncateToBucket(start.UTC(), granularity); !bucket.After(end.UTC()); bucket = nextBucket(bucket, granularity) {
		points = append(points, TimeSeriesPoint{BucketStart: bucket, Value: values[bucket]})
	}
	return points, nil
}

// truncateToBucket mirrors Postgres date_trunc in UTC: weeks start on
// Monday, months on the first.
func truncateToBucket(t time.Time, granularity string) time.Time {
	switch granularity {
	case "week":
		day := t.UTC()
		offset := (int(day.Weekday()) + 6) % 7
		day = day.AddDate(0, 0, -offset)
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(t time.Time, granularity string) time.Time {
	switch granularity {
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func validateRange(start, end time.Time) error {
	if start.After(end) {
		return &InvalidRangeError{Start: start, End: end, Reason: "start is after end"}
	}
	return nil
}

// observe returns a completion callback recording query duration and
// errors for the given method label.
func (e *Engine) observe(method string) func(error) {
	start := time.Now()
	return func(err error) {
		e.metrics.ObserveQuery(method, time.Since(start), err)
	}
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := e.tracer.Start(ctx, "analytics.Engine."+name)
	return ctx, func() { span.End() }
}
