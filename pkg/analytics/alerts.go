package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scribedocs/scribe/pkg/observability"
)

// Alerter monitors the pipeline's own health signals and logs alerts for
// operators. Checks read the rollup table, not the raw log, so they stay
// cheap enough to run on a schedule.
type Alerter struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAlerter creates a new Alerter instance
func NewAlerter(db *sql.DB, logger *observability.Logger) *Alerter {
	return &Alerter{db: db, logger: logger}
}

// VolumeAlert flags a day whose event volume dropped sharply against the
// trailing week, which usually means a producer stopped emitting.
type VolumeAlert struct {
	Date            time.Time
	DayCount        int64
	TrailingAverage float64
	DropRatio       float64
}

// StalenessAlert flags a rollup that has not been recomputed recently.
type StalenessAlert struct {
	LatestDate time.Time
	AgeDays    int
}

// CheckVolumeDrop compares yesterday's total event count against the
// average of the seven days before it. dropThreshold is the fraction of
// the trailing average below which a day alerts (e.g. 0.5 for half).
func (a *Alerter) CheckVolumeDrop(ctx context.Context, dropThreshold float64) (*VolumeAlert, error) {
	query := `
		SELECT
			day.date,
			day.workflow_count + day.business_count + day.usage_count + day.system_count AS day_count,
			COALESCE((
				SELECT AVG(t.workflow_count + t.business_count + t.usage_count + t.system_count)
				FROM analytics_daily t
				WHERE t.date >= day.date - INTERVAL '7 days'
				  AND t.date < day.date
			), 0) AS trailing_average
		FROM analytics_daily day
		WHERE day.date = CURRENT_DATE - INTERVAL '1 day'
	`

	var alert VolumeAlert
	err := a.db.QueryRowContext(ctx, query).Scan(&alert.Date, &alert.DayCount, &alert.TrailingAverage)
	if err == sql.ErrNoRows {
		// Yesterday has not been rolled up yet; staleness check covers it.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query volume alert: %w", err)
	}

	if alert.TrailingAverage == 0 {
		return nil, nil
	}
	alert.DropRatio = float64(alert.DayCount) / alert.TrailingAverage
	if alert.DropRatio >= dropThreshold {
		return nil, nil
	}
	return &alert, nil
}

// CheckRollupStaleness alerts when the newest rollup row is older than
// maxAgeDays, meaning the scheduler has been failing silently.
func (a *Alerter) CheckRollupStaleness(ctx context.Context, maxAgeDays int) (*StalenessAlert, error) {
	query := `
		SELECT MAX(date), COALESCE(DATE_PART('day', NOW() - MAX(date)), 999)
		FROM analytics_daily
	`

	var latest sql.NullTime
	var ageDays float64
	err := a.db.QueryRowContext(ctx, query).Scan(&latest, &ageDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup staleness: %w", err)
	}
	if !latest.Valid {
		// Empty table on a fresh deployment is not an alert.
		return nil, nil
	}
	if int(ageDays) <= maxAgeDays {
		return nil, nil
	}
	return &StalenessAlert{LatestDate: latest.Time, AgeDays: int(ageDays)}, nil
}

// CheckAllAlerts runs every check and logs findings. Check failures are
// logged and do not stop the remaining checks.
func (a *Alerter) CheckAllAlerts(ctx context.Context) error {
	a.logger.Info("running analytics alert checks")

	volume, err := a.CheckVolumeDrop(ctx, 0.5)
	if err != nil {
		a.logger.WithError(err).Error("volume drop check failed")
	} else if volume != nil {
		a.logger.WithFields(map[string]interface{}{
			"date":             volume.Date.Format("2006-01-02"),
			"day_count":        volume.DayCount,
			"trailing_average": volume.TrailingAverage,
			"drop_ratio":       volume.DropRatio,
		}).Warn("event volume dropped sharply against the trailing week")
	}

	staleness, err := a.CheckRollupStaleness(ctx, 2)
	if err != nil {
		a.logger.WithError(err).Error("rollup staleness check failed")
	} else if staleness != nil {
		a.logger.WithFields(map[string]interface{}{
			"latest_date": staleness.LatestDate.Format("2006-01-02"),
			"age_days":    staleness.AgeDays,
		}).Warn("daily rollup is stale")
	}

	a.logger.Info("analytics alert checks completed")
	return nil
}
