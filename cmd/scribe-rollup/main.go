package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/archive"
	"github.com/scribedocs/scribe/pkg/config"
	"github.com/scribedocs/scribe/pkg/observability"
	"github.com/scribedocs/scribe/pkg/storage/postgres"
)

var (
	rollupSchedule  = flag.String("rollup-schedule", "5 0 * * *", "Cron schedule for the daily rollup (default: 00:05 UTC)")
	archiveSchedule = flag.String("archive-schedule", "30 1 * * *", "Cron schedule for archive export and purge (default: 01:30 UTC)")
	alertSchedule   = flag.String("alert-schedule", "0 */6 * * *", "Cron schedule for pipeline alert checks (default: every 6 hours)")
	runOnce         = flag.Bool("run-once", false, "Run the rollup once and exit (for backfills)")
	rollupDate      = flag.String("date", "", "Date to roll up (YYYY-MM-DD). If empty, rolls up yesterday. Only used with --run-once")
	rollupEndDate   = flag.String("end-date", "", "Optional end of a backfill range (YYYY-MM-DD, inclusive). Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "scribe-rollup")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	connMgr, err := postgres.NewConnectionManager(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer connMgr.Close()

	rollup, err := analytics.NewRollup(connMgr.Primary(), logger, metrics)
	if err != nil {
		logger.WithError(err).Error("failed to initialize rollup")
		os.Exit(1)
	}

	var exporter *archive.Exporter
	if cfg.Archive.Enabled {
		s3Client, err := archive.NewS3Client(context.Background(), cfg.Archive)
		if err != nil {
			logger.WithError(err).Error("failed to initialize S3 client")
			os.Exit(1)
		}
		exporter, err = archive.NewExporter(connMgr.Primary(), s3Client, logger, metrics, cfg.Archive.RetentionDays)
		if err != nil {
			logger.WithError(err).Error("failed to initialize archive exporter")
			os.Exit(1)
		}
	}

	// Run once mode (for backfilling)
	if *runOnce {
		start := time.Now().UTC().AddDate(0, 0, -1)
		if *rollupDate != "" {
			start, err = time.Parse("2006-01-02", *rollupDate)
			if err != nil {
				logger.WithError(err).Error("invalid --date")
				os.Exit(1)
			}
		}
		end := start
		if *rollupEndDate != "" {
			end, err = time.Parse("2006-01-02", *rollupEndDate)
			if err != nil {
				logger.WithError(err).Error("invalid --end-date")
				os.Exit(1)
			}
		}

		if err := rollup.RollupRange(context.Background(), start, end); err != nil {
			logger.WithError(err).Error("rollup failed")
			os.Exit(1)
		}
		logger.Info("rollup completed")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(*rollupSchedule, func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		log := logger.WithField("date", yesterday.Format("2006-01-02"))
		log.Info("starting daily rollup")

		if err := rollup.RollupDay(context.Background(), yesterday); err != nil {
			log.WithError(err).Error("daily rollup failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule daily rollup")
		os.Exit(1)
	}

	if exporter != nil {
		_, err = c.AddFunc(*archiveSchedule, func() {
			logger.Info("starting archive export")
			if err := exporter.Run(context.Background(), time.Now()); err != nil {
				logger.WithError(err).Error("archive export failed")
			}
		})
		if err != nil {
			logger.WithError(err).Error("failed to schedule archive export")
			os.Exit(1)
		}
	}

	alerter := analytics.NewAlerter(connMgr.Primary(), logger)
	_, err = c.AddFunc(*alertSchedule, func() {
		if err := alerter.CheckAllAlerts(context.Background()); err != nil {
			logger.WithError(err).Error("alert checks failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("failed to schedule alert checks")
		os.Exit(1)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"rollup_schedule":  *rollupSchedule,
		"archive_schedule": *archiveSchedule,
		"alert_schedule":   *alertSchedule,
		"archive_enabled":  cfg.Archive.Enabled,
	}).Info("scribe rollup scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")
}
