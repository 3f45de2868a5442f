package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/api"
	"github.com/scribedocs/scribe/pkg/config"
	"github.com/scribedocs/scribe/pkg/identity"
	"github.com/scribedocs/scribe/pkg/observability"
	"github.com/scribedocs/scribe/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "scribe-analytics")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Insecure:       cfg.Observability.TracingInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownTracing(shutdownCtx, tp, logger)
	}()

	// Storage
	connMgr, err := postgres.NewConnectionManager(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer connMgr.Close()
	connMgr.StartPoolStatsRoutine(ctx, metrics, 15*time.Second)

	prefs, err := postgres.NewPreferenceStore(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to preference store")
		os.Exit(1)
	}
	defer prefs.Close()

	// Event catalog, with optional hot-reloaded overrides
	catalog := analytics.NewCatalog()
	if cfg.Analytics.CatalogPath != "" {
		catalog, err = analytics.NewCatalogFromFile(cfg.Analytics.CatalogPath, logger)
		if err != nil {
			logger.WithError(err).Error("failed to load event catalog")
			os.Exit(1)
		}
		stopWatch, err := catalog.Watch()
		if err != nil {
			logger.WithError(err).Error("failed to watch event catalog")
			os.Exit(1)
		}
		defer stopWatch()
	}

	// Pipeline
	identities := identity.NewService(connMgr.Primary(), cfg.Analytics.IdentityCacheTTL)
	gate := analytics.NewGate(prefs, cfg.Analytics.IsProduction(), logger)
	validator := analytics.NewValidator(catalog)
	classifier := analytics.NewClassifier(identities, logger)

	recorder, err := analytics.NewRecorder(connMgr.Primary(), gate, validator, classifier, logger, metrics, cfg.Analytics.RecordTimeout)
	if err != nil {
		logger.WithError(err).Error("failed to initialize recorder")
		os.Exit(1)
	}
	rollup, err := analytics.NewRollup(connMgr.Primary(), logger, metrics)
	if err != nil {
		logger.WithError(err).Error("failed to initialize rollup")
		os.Exit(1)
	}

	var tracer trace.Tracer
	if tp != nil {
		tracer = otel.Tracer("scribe/analytics")
	}
	engine := analytics.NewEngine(connMgr, logger, metrics, tracer)

	server := api.NewServer(recorder, engine, rollup, logger, metrics)

	var apiHandler http.Handler = server
	if tp != nil {
		apiHandler = otelhttp.NewHandler(server, "scribe-analytics")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(registry, connMgr, prefs, cfg.Observability.MetricsEnabled),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("analytics API listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func healthMux(registry *prometheus.Registry, connMgr *postgres.ConnectionManager, prefs *postgres.PreferenceStore, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := connMgr.HealthCheck(ctx); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := prefs.HealthCheck(ctx); err != nil {
			http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	if metricsEnabled {
		mux.Handle("/metrics", observability.MetricsHandler(registry))
	}

	return mux
}
