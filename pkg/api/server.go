package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/httputil"
	"github.com/scribedocs/scribe/pkg/observability"
)

// Server represents the analytics API server
type Server struct {
	router   *mux.Router
	recorder *analytics.Recorder
	engine   *analytics.Engine
	rollup   *analytics.Rollup
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewServer creates a new API server with all routes configured
func NewServer(recorder *analytics.Recorder, engine *analytics.Engine, rollup *analytics.Rollup, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		recorder: recorder,
		engine:   engine,
		rollup:   rollup,
		logger:   logger,
		metrics:  metrics,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	s.router.Use(httputil.MetricsMiddleware(s.metrics))
	s.router.Use(httputil.RecoveryMiddleware)

	// Ingest routes
	s.router.HandleFunc("/api/v1/events", s.recordEvent).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/{id}/identify", s.identifySession).Methods("POST")

	// Query routes
	s.router.HandleFunc("/api/v1/analytics/funnel", s.getFunnel).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/business", s.getBusinessMetrics).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/usage", s.getUsagePatterns).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/timeseries", s.getTimeSeries).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/overview", s.getOverview).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
