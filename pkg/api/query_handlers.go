package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/httputil"
)

// queryWindow parses the start/end/exclude_internal parameters shared by
// every query endpoint. start and end are RFC 3339.
func queryWindow(r *http.Request) (start, end time.Time, excludeInternal bool, err error) {
	q := r.URL.Query()

	start, err = time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		return start, end, false, errors.New("start must be RFC 3339")
	}
	end, err = time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		return start, end, false, errors.New("end must be RFC 3339")
	}
	excludeInternal = q.Get("exclude_internal") == "true"
	return start, end, excludeInternal, nil
}

// writeQueryError maps engine errors onto HTTP statuses: user-correctable
// parameters get 400, an unavailable store gets 503.
func writeQueryError(w http.ResponseWriter, err error) {
	var rangeErr *analytics.InvalidRangeError
	if errors.As(err, &rangeErr) {
		httputil.WriteValidationError(w, rangeErr.Reason)
		return
	}
	var queryErr *analytics.QueryError
	if errors.As(err, &queryErr) {
		httputil.WriteUnavailableError(w, queryErr)
		return
	}
	httputil.WriteInternalError(w, err)
}

// getFunnel handles GET /api/v1/analytics/funnel
func (s *Server) getFunnel(w http.ResponseWriter, r *http.Request) {
	start, end, excludeInternal, err := queryWindow(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	stages, err := s.engine.Funnel(r.Context(), start, end, excludeInternal)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	httputil.WriteSuccess(w, stages)
}

// getBusinessMetrics handles GET /api/v1/analytics/business
func (s *Server) getBusinessMetrics(w http.ResponseWriter, r *http.Request) {
	start, end, excludeInternal, err := queryWindow(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	result, err := s.engine.BusinessMetrics(r.Context(), start, end, excludeInternal)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getUsagePatterns handles GET /api/v1/analytics/usage
func (s *Server) getUsagePatterns(w http.ResponseWriter, r *http.Request) {
	start, end, excludeInternal, err := queryWindow(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	result, err := s.engine.UsagePatterns(r.Context(), start, end, excludeInternal)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getTimeSeries handles GET /api/v1/analytics/timeseries
//
// Query params:
//   - metric: events, sessions, generations, revenue_cents (default events)
//   - granularity: day, week, month (default day)
func (s *Server) getTimeSeries(w http.ResponseWriter, r *http.Request) {
	start, end, excludeInternal, err := queryWindow(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = analytics.MetricEvents
	}
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "day"
	}

	points, err := s.engine.TimeSeries(r.Context(), metric, start, end, granularity, excludeInternal)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	httputil.WriteSuccess(w, points)
}

// getOverview handles GET /api/v1/analytics/overview
//
// Returns high-level KPIs from the daily rollup for the dashboard landing
// page.
func (s *Server) getOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.rollup.GetOverview(r.Context())
	if err != nil {
		writeQueryError(w, err)
		return
	}
	httputil.WriteSuccess(w, overview)
}
