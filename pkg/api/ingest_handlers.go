package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/scribedocs/scribe/pkg/analytics"
	"github.com/scribedocs/scribe/pkg/httputil"
)

// recordEventRequest is the ingest payload submitted by producers.
type recordEventRequest struct {
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload"`
	Context struct {
		SessionID string `json:"session_id"`
		UserID    *int64 `json:"user_id"`
	} `json:"context"`
}

// identifySessionRequest binds a user to a previously anonymous session.
type identifySessionRequest struct {
	UserID int64 `json:"user_id"`
}

// recordEvent handles POST /api/v1/events
//
// Responds 202 for every well-formed request, including ones whose append
// soft-failed or was suppressed by the opt-out gate; producers must not be
// able to tell those apart. 400 is reserved for malformed JSON and an
// empty event name.
func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "event name is required")
		return
	}

	actor := analytics.ActorContext{
		SessionID: req.Context.SessionID,
		UserID:    req.Context.UserID,
	}
	s.recorder.RecordAsync(r.Context(), req.Name, req.Payload, actor)

	httputil.WriteAccepted(w, map[string]string{"status": "accepted"})
}

// identifySession handles POST /api/v1/sessions/{id}/identify
//
// Late identity binding: reclassifies every prior event of the session to
// the now-known actor.
func (s *Server) identifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req identifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	rows, err := s.recorder.ReclassifySession(r.Context(), sessionID, req.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"session_id":         sessionID,
		"reclassified_count": rows,
	})
}
