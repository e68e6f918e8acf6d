package http

import (
	"context"
	"net/http"
	"time"

	applog "sitefin/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "not ready")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

// handleRecomputeAll runs the repair pass. Partial failures still return the
// report, with a 500 status.
func (s *Server) handleRecomputeAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.RecomputeAll(r.Context())
	if err != nil {
		applog.LogError(r.Context(), "Repair pass failed", err, applog.OpRecompute, applog.ErrorTypeInternal, nil)
		writeJSON(w, http.StatusInternalServerError, envelope{
			Status:  "error",
			Message: "some sites failed to recompute",
			Data:    toRepairResponse(report),
		})
		return
	}
	writeSuccess(w, http.StatusOK, toRepairResponse(report))
}
