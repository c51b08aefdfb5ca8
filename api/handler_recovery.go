package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resumeforge/tailorcore/recovery"
)

// handleGetSession implements GET /recovery-session/{id} (spec.md §6).
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// handleDeleteSession implements DELETE /recovery-session/{id}: a
// user-initiated discard (spec.md §6).
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSessionResponse(sess recovery.RecoverySession) sessionResponse {
	out := sessionResponse{
		RunID:           sess.RunID,
		Status:          string(sess.Status),
		CompletedAgents: sess.CompletedAgents,
		RetryCount:      sess.RetryCount,
	}
	if sess.ErrorContext != nil {
		out.ErrorMessage = sess.ErrorContext.Message
		out.ErrorType = sess.ErrorContext.Type
	}
	return out
}

// handleSnapshot implements GET /jobs/{run_id}/snapshot (spec.md C3.snapshot).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	snap := s.Bus.Snapshot(runID)
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		RunID:          snap.RunID,
		Status:         snap.Status,
		CurrentStep:    snap.CurrentStep,
		CompletedSteps: snap.CompletedSteps,
		Metrics:        snap.Metrics,
		LastEventID:    snap.LastEventID,
	})
}
