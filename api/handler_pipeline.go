package api

import (
	"encoding/json"
	"net/http"

	"github.com/resumeforge/tailorcore/config"
	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/orchestrator"
)

// handleStartRun implements POST /pipeline/start (spec.md §6).
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	if cid == "" {
		s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "X-Client-Id header is required", nil))
		return
	}

	var body startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "malformed JSON body", err))
		return
	}

	runID, err := s.Orchestrator.StartRun(r.Context(), orchestrator.RunRequest{
		ClientID:       cid,
		ResumeText:     body.ResumeText,
		JobText:        body.JobText,
		JobURL:         body.JobURL,
		LinkedInURL:    body.LinkedInURL,
		GithubUsername: body.GithubUsername,
		ModelOverrides: modelOverrides(body.Models),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID, Status: "pending"})
}

// modelOverrides maps startRunRequest.models's public per-agent field names
// to config.AgentIndex, per spec.md §6 and the ANALYZER_MODEL/OPTIMIZER_MODEL/
// IMPLEMENTER_MODEL/VALIDATOR_MODEL/POLISH_MODEL naming in config.Config.
func modelOverrides(m *modelOverrideSet) map[config.AgentIndex]string {
	out := make(map[config.AgentIndex]string)
	if m == nil {
		return out
	}
	if m.Analyzer != "" {
		out[config.AgentAnalyzer] = m.Analyzer
	}
	if m.Optimizer != "" {
		out[config.AgentStrategy] = m.Optimizer
	}
	if m.Implementer != "" {
		out[config.AgentBuilder] = m.Implementer
	}
	if m.Validator != "" {
		out[config.AgentValidator] = m.Validator
	}
	if m.Polish != "" {
		out[config.AgentPolisher] = m.Polish
	}
	return out
}

// handleOptimizeRetry implements POST /optimize-retry (spec.md §6).
func (s *Server) handleOptimizeRetry(w http.ResponseWriter, r *http.Request) {
	var body retryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "malformed JSON body", err))
		return
	}
	if body.SessionID == "" {
		s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "session_id is required", nil))
		return
	}

	if err := s.Orchestrator.Retry(r.Context(), body.SessionID); err != nil {
		if err == orchestrator.ErrMaxRetriesExceeded {
			s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeRetryExhausted, body.SessionID, "retry budget exhausted", err))
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, retryResponse{RunID: body.SessionID, Status: "pending"})
}
