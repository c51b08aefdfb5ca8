package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resumeforge/tailorcore/agents/polisher"
	"github.com/resumeforge/tailorcore/coreerrors"
)

// handleExport implements GET /export/{run_id}?format=docx: delegates to the
// Renderer collaborator with Agent 5's persisted export_artifact. A renderer
// failure is a PERMANENT error on this path only; the run's own recovery
// session is left untouched (spec.md §6 External collaborators).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "docx"
	}

	checkpoints, err := s.Store.GetCheckpoints(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var artifact polisher.ExportArtifact
	found := false
	for _, cp := range checkpoints {
		if cp.AgentIndex != polisher.Index {
			continue
		}
		var out polisher.Output
		if jerr := json.Unmarshal(cp.OutputJSON, &out); jerr != nil {
			s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, "could not decode stored polisher output", jerr))
			return
		}
		artifact = out.ExportArtifact
		found = true
		break
	}
	if !found {
		s.writeError(w, r, coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, runID, "run has no polisher checkpoint yet", nil))
		return
	}

	doc, contentType, err := s.Renderer.Render(r.Context(), format, artifact)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
