package api

import (
	"encoding/json"
	"net/http"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/recovery"
)

// statusFor maps a coreerrors.Type to its HTTP status, mirroring the
// teacher's mapServiceError switch over sentinel service errors.
func statusFor(kind coreerrors.Type) int {
	switch kind {
	case coreerrors.TypeBadRequest:
		return http.StatusBadRequest
	case coreerrors.TypeQuotaExceeded:
		return http.StatusTooManyRequests
	case coreerrors.TypeSessionNotFound:
		return http.StatusNotFound
	case coreerrors.TypeRetryExhausted:
		return http.StatusConflict
	case coreerrors.TypeRendererSyntax:
		return http.StatusBadGateway
	case coreerrors.TypeJobFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a JSON error body and status code. recovery.ErrNotFound
// crosses package boundaries as a sentinel value rather than a
// *coreerrors.CoreError, so it is mapped to SESSION_NOT_FOUND here;
// orchestrator.ErrMaxRetriesExceeded is converted by handleOptimizeRetry
// before it reaches writeError.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		kind   coreerrors.Type
		msg    string
	)

	switch ce, ok := coreerrors.As(err); {
	case ok:
		status = statusFor(ce.Kind)
		kind = ce.Kind
		msg = coreerrors.PublicMessage(ce.Kind)
	case err == recovery.ErrNotFound:
		status = http.StatusNotFound
		kind = coreerrors.TypeSessionNotFound
		msg = coreerrors.PublicMessage(coreerrors.TypeSessionNotFound)
	default:
		status = http.StatusInternalServerError
		kind = coreerrors.TypeInternal
		msg = coreerrors.PublicMessage(coreerrors.TypeInternal)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "3600")
	}
	s.Logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "err", err)

	var resp errorResponse
	resp.Error.Type = string(kind)
	resp.Error.Message = msg
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
