package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resumeforge/tailorcore/eventbus"
)

// handleStream implements GET /jobs/{run_id}/stream: a Server-Sent-Events
// stream of a run's events, replaying history after the requested cursor
// before tailing live ones (spec.md §6, "Event stream wire format").
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("api: streaming unsupported by this response writer"))
		return
	}

	after := afterEventID(r)
	sub, err := s.Bus.Subscribe(r.Context(), runID, after)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, ok, err := sub.Recv()
		if !ok {
			if err == eventbus.ErrSlowConsumer {
				fmt.Fprintf(w, ": slow consumer, reconnect with after_event_id\n\n")
				flusher.Flush()
			}
			return
		}
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

// afterEventID resolves the replay cursor from the Last-Event-ID header or
// the after_event_id query parameter (spec.md §6); the header takes
// precedence, matching the SSE spec's own reconnection convention.
func afterEventID(r *http.Request) int64 {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if v := r.URL.Query().Get("after_event_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// writeSSEEvent renders one Event in the id:/event:/data: wire format
// (spec.md §6's "Event stream wire format").
func writeSSEEvent(w http.ResponseWriter, ev eventbus.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.EventID, ev.Type, ev.Payload)
	return err
}
