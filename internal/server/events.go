package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"styleforge/internal/logging"
)

const sseKeepaliveInterval = 15 * time.Second

// handleSessionEvents streams a session's progress as server-sent events.
// The progress channel allows one reader per session; a second subscriber
// gets 409 rather than a partial stream. When the client goes away the
// channel is disconnected, which tells the controller to stop iterating.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	e, ok := s.registry.get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if !e.claimStream() {
		s.respondError(w, http.StatusConflict, "event stream already claimed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	fmt.Fprintf(w, "event: connected\n")
	fmt.Fprintf(w, "data: {\"session_id\": %q}\n\n", id)
	flusher.Flush()

	s.metrics.SSEStreamsActive.Inc()
	defer s.metrics.SSEStreamsActive.Dec()

	progress := e.ctrl.Progress()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			progress.Disconnect()
			logging.ServerDebug("event stream for %s closed by client", id)
			return
		case ev, ok := <-progress.Events():
			if !ok {
				// Stream sealed; everything buffered has been delivered.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logging.ServerError("marshal event %s/%d: %v", id, ev.Seq, err)
				continue
			}
			fmt.Fprintf(w, "id: %d\n", ev.Seq)
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
