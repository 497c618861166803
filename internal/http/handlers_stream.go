package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// handleStream serves the Server-Sent Events push channel. The stream opens
// with the hub's synthetic "connected" event, then forwards every broadcast
// until the client disconnects or the hub closes the subscriber.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Long-lived response: lift the server-wide write deadline.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.WarnContext(r.Context(), "Cannot clear write deadline for stream", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.WarnContext(r.Context(), "Streaming unsupported by connection", "error", err)
		return
	}

	sub := s.hub.Register()
	defer s.hub.Unregister(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Closed by the hub: delivery failure or idle timeout.
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Payload); err != nil {
				slog.DebugContext(r.Context(), "Stream write failed, dropping subscriber", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
