package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
)

// sseKeepaliveInterval is how often keepalive comments are sent to
// prevent connection timeouts.
var sseKeepaliveInterval = 15 * time.Second

// handleEventStream handles GET /v1/tenants/{tenant}/events (SSE endpoint).
// The stream joins the tenant's room; a Last-Event-ID header replays the
// buffered events the client missed.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	tenantID := r.PathValue("tenant")

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Join before replaying so nothing published in between is lost; the
	// replay high-water mark suppresses the resulting duplicates.
	s.hub.Join(sub, tenantID)

	var replayedTo uint64
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.hub.EventsSince(tenantID, lastID) {
				writeSSEEvent(w, evt)
				replayedTo = evt.ID
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.ID <= replayedTo {
				continue
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the writer.
func writeSSEEvent(w http.ResponseWriter, evt *broadcast.Event) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Name)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
