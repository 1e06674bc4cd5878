package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/model"
)

const (
	// eventBuffer is how many events a slow stream client may lag behind
	// before events are dropped for it.
	eventBuffer = 256

	keepAliveInterval = 15 * time.Second
)

// handleStreamEvents streams task events as server-sent events. The
// subscription is in place before the response headers are sent, so a client
// that has seen the headers will not miss later events.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	events := make(chan model.TaskEvent, eventBuffer)
	subID, err := s.engine.Subscribe(func(ev model.TaskEvent) {
		select {
		case events <- ev:
		default:
			eventsDropped.Inc()
		}
	})
	if err != nil {
		s.logger.Error("subscribe to events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer func() {
		if err := s.engine.Unsubscribe(subID); err != nil {
			s.logger.Warn("unsubscribe event stream", "subscription", subID, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	eventStreams.Inc()
	defer eventStreams.Dec()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("encode task event", "task_id", ev.TaskID, "error", err)
				continue
			}
			if err := writeSSEEvent(w, ev.Type, string(data)); err != nil {
				return // Write failed (e.g. client gone).
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// writeSSEData writes data as SSE data lines. Multi-line strings are split so
// that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, data string) error {
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event.
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	return writeSSEData(w, data)
}
