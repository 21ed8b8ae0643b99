package boardapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ateam/orchestrator/internal/broker"
)

// handleEvents streams a project's event broker topic as Server-Sent
// Events: one `data: <json>\n\n` record per event, with a heartbeat
// comment emitted after any idle period reaching the broker's interval.
//
// Grounded on the teacher's handleSSE (internal/web/sse.go), generalized
// from an untyped message-channel broadcast to the broker's per-project,
// bounded-queue Subscription and the {type, timestamp, data} wire
// envelope this system's clients expect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.broker.Subscribe(r.Context(), projectID)
	if sub == nil {
		return
	}
	defer sub.Close()

	w.WriteHeader(http.StatusOK)

	// A subscriber that only saw deltas from the moment it connected could
	// never recover the board's current state; send a snapshot frame first
	// so every subsequent item-moved/item-added delta lands on known ground.
	if snapshot, err := s.currentSnapshot(projectID, false); err != nil {
		s.logger.Error("failed to build connect-time snapshot", "error", err)
	} else {
		payload, err := json.Marshal(broker.Event{Type: broker.KindBoardUpdated, Timestamp: time.Now(), Data: snapshot})
		if err != nil {
			s.logger.Error("failed to encode SSE snapshot", "error", err)
		} else {
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(sub.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to encode SSE event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			ticker.Reset(sub.HeartbeatInterval())

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
