package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cashquest/backend/internal/events"
)

const streamHeartbeat = 25 * time.Second

// StreamHandler pushes account activity to clients over Server-Sent Events.
type StreamHandler struct {
	broker *events.Broker
}

func NewStreamHandler(broker *events.Broker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// Stream subscribes the caller to their live activity feed
// @Summary Stream account events
// @Description Server-Sent Events feed of ledger, task, withdrawal and check-in activity for the caller
// @Tags stream
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Failure 401 {string} string "Unauthorized"
// @Router /stream [get]
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.broker.Subscribe(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	log.Printf("[STREAM] User %d connected", userID)

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[STREAM] User %d disconnected", userID)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[STREAM] Marshal failed for user %d: %v", userID, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
