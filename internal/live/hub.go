package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/groupbuy-api/internal/common"
	"github.com/noah-isme/groupbuy-api/internal/obs"
)

const clientBuffer = 8

// Hub fans the current aggregate out to connected browsers over SSE. Every
// change notification triggers a full snapshot push rather than a delta, so
// a client that misses an event is corrected by the next one.
type Hub struct {
	Logger zerolog.Logger
	// Snapshot builds the payload sent to clients: the current aggregate
	// plus the submission window.
	Snapshot func() any
	// Heartbeat is the interval between keep-alive comments.
	Heartbeat time.Duration

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// Push marshals a fresh snapshot and broadcasts it to every client. Clients
// too slow to drain their buffer are disconnected rather than holding up the
// broadcast.
func (h *Hub) Push() {
	if h.Snapshot == nil {
		return
	}
	payload, err := json.Marshal(h.Snapshot())
	if err != nil {
		h.Logger.Error().Err(err).Msg("live snapshot marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
			delete(h.clients, ch)
			close(ch)
			h.Logger.Warn().Msg("dropping slow live client")
		}
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() chan []byte {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	if h.clients == nil {
		h.clients = make(map[chan []byte]struct{})
	}
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Stream handles GET /live/aggregate. It sends the current snapshot
// immediately, then a snapshot per change notification, plus heartbeat
// comments to keep intermediaries from closing the stream.
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := h.register()
	defer h.unregister(ch)
	obs.LiveClientConnected()
	defer obs.LiveClientDisconnected()

	if h.Snapshot != nil {
		if payload, err := json.Marshal(h.Snapshot()); err == nil {
			writeEvent(w, payload)
			flusher.Flush()
		}
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			writeEvent(w, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": hb\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, payload []byte) {
	fmt.Fprintf(w, "event: aggregate\ndata: %s\n\n", payload)
}
