package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazyhaar/quai/idgen"
)

// keepAliveInterval is how often idle SSE streams get a comment frame so
// proxies don't cut the connection.
const keepAliveInterval = 30 * time.Second

// sseClient is one connected event stream.
type sseClient struct {
	id     string
	frames chan []byte
}

// sseEvent is a named event queued for broadcast.
type sseEvent struct {
	name    string
	payload any
}

// Hub fans named server-sent events out to every connected client. Slow
// clients skip frames rather than block the broadcast.
type Hub struct {
	logger *slog.Logger
	newID  func() string

	mu         sync.RWMutex
	clients    map[*sseClient]struct{}
	register   chan *sseClient
	unregister chan *sseClient
	broadcast  chan sseEvent
	done       chan struct{}
}

// NewHub creates a Hub. Call Run to start the event loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		newID:      idgen.New,
		clients:    make(map[*sseClient]struct{}),
		register:   make(chan *sseClient),
		unregister: make(chan *sseClient),
		broadcast:  make(chan sseEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run drives registration and broadcast until ctx is cancelled, then
// closes every client stream.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.frames)
			}
			h.clients = make(map[*sseClient]struct{})
			h.mu.Unlock()
			h.logger.Info("sse: hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("sse: client connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.frames)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("sse: client disconnected", "client", client.id, "total", total)

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev.payload)
			if err != nil {
				h.logger.Warn("sse: marshal event failed", "event", ev.name, "error", err)
				continue
			}
			frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.name, data))

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.frames <- frame:
				default:
					// Slow client: skip this frame rather than stall everyone.
					h.logger.Debug("sse: client slow, frame skipped", "client", client.id, "event", ev.name)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues a named event for all connected clients. Never blocks;
// when the queue is full the event is dropped.
func (h *Hub) Broadcast(event string, payload any) {
	select {
	case h.broadcast <- sseEvent{name: event, payload: payload}:
	default:
		h.logger.Warn("sse: broadcast queue full, event dropped", "event", event)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events to one client until it disconnects or the hub
// shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &sseClient{
		id:     h.newID(),
		frames: make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-client.frames:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
