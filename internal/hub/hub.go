// Package hub fans registry and discovery events out to Server-Sent Events
// clients.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"camerabridge/internal/logging"
	"camerabridge/internal/service"
)

// Client represents a connected SSE client
type Client struct {
	id     string
	events chan []byte
}

// Hub manages SSE client connections
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	register  chan *Client
	broadcast chan service.Event

	keepAlive time.Duration
	logger    *zap.Logger
}

// Option configures a Hub
type Option func(*Hub)

// WithKeepAlive sets the comment interval that keeps idle connections open
func WithKeepAlive(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logging.OrNop(l)
	}
}

// New creates a new Hub
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:   make(map[*Client]struct{}),
		register:  make(chan *Client),
		broadcast: make(chan service.Event, 256),
		keepAlive: 30 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop and returns when ctx is done. Remaining
// client channels are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("SSE client connected", zap.String("client", client.id), zap.Int("total", n))

		case event := <-h.broadcast:
			msg, err := encode(event)
			if err != nil {
				h.logger.Warn("failed to marshal event", zap.String("type", string(event.Type)), zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.events <- msg:
				default:
					h.logger.Debug("SSE client is slow, skipping message", zap.String("client", client.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove drops a client; the request context is usually already done
// here, so this does not go through the event loop
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.events)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("SSE client disconnected", zap.String("client", client.id), zap.Int("total", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.events)
		delete(h.clients, client)
	}
}

// Attach subscribes the hub to bus until ctx is done
func (h *Hub) Attach(ctx context.Context, bus *service.EventBus) {
	ch := make(chan service.Event, 100)
	bus.Subscribe(ch)
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-ch:
				h.Broadcast(event)
			}
		}
	}()
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event service.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("type", string(event.Type)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event service.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data)), nil
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// streams outlive the server's WriteTimeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear SSE write deadline", zap.Error(err))
	}

	client := &Client{
		id:     uuid.NewString(),
		events: make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		return
	}
	defer h.remove(client)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
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
