// Package notify provides the notification sink of the licensing core: a
// websocket hub broadcasting allocation and validation events to
// connected admin dashboards. The core calls Publish and depends on no
// return value; a hub with zero clients silently drops events.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jhsobrinho/educareapp-sub000/internal/allocation"
)

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections  int64
	activeConnections int64
	messagesSent      int64

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Call Start before publishing.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "notify.hub")),
		quit:       make(chan struct{}),
	}
}

// Start starts the hub's broadcast loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop terminates the broadcast loop and closes all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
}

// Publish implements allocation.EventSink: the event is serialized and
// broadcast to every connected client. Never blocks the caller.
func (h *Hub) Publish(ctx context.Context, event allocation.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.WarnContext(ctx, "broadcast buffer full, event dropped",
			slog.String("type", event.Type),
		)
	}
}

// add hands the client to the broadcast loop. It reports false when the
// hub has stopped, in which case the loop no longer drains register and
// the send would block forever.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

// remove detaches the client. After Stop the loop has already closed
// every registered client, so the unregister send is skipped.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shut down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			h.activeConnections = int64(len(h.clients))
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered",
				slog.String("client_id", client.id),
				slog.Int("active_clients", count),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.activeConnections = int64(len(h.clients))
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client unregistered",
				slog.String("client_id", client.id),
				slog.Int("active_clients", count),
			)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.messagesSent++
				default:
					// Slow consumer: drop rather than stall the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}
