package notify

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/emberhearth/scheduler/internal/model"
)

// Message is a real-time change notification broadcast to all connected
// GUI panels so they can refresh their schedule views.
type Message struct {
	Type     string          `json:"type"`
	Action   string          `json:"action"`
	Schedule *model.Schedule `json:"schedule,omitempty"`
}

// Hub maintains the set of active WebSocket clients and broadcasts
// schedule change events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// ScheduleChanged implements the engine's notifier: it broadcasts one
// change event per mutation (created, updated, deleted, evicted,
// confirmed, declined).
func (h *Hub) ScheduleChanged(action string, sched model.Schedule) {
	h.Broadcast(Message{
		Type:     "schedule_" + action,
		Action:   action,
		Schedule: &sched,
	})
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
