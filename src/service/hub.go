package service

import (
	"log/slog"
	"sync"

	"compliance-stream/src/models"

	"github.com/google/uuid"
)

// subscriberBuffer is how many undelivered updates a subscriber may queue
// before further broadcasts to it are dropped.
const subscriberBuffer = 16

// Hub fans task updates out to all connected stream subscribers. Broadcast
// never blocks: a subscriber that cannot keep up loses updates rather than
// stalling the rest.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.TaskUpdate
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]chan models.TaskUpdate),
	}
}

// Subscribe registers a new subscriber and returns its id and delivery
// channel. The channel is closed by Unsubscribe.
func (h *Hub) Subscribe() (string, <-chan models.TaskUpdate) {
	id := uuid.New().String()
	ch := make(chan models.TaskUpdate, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	count := len(h.subscribers)
	h.mu.Unlock()

	slog.Info("Stream subscriber added", "subscriber_id", id, "subscribers", count)
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing an
// unknown id is a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		close(ch)
		slog.Info("Stream subscriber removed", "subscriber_id", id, "subscribers", count)
	}
}

// Broadcast delivers one update to every subscriber that has buffer room.
func (h *Hub) Broadcast(update models.TaskUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- update:
		default:
			slog.Warn("Dropping update for slow subscriber",
				"subscriber_id", id,
				"task_id", update.TaskID)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
