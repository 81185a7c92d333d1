package task

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 32

// Hub fans executor events out to stream subscribers and tracks which
// tasks have a live executor frame in this process. The run set is the
// advisory single-writer lock: one executor per task at a time.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[chan Event]struct{}
	running map[uuid.UUID]struct{}
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[uuid.UUID]map[chan Event]struct{}),
		running: make(map[uuid.UUID]struct{}),
	}
}

// Subscribe registers a listener for a task's events. The returned
// function unsubscribes.
func (h *Hub) Subscribe(id uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan Event]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if set, ok := h.subs[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers an event to all subscribers of a task. Slow
// subscribers lose events rather than stall the executor; the persisted
// task row remains the source of truth.
func (h *Hub) Publish(id uuid.UUID, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// TryAcquire claims the executor slot for a task. It returns false if
// an executor is already running the task in this process.
func (h *Hub) TryAcquire(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.running[id]; ok {
		return false
	}
	h.running[id] = struct{}{}
	return true
}

// Release frees the executor slot for a task.
func (h *Hub) Release(id uuid.UUID) {
	h.mu.Lock()
	delete(h.running, id)
	h.mu.Unlock()
}

// IsRunning reports whether a task has a live executor in this process.
func (h *Hub) IsRunning(id uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.running[id]
	return ok
}

// hubSink adapts the hub to the executor's Sink interface.
type hubSink struct {
	hub *Hub
	id  uuid.UUID
}

// NewHubSink creates a sink that publishes to the hub for one task.
func NewHubSink(hub *Hub, id uuid.UUID) Sink {
	return &hubSink{hub: hub, id: id}
}

// Publish implements Sink.
func (s *hubSink) Publish(ev Event) {
	s.hub.Publish(s.id, ev)
}
