// Package notify fans canvas events out to live subscribers, so clients
// can react to other users' strokes without polling getCanvasData.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"rescanvas/pkg/stroke"
)

type EventType string

const (
	EventStroke EventType = "stroke"
	EventUndo   EventType = "undo"
	EventRedo   EventType = "redo"
	EventClear  EventType = "clear"
)

type Event struct {
	Type   EventType      `json:"type"`
	Stroke *stroke.Stroke `json:"stroke,omitempty"`
	TS     int64          `json:"ts,omitempty"`
}

const subscriberBuffer = 16

// Hub keeps the subscriber set. Publish never blocks: a subscriber whose
// buffer is full misses the event and is expected to resync via
// getCanvasData.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
