package api

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// FrameHub fans decoded frames out to API subscribers (the SSE tail). Sends
// never block: a subscriber that falls behind misses frames rather than
// stalling the publisher.
type FrameHub struct {
	mu          sync.Mutex
	subscribers map[string]chan mmwave.Frame
	latest      *mmwave.Frame
}

// NewFrameHub creates an empty hub.
func NewFrameHub() *FrameHub {
	return &FrameHub{
		subscribers: make(map[string]chan mmwave.Frame),
	}
}

// Publish delivers frame to every subscriber and retains it as the latest.
func (h *FrameHub) Publish(frame mmwave.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &frame
	for _, ch := range h.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Latest returns the most recently published frame, if any.
func (h *FrameHub) Latest() (mmwave.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return mmwave.Frame{}, false
	}
	return *h.latest, true
}

// Subscribe registers a new frame channel and returns its ID for
// Unsubscribe.
func (h *FrameHub) Subscribe() (string, <-chan mmwave.Frame) {
	id := uuid.NewString()
	ch := make(chan mmwave.Frame, 16)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *FrameHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}
