// Package events fans session events out to observers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/bhandras/noderunner/internal/runner"
)

const defaultBufSize = 256

// Hub is a pub/sub bus for runner events with non-blocking fan-out.
type Hub struct {
	mu   sync.RWMutex
	subs map[runner.EventKind][]chan runner.Event

	// Global subscribers receive all events
	global []chan runner.Event

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[runner.EventKind][]chan runner.Event),
	}
}

// Publish sends an event to all subscribers of its kind. If a subscriber's
// channel is full, the event is dropped for that subscriber.
func (h *Hub) Publish(ev runner.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)

	for _, ch := range h.subs[ev.Kind] {
		h.deliver(ch, ev)
	}
	for _, ch := range h.global {
		h.deliver(ch, ev)
	}
}

func (h *Hub) deliver(ch chan runner.Event, ev runner.Event) {
	select {
	case ch <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe returns a channel that receives events of the given kinds.
// With no kinds, the channel receives every event.
// The caller is responsible for draining the channel to avoid drops.
func (h *Hub) Subscribe(bufSize int, kinds ...runner.EventKind) <-chan runner.Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}

	ch := make(chan runner.Event, bufSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(kinds) == 0 {
		h.global = append(h.global, ch)
	} else {
		for _, k := range kinds {
			h.subs[k] = append(h.subs[k], ch)
		}
	}

	return ch
}

// Unsubscribe removes a channel from all subscriptions.
// The channel is NOT closed by this method.
func (h *Hub) Unsubscribe(ch <-chan runner.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.global = removeFromSlice(h.global, ch)
	for k, subs := range h.subs {
		h.subs[k] = removeFromSlice(subs, ch)
	}
}

// Stats returns publish/drop counts for monitoring.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

func removeFromSlice(slice []chan runner.Event, target <-chan runner.Event) []chan runner.Event {
	result := make([]chan runner.Event, 0, len(slice))
	for _, ch := range slice {
		if ch != target {
			result = append(result, ch)
		}
	}
	return result
}
