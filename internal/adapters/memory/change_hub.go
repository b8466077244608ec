package memory

import (
	"context"
	"sync"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

const listenerBuffer = 16

// ChangeHub implements ports.ChangeFeed for providers sharing one process.
// Slow listeners drop events rather than block publishers.
type ChangeHub struct {
	mu        sync.Mutex
	listeners map[int]chan domainauth.ChangeEvent
	nextID    int
}

// NewChangeHub returns a hub with no listeners.
func NewChangeHub() *ChangeHub {
	return &ChangeHub{listeners: make(map[int]chan domainauth.ChangeEvent)}
}

// Publish fans ev out to every listener.
func (h *ChangeHub) Publish(_ context.Context, ev domainauth.ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Listen delivers events to fn until ctx is done.
func (h *ChangeHub) Listen(ctx context.Context, fn func(domainauth.ChangeEvent)) error {
	ch := make(chan domainauth.ChangeEvent, listenerBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			fn(ev)
		}
	}
}

// ListenerCount returns the number of active listeners.
func (h *ChangeHub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
