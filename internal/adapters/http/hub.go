package http

import (
	"context"
	"sync"

	"github.com/halalchain/halalmap/internal/core/ports"
)

// ChangeHub fans restaurant change events out to the map sessions hosted by
// this process. A slow session misses events rather than blocking the hub;
// one pending notification is enough to trigger its refetch.
type ChangeHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ports.RestaurantChange
}

// NewChangeHub creates an empty hub.
func NewChangeHub() *ChangeHub {
	return &ChangeHub{subs: make(map[int]chan ports.RestaurantChange)}
}

// Subscribe registers a listener. The returned func unregisters it and
// closes the channel.
func (h *ChangeHub) Subscribe() (<-chan ports.RestaurantChange, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan ports.RestaurantChange, 1)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Handle delivers change to every listener. Its signature matches
// ports.EventSubscriber handlers.
func (h *ChangeHub) Handle(_ context.Context, change ports.RestaurantChange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Len returns the number of listeners.
func (h *ChangeHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
