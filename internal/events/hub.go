// AngelaMos | 2026
// hub.go

package events

import (
	"context"
	"sync"

	"github.com/carterperez-dev/assignly/internal/subscription"
)

const minBufferSize = 1

type listener struct {
	ch chan subscription.Change
}

// Hub fans subscription changes out to the listeners of each user. A
// listener whose buffer is full is dropped instead of blocking dispatch.
type Hub struct {
	mu         sync.RWMutex
	listeners  map[string]map[*listener]struct{}
	bufferSize int
	closed     bool
}

func NewHub(bufferSize int) *Hub {
	return &Hub{
		listeners:  make(map[string]map[*listener]struct{}),
		bufferSize: max(bufferSize, minBufferSize),
	}
}

// Subscribe returns a channel of userID's changes. The channel is closed
// when ctx ends, when the listener falls behind, or when the hub closes.
func (h *Hub) Subscribe(
	ctx context.Context,
	userID string,
) <-chan subscription.Change {
	l := &listener{ch: make(chan subscription.Change, h.bufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(l.ch)
		return l.ch
	}
	if h.listeners[userID] == nil {
		h.listeners[userID] = make(map[*listener]struct{})
	}
	h.listeners[userID][l] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(userID, l)
	}()

	return l.ch
}

// Publish delivers change to local listeners only.
func (h *Hub) Publish(_ context.Context, change subscription.Change) error {
	h.Dispatch(change)
	return nil
}

func (h *Hub) Dispatch(change subscription.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for l := range h.listeners[change.UserID] {
		select {
		case l.ch <- change:
		default:
			go h.remove(change.UserID, l)
		}
	}
}

// Listeners counts the open listeners of userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[userID])
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, set := range h.listeners {
		for l := range set {
			close(l.ch)
		}
	}
	clear(h.listeners)
}

func (h *Hub) remove(userID string, l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.listeners[userID]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}

	delete(set, l)
	close(l.ch)
	if len(set) == 0 {
		delete(h.listeners, userID)
	}
}
