package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks streamed turns that are still running, keyed by
// thread id, so that a DELETE on the stream can cancel the turn. A cancelled
// turn behaves like a client disconnect: no terminal event, nothing saved.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds a running turn. A previous entry for the same thread is
// replaced without being cancelled.
func (r *InFlightRegistry) Register(threadID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[threadID] = cancel
}

// Cancel cancels the running turn for threadID. Returns false if no turn
// is registered for it.
func (r *InFlightRegistry) Cancel(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[threadID]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, threadID)
	return true
}

// Remove drops threadID from the registry without cancelling it.
func (r *InFlightRegistry) Remove(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, threadID)
}

// Len returns the number of running turns.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
