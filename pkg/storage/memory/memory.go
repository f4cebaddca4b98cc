// Package memory provides an in-memory transport.CheckpointStore for tests
// and single-process deployments. Threads are lost when the process
// restarts. Optional LRU eviction bounds memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

type entry struct {
	state   *api.ConversationState
	owner   string
	lruElem *list.Element
}

// Store is an in-memory CheckpointStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ transport.CheckpointStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used thread is evicted when
// the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Load returns a copy of the stored state.
func (s *Store) Load(ctx context.Context, threadID string) (*api.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[threadID]
	if !ok || !storage.Visible(storage.GetOwner(ctx), e.owner) {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.state.Clone(), nil
}

// Save stores a copy of state after the optimistic version check.
func (s *Store) Save(ctx context.Context, state *api.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := storage.GetOwner(ctx)
	e, ok := s.entries[state.ThreadID]
	if ok {
		if !storage.Visible(owner, e.owner) {
			return storage.ErrNotFound
		}
		if err := storage.CheckVersion(e.state.Version, state.Version); err != nil {
			return err
		}
		e.state = state.Clone()
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if err := storage.CheckVersion(0, state.Version); err != nil {
		return err
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	s.entries[state.ThreadID] = &entry{
		state:   state.Clone(),
		owner:   owner,
		lruElem: s.lruList.PushFront(state.ThreadID),
	}
	return nil
}

// Delete removes a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[threadID]
	if !ok || !storage.Visible(storage.GetOwner(ctx), e.owner) {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, threadID)
	return nil
}

// List returns summaries ordered by last update.
func (s *Store) List(ctx context.Context, opts transport.ListOptions) (*api.ThreadList, error) {
	opts = opts.Normalize()
	owner := storage.GetOwner(ctx)

	s.mu.RLock()
	var states []*api.ConversationState
	for _, e := range s.entries {
		if storage.Visible(owner, e.owner) {
			states = append(states, e.state)
		}
	}
	s.mu.RUnlock()

	asc := opts.Order == "asc"
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i], states[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			if asc {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if asc {
			return a.ThreadID < b.ThreadID
		}
		return a.ThreadID > b.ThreadID
	})
	if len(states) > opts.Limit {
		states = states[:opts.Limit]
	}

	result := &api.ThreadList{Object: "list", Data: make([]api.ThreadSummary, 0, len(states))}
	for _, st := range states {
		result.Data = append(result.Data, st.Summary())
	}
	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
