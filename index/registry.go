package index

import (
	"context"
	"slices"
	"sync"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// Factory creates the index for a session.
type Factory func(session string) Index

// MemoryFactory creates in-memory indexes.
func MemoryFactory() Factory {
	return func(string) Index { return NewMemory() }
}

// PersistentFactory creates indexes stored in repo, one name per session.
func PersistentFactory(repo storage.VectorRepository) Factory {
	return func(session string) Index { return NewPersistent(repo, session) }
}

// Registry hands out one index per session, creating it on first use.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	indexes map[string]Index
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		indexes: make(map[string]Index),
	}
}

// ForSession returns the session's index.
func (r *Registry) ForSession(session string) (Index, error) {
	if err := core.ValidateSession(session); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[session]
	if !ok {
		idx = r.factory(session)
		r.indexes[session] = idx
	}
	return idx, nil
}

// Sessions returns the sessions with an open index, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]string, 0, len(r.indexes))
	for s := range r.indexes {
		sessions = append(sessions, s)
	}
	slices.Sort(sessions)
	return sessions
}

// DeleteBySource removes the source's vectors from the session's index.
func (r *Registry) DeleteBySource(ctx context.Context, session, sourceID string) (int, error) {
	idx, err := r.ForSession(session)
	if err != nil {
		return 0, err
	}
	return idx.DeleteBySource(ctx, sourceID)
}
