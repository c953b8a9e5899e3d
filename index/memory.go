package index

import (
	"context"
	"maps"
	"sync"

	"github.com/poiesic/newsdesk/core"
)

// Memory is an in-process Index. Entries are kept in insertion order and
// queries scan all of them. It is not shared across processes.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []storedEntry
	byID    map[string]int // position in entries
	nextSeq uint64
}

type storedEntry struct {
	entry core.VectorEntry
	seq   uint64
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

// Init fixes the dimension.
func (m *Memory) Init(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked(dim)
}

func (m *Memory) initLocked(dim int) error {
	if dim < 1 {
		return ErrInvalidDimension
	}
	if m.dim == 0 {
		m.dim = dim
		return nil
	}
	if m.dim != dim {
		return dimensionMismatch(m.dim, dim)
	}
	return nil
}

// Dimension returns the index dimension.
func (m *Memory) Dimension(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim, nil
}

// Upsert inserts or overwrites entries by ID.
func (m *Memory) Upsert(_ context.Context, entries ...core.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := validateEntries(m.dim, entries)
	if err != nil {
		return err
	}
	if err := m.initLocked(dim); err != nil {
		return err
	}

	for _, e := range entries {
		e = cloneEntry(e)
		if pos, ok := m.byID[e.ID]; ok {
			m.entries[pos].entry = e
			continue
		}
		m.nextSeq++
		m.byID[e.ID] = len(m.entries)
		m.entries = append(m.entries, storedEntry{entry: e, seq: m.nextSeq})
	}
	return nil
}

// QuerySimilar scans every entry.
func (m *Memory) QuerySimilar(ctx context.Context, vector []float32, topK int) ([]core.Match, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim == 0 {
		return []core.Match{}, nil
	}
	if len(vector) != m.dim {
		return nil, dimensionMismatch(m.dim, len(vector))
	}

	candidates := make([]candidate, 0, len(m.entries))
	for _, s := range m.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{
			match: core.Match{
				ID:       s.entry.ID,
				Score:    CosineSimilarity(vector, s.entry.Vector),
				Metadata: maps.Clone(s.entry.Metadata),
			},
			seq: s.seq,
		})
	}
	return rank(candidates, topK), nil
}

// DeleteBySource filters out the source's entries and rebuilds the ID
// positions. Cost is linear in the index size.
func (m *Memory) DeleteBySource(_ context.Context, sourceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	removed := 0
	for _, s := range m.entries {
		if s.entry.SourceID() == sourceID {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	if removed == 0 {
		return 0, nil
	}
	clear(m.entries[len(kept):])
	m.entries = kept

	m.byID = make(map[string]int, len(m.entries))
	for i, s := range m.entries {
		m.byID[s.entry.ID] = i
	}
	return removed, nil
}

// Len returns the number of entries.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Reset removes every entry and clears the dimension.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = 0
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}
