package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// MemoryRepository implements storage.MemoryRepository for BadgerDB.
// Keys are ordered by creation time within a session so the newest entries
// are read with a reverse iterator.
type MemoryRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.MemoryRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository(backend *Backend) (*MemoryRepository, error) {
	seq, err := backend.GetSequence(memorySeq)
	if err != nil {
		return nil, err
	}
	return &MemoryRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the entry sequence.
func (r *MemoryRepository) Close() error {
	return r.seq.Release()
}

// AppendMemory stores an entry.
func (r *MemoryRepository) AppendMemory(ctx context.Context, entry *core.MemoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	seq, err := nextID(r.seq)
	if err != nil {
		return err
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeMemoryKey(entry.Session, entry.CreatedAt, seq), storage.MarshalMemoryEntry(entry))
	})
}

// RecentMemory returns up to limit entries, newest first.
func (r *MemoryRepository) RecentMemory(ctx context.Context, session string, limit int) ([]*core.MemoryEntry, error) {
	var results []*core.MemoryEntry
	err := r.backend.View(func(tx *badger.Txn) error {
		return r.reverse(tx, session, func(item *badger.Item) (bool, error) {
			if limit > 0 && len(results) >= limit {
				return false, nil
			}
			err := item.Value(func(val []byte) error {
				entry, err := storage.UnmarshalMemoryEntry(val)
				if err != nil {
					return err
				}
				results = append(results, entry)
				return nil
			})
			return err == nil, err
		})
	})
	return results, err
}

// PruneMemory deletes all but the newest keep entries of the session.
func (r *MemoryRepository) PruneMemory(ctx context.Context, session string, keep int) (int, error) {
	deleted := 0
	err := r.backend.Update(func(tx *badger.Txn) error {
		deleted = 0
		var stale [][]byte
		seen := 0
		if err := r.reverse(tx, session, func(item *badger.Item) (bool, error) {
			seen++
			if seen > keep {
				stale = append(stale, item.KeyCopy(nil))
			}
			return true, nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// reverse iterates a session's entries newest first until fn returns false.
func (r *MemoryRepository) reverse(tx *badger.Txn, session string, fn func(*badger.Item) (bool, error)) error {
	prefix := makeScopePrefix(memoryPrefix, session)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	// Seek past the last possible key of the session
	seekKey := append(append([]byte{}, prefix...), 0xFF)
	for iter.Seek(seekKey); iter.Valid(); iter.Next() {
		more, err := fn(iter.Item())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}
