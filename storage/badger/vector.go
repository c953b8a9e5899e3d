package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Entries of one index share a key prefix; a secondary source index makes
// delete-by-source a prefix scan instead of a full rebuild.
type VectorRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) (*VectorRepository, error) {
	seq, err := backend.GetSequence(vectorSeq)
	if err != nil {
		return nil, err
	}
	return &VectorRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the insertion sequence.
func (r *VectorRepository) Close() error {
	return r.seq.Release()
}

// Dimension returns the recorded dimension of an index, or 0.
func (r *VectorRepository) Dimension(ctx context.Context, index string) (int, error) {
	var dim int
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		dim, err = r.readDimension(tx, index)
		return err
	})
	return dim, err
}

// InitDimension records the dimension of an index.
func (r *VectorRepository) InitDimension(ctx context.Context, index string, dim int) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		return r.ensureDimension(tx, index, dim)
	})
}

func (r *VectorRepository) ensureDimension(tx *badger.Txn, index string, dim int) error {
	current, err := r.readDimension(tx, index)
	if err != nil {
		return err
	}
	if current == 0 {
		return tx.Set(makeVectorDimKey(index), storage.MarshalDimension(dim))
	}
	if current != dim {
		return fmt.Errorf("%w: index %q has dimension %d, got %d", core.ErrDimensionMismatch, index, current, dim)
	}
	return nil
}

func (r *VectorRepository) readDimension(tx *badger.Txn, index string) (int, error) {
	raw, err := getValue(tx, makeVectorDimKey(index))
	if err != nil || raw == nil {
		return 0, err
	}
	return storage.UnmarshalDimension(raw)
}

// UpsertVectors inserts or overwrites entries in one transaction. Every
// entry is checked against the index dimension before anything is written.
// Overwritten entries keep their original insertion sequence.
func (r *VectorRepository) UpsertVectors(ctx context.Context, index string, entries ...core.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		dim, err := r.readDimension(tx, index)
		if err != nil {
			return err
		}
		if dim == 0 {
			dim = len(entries[0].Vector)
		}
		for _, e := range entries {
			if len(e.Vector) != dim {
				return fmt.Errorf("%w: entry %q has dimension %d, index has %d", core.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
			}
		}
		if err := r.ensureDimension(tx, index, dim); err != nil {
			return err
		}

		for _, e := range entries {
			key := makeVectorKey(index, e.ID)
			old, err := r.readVector(tx, key)
			if err != nil {
				return err
			}

			stored := &storage.StoredVector{Entry: e}
			if old != nil {
				stored.Seq = old.Seq
				if old.Entry.SourceID() != e.SourceID() {
					if err := tx.Delete(makeVectorSourceKey(index, old.Entry.SourceID(), e.ID)); err != nil {
						return err
					}
				}
			} else {
				if stored.Seq, err = nextID(r.seq); err != nil {
					return err
				}
			}

			if err := tx.Set(key, storage.MarshalStoredVector(stored)); err != nil {
				return err
			}
			if err := tx.Set(makeVectorSourceKey(index, e.SourceID(), e.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanVectors calls fn for each entry of the index.
func (r *VectorRepository) ScanVectors(ctx context.Context, index string, fn func(*storage.StoredVector) error) error {
	return r.backend.View(func(tx *badger.Txn) error {
		return forEachPrefix(tx, makeScopePrefix(vectorPrefix, index), false, func(item *badger.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				v, err := storage.UnmarshalStoredVector(val)
				if err != nil {
					return err
				}
				return fn(v)
			})
		})
	})
}

// DeleteVectorsBySource removes every entry owned by sourceID.
func (r *VectorRepository) DeleteVectorsBySource(ctx context.Context, index, sourceID string) (int, error) {
	deleted := 0
	err := r.backend.Update(func(tx *badger.Txn) error {
		deleted = 0
		prefix := makePartialVectorSourceKey(index, sourceID)

		var ids []string
		if err := forEachPrefix(tx, prefix, true, func(item *badger.Item) error {
			ids = append(ids, string(item.KeyCopy(nil)[len(prefix):]))
			return nil
		}); err != nil {
			return err
		}

		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(index, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeVectorSourceKey(index, sourceID, id)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// DropVectors removes every entry of the index and forgets its dimension.
func (r *VectorRepository) DropVectors(ctx context.Context, index string) error {
	if err := r.backend.DropPrefix(
		makeScopePrefix(vectorPrefix, index),
		makeScopePrefix(vectorSourcePrefix, index),
	); err != nil {
		return err
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeVectorDimKey(index))
	})
}

// CountVectors returns the number of entries in the index.
func (r *VectorRepository) CountVectors(ctx context.Context, index string) (int, error) {
	count := 0
	err := r.backend.View(func(tx *badger.Txn) error {
		return forEachPrefix(tx, makeScopePrefix(vectorPrefix, index), true, func(*badger.Item) error {
			count++
			return nil
		})
	})
	return count, err
}

func (r *VectorRepository) readVector(tx *badger.Txn, key []byte) (*storage.StoredVector, error) {
	raw, err := getValue(tx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return storage.UnmarshalStoredVector(raw)
}
