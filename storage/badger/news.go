package badger

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// NewsRepository implements storage.NewsRepository for BadgerDB.
//
// Besides the primary record it maintains three indices:
//   - a unique dedup index so UpsertNews can find a record by identity
//   - a (session, date) index for range scans and expiry sweeps
//   - a session marker so ListSessions need not scan records
type NewsRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.NewsRepository = (*NewsRepository)(nil)

// NewNewsRepository creates a new NewsRepository.
func NewNewsRepository(backend *Backend) (*NewsRepository, error) {
	idSeq, err := backend.GetSequence(newsIDSeq)
	if err != nil {
		return nil, err
	}

	return &NewsRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *NewsRepository) Close() error {
	return r.idSeq.Release()
}

// UpsertNews inserts a record or merges it into the existing record with the
// same dedup key. Lookup, merge and write happen in one transaction; the
// dedup index key is read inside it, so two concurrent inserts of the same
// article conflict on commit and the loser gets storage.ErrConflict.
func (r *NewsRepository) UpsertNews(ctx context.Context, record *core.NewsRecord, merge storage.MergeFunc) (*core.NewsRecord, bool, error) {
	var (
		result  *core.NewsRecord
		created bool
	)
	err := r.backend.Update(func(tx *badger.Txn) error {
		result, created = nil, false
		dedupKey := makeDedupKey(record.DedupKey())

		raw, err := getValue(tx, dedupKey)
		if err != nil {
			return err
		}

		if raw != nil {
			existingID, err := storage.UnmarshalID(raw)
			if err != nil {
				return err
			}
			existing, err := r.readNewsRecord(tx, makeNewsKey(existingID))
			if err != nil {
				return err
			}
			if existing == nil {
				return storage.ErrNotFound
			}
			oldDate := existing.Date
			merged := merge(existing, record)
			merged.Id = existingID
			merged.UpdatedAt = time.Now().UTC()
			if err := r.writeNewsRecord(tx, merged, oldDate); err != nil {
				return err
			}
			result = merged
			return nil
		}

		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		stored := *record
		stored.Keywords = slices.Clone(record.Keywords)
		stored.Id = core.ID(id)
		stored.InsertedAt = time.Now().UTC()
		stored.UpdatedAt = stored.InsertedAt

		if err := tx.Set(dedupKey, storage.MarshalID(stored.Id)); err != nil {
			return err
		}
		if err := tx.Set(makeNewsSessionKey(stored.Session), nil); err != nil {
			return err
		}
		if err := r.writeNewsRecord(tx, &stored, time.Time{}); err != nil {
			return err
		}
		result, created = &stored, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// writeNewsRecord stores the primary record and moves its date index entry
// when the publish date changed. A zero oldDate means a fresh insert.
func (r *NewsRepository) writeNewsRecord(tx *badger.Txn, record *core.NewsRecord, oldDate time.Time) error {
	if err := tx.Set(makeNewsKey(record.Id), storage.MarshalNewsRecord(record)); err != nil {
		return err
	}
	if !oldDate.IsZero() && oldDate.Equal(record.Date) {
		return nil
	}
	if !oldDate.IsZero() {
		if err := tx.Delete(makeNewsDateKey(record.Session, oldDate, record.Id)); err != nil {
			return err
		}
	}
	return tx.Set(makeNewsDateKey(record.Session, record.Date, record.Id), storage.MarshalID(record.Id))
}

// GetNews retrieves a single record by ID.
func (r *NewsRepository) GetNews(ctx context.Context, id core.ID) (*core.NewsRecord, error) {
	var result *core.NewsRecord
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = r.readNewsRecord(tx, makeNewsKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// UpdateNews updates existing records.
// The dedup identity of a record cannot change through an update.
func (r *NewsRepository) UpdateNews(ctx context.Context, records ...*core.NewsRecord) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, record := range records {
			old, err := r.readNewsRecord(tx, makeNewsKey(record.Id))
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}
			record.UpdatedAt = time.Now().UTC()
			if err := r.writeNewsRecord(tx, record, old.Date); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetEmbedded flips the embedded flag without touching other fields, so a
// keyword merge committed meanwhile is not overwritten.
func (r *NewsRepository) SetEmbedded(ctx context.Context, embedded bool, ids ...core.ID) ([]core.ID, error) {
	var missing []core.ID
	err := r.backend.Update(func(tx *badger.Txn) error {
		missing = missing[:0]
		for _, id := range ids {
			key := makeNewsKey(id)
			record, err := r.readNewsRecord(tx, key)
			if err != nil {
				return err
			}
			if record == nil {
				missing = append(missing, id)
				continue
			}
			if record.Embedded == embedded {
				continue
			}
			record.Embedded = embedded
			if err := tx.Set(key, storage.MarshalNewsRecord(record)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// DeleteNews removes records by their IDs.
func (r *NewsRepository) DeleteNews(ctx context.Context, ids ...core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeNewsKey(id)

			// Read record to get metadata for index cleanup
			record, err := r.readNewsRecord(tx, key)
			if err != nil {
				return err
			}
			if record == nil {
				return storage.ErrNotFound
			}

			if err := tx.Delete(makeNewsDateKey(record.Session, record.Date, record.Id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDedupKey(record.DedupKey())); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindNews returns records matching filter, ordered by publish date.
func (r *NewsRepository) FindNews(ctx context.Context, filter storage.NewsFilter) ([]*core.NewsRecord, error) {
	var results []*core.NewsRecord
	err := r.scan(ctx, filter, func(record *core.NewsRecord) bool {
		results = append(results, record)
		return filter.Limit <= 0 || len(results) < filter.Limit
	})
	return results, err
}

// CountNews counts records matching filter.
func (r *NewsRepository) CountNews(ctx context.Context, filter storage.NewsFilter) (int, error) {
	count := 0
	err := r.scan(ctx, filter, func(*core.NewsRecord) bool {
		count++
		return filter.Limit <= 0 || count < filter.Limit
	})
	return count, err
}

// scan walks the (session, date) index within the filter's date range and
// calls fn for each matching record until fn returns false.
func (r *NewsRepository) scan(ctx context.Context, filter storage.NewsFilter, fn func(*core.NewsRecord) bool) error {
	if filter.Session == "" {
		return storage.ErrInvalidQuery
	}
	if !filter.Until.IsZero() && !filter.Since.IsZero() && !filter.Since.Before(filter.Until) {
		return nil
	}

	return r.backend.View(func(tx *badger.Txn) error {
		prefix := makeScopePrefix(newsDatePrefix, filter.Session)
		startKey := prefix
		if !filter.Since.IsZero() {
			startKey = makePartialNewsDateKey(filter.Session, filter.Since)
		}
		var endKey []byte
		if !filter.Until.IsZero() {
			endKey = makePartialNewsDateKey(filter.Session, filter.Until)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iter.Item().Key()
			if endKey != nil && bytes.Compare(key, endKey) >= 0 {
				break
			}

			// Read the ID from the index
			var recordID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				recordID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			// Look up the full record
			record, err := r.readNewsRecord(tx, makeNewsKey(recordID))
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			if filter.Embedded != nil && record.Embedded != *filter.Embedded {
				continue
			}
			if !fn(record) {
				break
			}
		}
		return nil
	})
}

// ListSessions returns all sessions with stored records, sorted.
func (r *NewsRepository) ListSessions(ctx context.Context) ([]string, error) {
	var sessions []string
	err := r.backend.View(func(tx *badger.Txn) error {
		return forEachPrefix(tx, []byte(newsSessionPrefix), true, func(item *badger.Item) error {
			sessions = append(sessions, string(item.Key()[len(newsSessionPrefix):]))
			return nil
		})
	})
	return sessions, err
}

// readNewsRecord is a helper to read and unmarshal a record.
// Returns nil if the record doesn't exist.
func (r *NewsRepository) readNewsRecord(tx *badger.Txn, key []byte) (*core.NewsRecord, error) {
	raw, err := getValue(tx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	return storage.UnmarshalNewsRecord(raw)
}
