package storage

import (
	"context"
	"time"

	"github.com/poiesic/newsdesk/core"
)

// MergeFunc folds an incoming article into the record already stored under
// the same dedup key. It mutates and returns existing.
type MergeFunc func(existing, incoming *core.NewsRecord) *core.NewsRecord

// NewsFilter selects news records for FindNews and CountNews.
// Zero values mean "no constraint" except Session, which is required.
type NewsFilter struct {
	Session string
	// Since and Until bound the publish date, Since <= Date < Until.
	Since time.Time
	Until time.Time
	// Embedded restricts results to records with the given embedded flag.
	Embedded *bool
	// Limit caps the number of results; 0 means unlimited.
	Limit int
}

// NewsRepository provides operations for managing news records.
// Implementations must be thread-safe and support concurrent access.
type NewsRepository interface {
	// UpsertNews atomically inserts record or, if a record with the same
	// dedup key exists in the session, merges record into it with merge.
	// Returns the stored record and whether it was newly created.
	// Returns ErrConflict if a concurrent writer touched the same key; the
	// caller should retry.
	UpsertNews(ctx context.Context, record *core.NewsRecord, merge MergeFunc) (*core.NewsRecord, bool, error)

	// GetNews retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetNews(ctx context.Context, id core.ID) (*core.NewsRecord, error)

	// UpdateNews updates existing records.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if any record doesn't exist.
	UpdateNews(ctx context.Context, records ...*core.NewsRecord) error

	// SetEmbedded sets the embedded flag of the given records in one
	// transaction, leaving every other field as stored. Missing records are
	// skipped and their IDs returned.
	SetEmbedded(ctx context.Context, embedded bool, ids ...core.ID) ([]core.ID, error)

	// DeleteNews removes records by their IDs along with their indices.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteNews(ctx context.Context, ids ...core.ID) error

	// FindNews returns the records matching filter ordered by publish date
	// ascending.
	FindNews(ctx context.Context, filter NewsFilter) ([]*core.NewsRecord, error)

	// CountNews counts the records matching filter.
	CountNews(ctx context.Context, filter NewsFilter) (int, error)

	// ListSessions returns every session that has stored at least one record.
	ListSessions(ctx context.Context) ([]string, error)

	// Close releases resources held by the repository.
	Close() error
}

// StoredVector is a vector entry together with its insertion sequence.
type StoredVector struct {
	Entry core.VectorEntry
	// Seq orders entries by first insertion; overwrites keep it.
	Seq uint64
}

// VectorRepository persists vector index entries grouped by index name.
type VectorRepository interface {
	// Dimension returns the dimension an index was initialized with,
	// or 0 if it has not been initialized.
	Dimension(ctx context.Context, index string) (int, error)

	// InitDimension records the dimension of an index. It is a no-op when
	// the index already has the same dimension and returns
	// core.ErrDimensionMismatch when it differs.
	InitDimension(ctx context.Context, index string, dim int) error

	// UpsertVectors inserts or overwrites entries by ID in one transaction.
	UpsertVectors(ctx context.Context, index string, entries ...core.VectorEntry) error

	// ScanVectors calls fn for each entry of the index in key order.
	ScanVectors(ctx context.Context, index string, fn func(*StoredVector) error) error

	// DeleteVectorsBySource removes every entry whose source_id metadata
	// equals sourceID and returns the number removed.
	DeleteVectorsBySource(ctx context.Context, index, sourceID string) (int, error)

	// DropVectors removes every entry of the index and resets its dimension.
	DropVectors(ctx context.Context, index string) error

	// CountVectors returns the number of entries in the index.
	CountVectors(ctx context.Context, index string) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// MemoryRepository stores per-session memory written at the end of
// pipeline runs.
type MemoryRepository interface {
	// AppendMemory stores an entry. CreatedAt is set if zero.
	AppendMemory(ctx context.Context, entry *core.MemoryEntry) error

	// RecentMemory returns up to limit entries for the session, newest first.
	RecentMemory(ctx context.Context, session string, limit int) ([]*core.MemoryEntry, error)

	// PruneMemory keeps the newest keep entries of the session and returns
	// the number deleted.
	PruneMemory(ctx context.Context, session string, keep int) (int, error)
}

// CheckpointRepository persists progress markers for resumable batch jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, setting UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves a checkpoint by name.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*Checkpoint, error)

	// DeleteCheckpoint removes a checkpoint. Missing checkpoints are ignored.
	DeleteCheckpoint(ctx context.Context, name string) error
}

// Checkpoint records how far a named batch job has progressed.
type Checkpoint struct {
	Name      string
	Position  uint64
	UpdatedAt time.Time
}
