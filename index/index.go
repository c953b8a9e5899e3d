package index

import (
	"context"
	"errors"

	"github.com/poiesic/newsdesk/core"
)

var (
	// ErrInvalidEntry is returned when an entry has no ID or an empty vector.
	ErrInvalidEntry = errors.New("invalid vector entry")

	// ErrInvalidDimension is returned when Init is given a dimension below 1.
	ErrInvalidDimension = errors.New("dimension must be greater than 0")

	// ErrInvalidTopK is returned when a query asks for fewer than one result.
	ErrInvalidTopK = errors.New("topK must be greater than 0")
)

// Index stores vectors and answers cosine similarity queries.
// Implementations must be safe for concurrent use.
type Index interface {
	// Init fixes the vector dimension. Calling it again with the same
	// dimension is a no-op; a different dimension returns
	// core.ErrDimensionMismatch.
	Init(ctx context.Context, dim int) error

	// Dimension returns the index dimension, or 0 before initialization.
	Dimension(ctx context.Context) (int, error)

	// Upsert inserts or overwrites entries by ID. All entries are validated
	// before anything is written. An uninitialized index adopts the
	// dimension of the first entry.
	Upsert(ctx context.Context, entries ...core.VectorEntry) error

	// QuerySimilar returns up to topK entries ordered by descending cosine
	// similarity to vector, ties broken by insertion order. Overwritten
	// entries keep their original insertion position.
	QuerySimilar(ctx context.Context, vector []float32, topK int) ([]core.Match, error)

	// DeleteBySource removes every entry whose source_id metadata equals
	// sourceID and returns how many were removed.
	DeleteBySource(ctx context.Context, sourceID string) (int, error)

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)

	// Reset removes every entry and clears the dimension.
	Reset(ctx context.Context) error
}

// validateEntries checks every entry against dim, or against the first
// entry's dimension when dim is 0, and returns the dimension in force.
func validateEntries(dim int, entries []core.VectorEntry) (int, error) {
	for i, e := range entries {
		if e.ID == "" || len(e.Vector) == 0 {
			return 0, ErrInvalidEntry
		}
		if dim == 0 && i == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return 0, dimensionMismatch(dim, len(e.Vector))
		}
	}
	return dim, nil
}
