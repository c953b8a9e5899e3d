package index

import (
	"context"
	"testing"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, source string, vector ...float32) core.VectorEntry {
	return core.VectorEntry{ID: id, Vector: vector, Metadata: map[string]string{core.MetadataSourceID: source}}
}

func matchIDs(matches []core.Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

// implementations runs fn against every Index implementation.
func implementations(t *testing.T, fn func(t *testing.T, newIndex func() Index)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, func() Index { return NewMemory() })
	})
	t.Run("persistent", func(t *testing.T) {
		store, err := badger.NewMemoryStore()
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		n := 0
		fn(t, func() Index {
			n++
			return NewPersistent(store.Vectors, "session-"+string(rune('a'+n)))
		})
	})
}

func TestIndex_Init(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()

		dim, err := idx.Dimension(ctx)
		require.NoError(t, err)
		assert.Zero(t, dim)

		require.NoError(t, idx.Init(ctx, 3))
		require.NoError(t, idx.Init(ctx, 3))
		assert.ErrorIs(t, idx.Init(ctx, 4), core.ErrDimensionMismatch)
		assert.ErrorIs(t, idx.Init(ctx, 0), ErrInvalidDimension)

		dim, err = idx.Dimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, dim)
	})
}

func TestIndex_UpsertValidatesWholeBatch(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()
		require.NoError(t, idx.Init(ctx, 2))

		err := idx.Upsert(ctx, entry("a", "1", 1, 0), entry("b", "1", 1, 0, 0))
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)

		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "no partial writes")

		assert.ErrorIs(t, idx.Upsert(ctx, entry("", "1", 1, 0)), ErrInvalidEntry)
		assert.ErrorIs(t, idx.Upsert(ctx, entry("x", "1")), ErrInvalidEntry)
	})
}

func TestIndex_UpsertInitializesDimension(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()

		require.NoError(t, idx.Upsert(ctx, entry("a", "1", 1, 0, 0)))
		dim, err := idx.Dimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, dim)
		assert.ErrorIs(t, idx.Upsert(ctx, entry("b", "1", 1, 0)), core.ErrDimensionMismatch)
	})
}

func TestIndex_QueryOrdering(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()

		require.NoError(t, idx.Upsert(ctx,
			entry("far", "1", 0, 1),
			entry("tie-first", "2", 1, 1),
			entry("near", "3", 1, 0.1),
			entry("tie-second", "4", 2, 2),
			entry("opposite", "5", -1, 0),
		))

		matches, err := idx.QuerySimilar(ctx, []float32{1, 1}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-first", "tie-second", "near", "far", "opposite"}, matchIDs(matches))

		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
		}
		for _, m := range matches {
			assert.GreaterOrEqual(t, m.Score, -1.0)
			assert.LessOrEqual(t, m.Score, 1.0)
		}
		assert.Equal(t, "2", matches[0].Metadata[core.MetadataSourceID])

		top, err := idx.QuerySimilar(ctx, []float32{1, 1}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-first", "tie-second"}, matchIDs(top))
	})
}

func TestIndex_OverwriteKeepsInsertionPosition(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()

		require.NoError(t, idx.Upsert(ctx, entry("a", "1", 1, 0), entry("b", "1", 1, 0)))
		require.NoError(t, idx.Upsert(ctx, entry("a", "1", 2, 0)))

		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		matches, err := idx.QuerySimilar(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, matchIDs(matches))
	})
}

func TestIndex_ZeroVectorQuery(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()
		require.NoError(t, idx.Upsert(ctx, entry("a", "1", 1, 0), entry("b", "1", 0, 1)))

		matches, err := idx.QuerySimilar(ctx, []float32{0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		for _, m := range matches {
			assert.Zero(t, m.Score)
		}
		assert.Equal(t, []string{"a", "b"}, matchIDs(matches))
	})
}

func TestIndex_QueryValidation(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()

		matches, err := idx.QuerySimilar(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, matches, "uninitialized index has no matches")

		require.NoError(t, idx.Init(ctx, 2))
		_, err = idx.QuerySimilar(ctx, []float32{1, 0, 0}, 3)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)

		_, err = idx.QuerySimilar(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidTopK)
	})
}

func TestIndex_DeleteBySource(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()
		require.NoError(t, idx.Upsert(ctx,
			entry("news:1:0", "1", 1, 0),
			entry("news:2:0", "2", 0, 1),
			entry("news:1:1", "1", 1, 1),
			entry("news:3:0", "3", 1, 0.5),
		))

		removed, err := idx.DeleteBySource(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = idx.DeleteBySource(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, removed)

		matches, err := idx.QuerySimilar(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"news:2:0", "news:3:0"}, matchIDs(matches))

		// survivors are still addressable by ID after the rebuild
		require.NoError(t, idx.Upsert(ctx, entry("news:2:0", "2", 1, 0)))
		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestIndex_Reset(t *testing.T) {
	implementations(t, func(t *testing.T, newIndex func() Index) {
		ctx := context.Background()
		idx := newIndex()
		require.NoError(t, idx.Upsert(ctx, entry("a", "1", 1, 0)))

		require.NoError(t, idx.Reset(ctx))
		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, idx.Init(ctx, 4), "dimension is cleared by reset")
	})
}

func TestMemory_StoredEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	e := entry("a", "1", 1, 0)
	require.NoError(t, idx.Upsert(ctx, e))
	e.Vector[0] = -1
	e.Metadata[core.MetadataSourceID] = "changed"

	matches, err := idx.QuerySimilar(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "1", matches[0].Metadata[core.MetadataSourceID])
}
