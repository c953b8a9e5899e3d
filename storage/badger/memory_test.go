package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_RecentAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Memory.AppendMemory(ctx, &core.MemoryEntry{
			Session:   "s1",
			Query:     "q",
			Summary:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Memory.AppendMemory(ctx, &core.MemoryEntry{Session: "s2", Summary: "other"}))

	recent, err := store.Memory.RecentMemory(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "e", recent[0].Summary)
	assert.Equal(t, "d", recent[1].Summary)

	deleted, err := store.Memory.PruneMemory(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	all, err := store.Memory.RecentMemory(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[2].Summary)

	other, err := store.Memory.RecentMemory(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestCheckpointRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp, err := store.Checkpoints.LoadCheckpoint(ctx, "reindex:s1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, store.Checkpoints.SaveCheckpoint(ctx, &storage.Checkpoint{Name: "reindex:s1", Position: 40}))

	cp, err = store.Checkpoints.LoadCheckpoint(ctx, "reindex:s1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(40), cp.Position)
	assert.False(t, cp.UpdatedAt.IsZero())

	require.NoError(t, store.Checkpoints.DeleteCheckpoint(ctx, "reindex:s1"))
	cp, err = store.Checkpoints.LoadCheckpoint(ctx, "reindex:s1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}
