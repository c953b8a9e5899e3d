package vectorize

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/newsdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIterator_Batches(t *testing.T) {
	f := newFixture(t)
	records := f.addRecords(t, "s1", 7)
	f.addRecords(t, "other", 2)

	it := NewRecordIterator(f.store.News, "s1", 3, false)
	n, err := it.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	var sizes []int
	var seen []core.ID
	err = it.ForEach(context.Background(), func(batch []*core.NewsRecord) error {
		sizes = append(sizes, len(batch))
		for _, r := range batch {
			seen = append(seen, r.Id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)

	want := make([]core.ID, len(records))
	for i, r := range records {
		want[i] = r.Id
	}
	assert.Equal(t, want, seen, "records come in publish date order")
}

func TestRecordIterator_PendingOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	records := f.addRecords(t, "s1", 4)
	_, err := f.store.News.SetEmbedded(ctx, true, records[0].Id, records[2].Id)
	require.NoError(t, err)

	it := NewRecordIterator(f.store.News, "s1", 0, true)
	assert.Equal(t, DefaultBatchSize, it.batchSize)

	var seen []core.ID
	require.NoError(t, it.ForEach(ctx, func(batch []*core.NewsRecord) error {
		for _, r := range batch {
			seen = append(seen, r.Id)
		}
		return nil
	}))
	assert.Equal(t, []core.ID{records[1].Id, records[3].Id}, seen)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	f := newFixture(t)
	f.addRecords(t, "s1", 5)
	boom := errors.New("boom")

	calls := 0
	err := NewRecordIterator(f.store.News, "s1", 2, false).ForEach(context.Background(), func([]*core.NewsRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_Cancellation(t *testing.T) {
	f := newFixture(t)
	f.addRecords(t, "s1", 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRecordIterator(f.store.News, "s1", 2, false).ForEach(ctx, func([]*core.NewsRecord) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	err = NewRecordIterator(f.store.News, "s1", 2, false).ForEach(ctx, func([]*core.NewsRecord) error {
		t.Fatal("no batch expected after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordIterator_Empty(t *testing.T) {
	f := newFixture(t)
	err := NewRecordIterator(f.store.News, "none", 2, false).ForEach(context.Background(), func([]*core.NewsRecord) error {
		t.Fatal("no batch expected")
		return nil
	})
	assert.NoError(t, err)
}
