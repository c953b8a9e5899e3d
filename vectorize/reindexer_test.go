package vectorize

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/poiesic/newsdesk/ai/mock"
	"github.com/poiesic/newsdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) newReindexer(t *testing.T, p *BatchProcessor, batchSize int, out io.Writer) *Reindexer {
	t.Helper()
	r, err := NewReindexer(f.store.News, f.store.Checkpoints, f.indexes, p,
		&Config{BatchSize: batchSize, ReportInterval: 1}, out, nil)
	require.NoError(t, err)
	return r
}

func TestNewReindexer(t *testing.T) {
	f := newFixture(t)

	_, err := NewReindexer(nil, f.store.Checkpoints, f.indexes, f.processor, nil, nil, nil)
	assert.Equal(t, ErrNewsRepositoryRequired, err)
	_, err = NewReindexer(f.store.News, nil, f.indexes, f.processor, nil, nil, nil)
	assert.Equal(t, ErrCheckpointRepositoryRequired, err)
	_, err = NewReindexer(f.store.News, f.store.Checkpoints, nil, f.processor, nil, nil, nil)
	assert.Equal(t, ErrIndexRegistryRequired, err)
	_, err = NewReindexer(f.store.News, f.store.Checkpoints, f.indexes, nil, nil, nil, nil)
	assert.Equal(t, ErrProcessorRequired, err)

	r, err := NewReindexer(f.store.News, f.store.Checkpoints, f.indexes, f.processor, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReindexer_RebuildsWithNewModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	records := f.addRecords(t, "s1", 5)

	_, err := f.processor.Process(ctx, "s1", records)
	require.NoError(t, err)

	// a model change alters the dimension, which only a reset index accepts
	newModel := mock.NewMockEmbedder()
	newModel.Dimension = 12

	var out bytes.Buffer
	result, err := f.newReindexer(t, f.newProcessor(t, newModel), 2, &out).Run(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Records)
	assert.Equal(t, 5, result.Vectors)
	assert.Equal(t, 3, newModel.CallCount())

	idx, err := f.indexes.ForSession("s1")
	require.NoError(t, err)
	dim, err := idx.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, dim)
	assert.Equal(t, 5, f.indexLen(t, "s1"))
	assert.Equal(t, 5, f.embeddedCount(t, "s1"))

	cp, err := f.store.Checkpoints.LoadCheckpoint(ctx, checkpointName("s1"))
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint is removed on completion")

	assert.Contains(t, out.String(), "Reindexing 5 records of session s1")
	assert.Contains(t, out.String(), "5/5")
	assert.Contains(t, out.String(), "Reindex complete")
}

func TestReindexer_ResumesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRecords(t, "s1", 5)

	flaky := mock.NewMockEmbedder()
	flaky.Dimension = 8
	var calls atomic.Int32
	flaky.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("rate limited")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 8)
		}
		return out, nil
	}

	var out bytes.Buffer
	reindexer := f.newReindexer(t, f.newProcessor(t, flaky), 2, &out)

	result, err := reindexer.Run(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrCollaborator)
	assert.Equal(t, 2, result.Records)

	cp, err := f.store.Checkpoints.LoadCheckpoint(ctx, checkpointName("s1"))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(2), cp.Position)
	assert.Equal(t, 2, f.indexLen(t, "s1"))

	out.Reset()
	result, err = reindexer.Run(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Records, "only the remaining records are processed")
	assert.Equal(t, 5, f.indexLen(t, "s1"), "the index is not cleared on resume")
	assert.Equal(t, 5, f.embeddedCount(t, "s1"))
	assert.Contains(t, out.String(), "Resuming reindex of session s1 after 2 records")
}

func TestReindexer_EmptySession(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer

	result, err := f.newReindexer(t, f.processor, 2, &out).Run(context.Background(), "empty")
	require.NoError(t, err)
	assert.Zero(t, *result)
	assert.Contains(t, out.String(), "No records to reindex")

	cp, err := f.store.Checkpoints.LoadCheckpoint(context.Background(), checkpointName("empty"))
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestReindexer_InvalidSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.newReindexer(t, f.processor, 2, nil).Run(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrValidation)
}
