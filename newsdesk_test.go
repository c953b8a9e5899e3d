package newsdesk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/ai/mock"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/ingestion"
	"github.com/poiesic/newsdesk/news"
	"github.com/poiesic/newsdesk/pipeline"
	"github.com/poiesic/newsdesk/storage"
	"github.com/poiesic/newsdesk/vectorize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockProvider() *mock.MockProvider {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	return mock.NewMockProviderWithServices(embedder, mock.NewMockLanguageModel()).(*mock.MockProvider)
}

func articles() []core.RawArticle {
	now := time.Now().UTC()
	return []core.RawArticle{
		{Title: "Rates held steady", Content: "The central bank held rates steady for a fourth meeting.", URL: "https://example.com/rates", Published: now},
		{Title: "Bank earnings beat", Content: "Large bank earnings beat forecasts on trading revenue.", URL: "https://example.com/earnings", Published: now.Add(-time.Hour)},
	}
}

func TestOpen(t *testing.T) {
	t.Run("create new desk", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test_db")
		d, err := Open(dir, WithAIProvider(mockProvider()))
		require.NoError(t, err)
		require.NotNil(t, d)
		defer d.Close()

		assert.NotNil(t, d.NewsRepository())
		assert.NotNil(t, d.MemoryRepository())
		assert.NotNil(t, d.Ingestion())
		assert.NotNil(t, d.Searcher())
		assert.NotNil(t, d.logger)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("test"), 0644))

		d, err := Open(file, WithAIProvider(mockProvider()))
		assert.Error(t, err)
		assert.Nil(t, d)
	})

	t.Run("error with invalid chunking", func(t *testing.T) {
		d, err := Open("", InMemory(), WithAIProvider(mockProvider()), WithChunking(64, 64))
		assert.Error(t, err)
		assert.Nil(t, d)
	})

	t.Run("default provider", func(t *testing.T) {
		d, err := Open("", InMemory())
		require.NoError(t, err)
		assert.NoError(t, d.Close())
	})
}

func TestDesk_EndToEnd(t *testing.T) {
	provider := mockProvider()
	d, err := Open("", InMemory(),
		WithAIProvider(provider),
		WithSearchProvider(news.NewStatic(articles())),
		WithChunking(32, 8),
		WithEmbeddingBatchSize(2),
		WithExpireDays(3),
		WithCardConcurrency(2),
	)
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	resp, err := d.Run(ctx, pipeline.Request{Session: "desk", Keywords: []string{"bank"}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, 2, resp.ProcessedCount)
	assert.Positive(t, resp.VectorsCreated)
	assert.Equal(t, 2, resp.CardsGenerated)
	assert.Positive(t, provider.GetMockLanguageModel().CallCount())

	stats, err := d.Ingestion().Stats(ctx, "desk", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)

	records, err := d.NewsRepository().FindNews(ctx, storage.NewsFilter{Session: "desk"})
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, 3, r.ExpireDays)
	}

	reindexer, err := d.NewReindexer(vectorize.DefaultConfig(), io.Discard)
	require.NoError(t, err)
	result, err := reindexer.Run(ctx, "desk")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Records)
	assert.Equal(t, resp.VectorsCreated, result.Vectors)

	sweeper, err := d.NewSweeper(ingestion.Every(time.Hour))
	require.NoError(t, err)
	results, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Deleted)
}

// flakyProvider's embedder fails its first call.
func flakyProvider() *mock.MockProvider {
	provider := mockProvider()
	embedder := provider.GetMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, ai.ErrEmptyResponse
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 16)
		}
		return out, nil
	}
	return provider
}

func TestDesk_EmbeddingRetry(t *testing.T) {
	run := func(t *testing.T, opts ...Option) *pipeline.Response {
		t.Helper()
		opts = append([]Option{
			InMemory(),
			WithAIProvider(flakyProvider()),
			WithSearchProvider(news.NewStatic(articles())),
			WithChunking(32, 8),
			WithEmbeddingBatchSize(64),
		}, opts...)
		d, err := Open("", opts...)
		require.NoError(t, err)
		defer d.Close()

		resp, err := d.Run(context.Background(), pipeline.Request{
			Session:  "retry",
			Keywords: []string{"bank"},
			Stages:   []pipeline.Stage{pipeline.StageSearch, pipeline.StageStore, pipeline.StageVectorize},
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("single attempt", func(t *testing.T) {
		resp := run(t)
		assert.Zero(t, resp.VectorsCreated)
		require.NotEmpty(t, resp.Warnings)
		assert.Contains(t, resp.Warnings[0], string(pipeline.StageVectorize))
	})

	t.Run("retried", func(t *testing.T) {
		resp := run(t, WithEmbeddingRetry(2, time.Millisecond))
		assert.Positive(t, resp.VectorsCreated)
		assert.Empty(t, resp.Warnings)
	})
}
