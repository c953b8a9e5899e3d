package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/core"
)

// DefaultBatchSize is the number of texts sent to the provider per call.
const DefaultBatchSize = 32

// collaborator names the provider in wrapped errors.
const collaborator = "embedding"

// Gateway turns batches of text into vectors through an ai.Embedder.
// Large inputs are split into provider-sized sub-batches that run
// concurrently on a worker pool and are reassembled in input order.
// A Gateway is safe for concurrent use.
type Gateway struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	normalize bool
	retry     RetryPolicy
	provider  string
	dimension atomic.Int64 // 0 until pinned or learned from the first result
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithBatchSize sets the maximum number of texts per provider call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(g *Gateway) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		g.batchSize = size
		return nil
	}
}

// WithPoolSize sets how many sub-batches may be in flight at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(g *Gateway) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if g.pool != nil {
			g.pool.Release()
		}
		g.pool = pool
		return nil
	}
}

// WithDimension pins the expected vector dimension. Without it the
// dimension of the first successful result is adopted.
func WithDimension(dim int) Option {
	return func(g *Gateway) error {
		if dim < 1 {
			return ErrInvalidDimension
		}
		g.dimension.Store(int64(dim))
		return nil
	}
}

// WithNormalize scales every returned vector to unit length.
func WithNormalize() Option {
	return func(g *Gateway) error {
		g.normalize = true
		return nil
	}
}

// WithRetry retries failed provider calls per sub-batch.
// Default is a single attempt.
func WithRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(g *Gateway) error {
		g.retry = RetryPolicy{MaxRetries: maxRetries, BaseDelay: baseDelay}
		return nil
	}
}

// WithProvider sets the provider name recorded on EmbeddingVector values.
// Default is the embedder's Model() when it has one.
func WithProvider(name string) Option {
	return func(g *Gateway) error {
		g.provider = name
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// modeler is implemented by embedders that can name their model.
type modeler interface {
	Model() string
}

// New creates a Gateway over embedder.
func New(embedder ai.Embedder, opts ...Option) (*Gateway, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		embedder:  embedder,
		pool:      pool,
		batchSize: DefaultBatchSize,
		provider:  "unknown",
		logger:    slog.Default(),
	}
	if m, ok := embedder.(modeler); ok && m.Model() != "" {
		g.provider = m.Model()
	}

	for _, opt := range opts {
		if optErr := opt(g); optErr != nil {
			g.Release()
			return nil, optErr
		}
	}
	g.logger = g.logger.With("component", "embedding", "provider", g.provider)
	return g, nil
}

// Dimension returns the pinned or learned vector dimension, 0 if neither.
func (g *Gateway) Dimension() int {
	return int(g.dimension.Load())
}

// Provider returns the provider name recorded on embedding vectors.
func (g *Gateway) Provider() string {
	return g.provider
}

// EmbedText embeds a single text.
func (g *Gateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type span struct {
	start, end int
}

// EmbedBatch returns one vector per text in input order. The call fails as
// a whole if any sub-batch fails; no partial result is returned. Every
// vector must match the gateway's dimension.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	spans := g.partition(len(texts))
	vectors := make([][]float32, len(texts))
	started := time.Now()

	if len(spans) == 1 {
		if err := g.embedSpan(ctx, texts, vectors, spans[0]); err != nil {
			return nil, err
		}
	} else if err := g.embedConcurrently(ctx, texts, vectors, spans); err != nil {
		return nil, err
	}

	if err := g.checkDimension(vectors); err != nil {
		return nil, err
	}

	g.logger.Debug("embedded batch", "texts", len(texts), "sub_batches", len(spans), "elapsed", time.Since(started))
	return vectors, nil
}

// embedConcurrently runs each span on the pool. The first failure cancels
// the sub-batches still in flight.
func (g *Gateway) embedConcurrently(ctx context.Context, texts []string, vectors [][]float32, spans []span) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, s := range spans {
		wg.Add(1)
		submitErr := g.pool.Submit(func() {
			defer wg.Done()
			if err := g.embedSpan(ctx, texts, vectors, s); err != nil {
				fail(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit sub-batch: %w", submitErr))
			break
		}
	}
	wg.Wait()
	return firstErr
}

// embedSpan embeds texts[s.start:s.end] into the same positions of out.
func (g *Gateway) embedSpan(ctx context.Context, texts []string, out [][]float32, s span) error {
	batch := texts[s.start:s.end]

	var result [][]float32
	err := g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		vecs, err := g.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		result = vecs
		return nil
	})
	if err != nil {
		g.logger.Error("error generating embeddings", "texts", len(batch), "err", err)
		return core.NewCollaboratorError(collaborator, err)
	}

	if len(result) != len(batch) {
		return fmt.Errorf("%w: expected %d, received %d", ErrCountMismatch, len(batch), len(result))
	}

	for i, v := range result {
		if len(v) == 0 {
			return fmt.Errorf("%w: text %d", ErrEmptyVector, s.start+i)
		}
		if g.normalize {
			v = NormalizeVector(v)
		}
		out[s.start+i] = v
	}
	return nil
}

func (g *Gateway) partition(n int) []span {
	spans := make([]span, 0, (n+g.batchSize-1)/g.batchSize)
	for start := 0; start < n; start += g.batchSize {
		spans = append(spans, span{start: start, end: min(start+g.batchSize, n)})
	}
	return spans
}

// checkDimension verifies every vector shares one dimension, adopting it as
// the gateway dimension if none is set yet.
func (g *Gateway) checkDimension(vectors [][]float32) error {
	dim := int64(len(vectors[0]))
	for i, v := range vectors {
		if int64(len(v)) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, vector 0 has %d",
				core.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	g.dimension.CompareAndSwap(0, dim)
	if want := g.dimension.Load(); want != dim {
		return fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, want, dim)
	}
	return nil
}

// EmbedChunks embeds each chunk's full content, overlap included, and tags
// the results with chunk IDs and the provider name.
func (g *Gateway) EmbedChunks(ctx context.Context, chunks []core.TextChunk) ([]core.EmbeddingVector, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := g.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]core.EmbeddingVector, len(chunks))
	for i, c := range chunks {
		out[i] = core.EmbeddingVector{
			ChunkID:   c.ID(),
			Vector:    vectors[i],
			Dimension: len(vectors[i]),
			Provider:  g.provider,
		}
	}
	return out, nil
}

// Release stops the worker pool. The gateway must not be used afterwards.
func (g *Gateway) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}
