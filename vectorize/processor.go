package vectorize

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/poiesic/newsdesk/chunker"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/index"
	"github.com/poiesic/newsdesk/storage"
)

// ChunkEmbedder embeds chunks, one vector per chunk in input order.
// *embedding.Gateway satisfies it.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []core.TextChunk) ([]core.EmbeddingVector, error)
}

// Result reports one processed batch.
type Result struct {
	Records int
	Chunks  int
	Vectors int
}

// Add accumulates other into r.
func (r *Result) Add(other *Result) {
	if other == nil {
		return
	}
	r.Records += other.Records
	r.Chunks += other.Chunks
	r.Vectors += other.Vectors
}

// BatchProcessor chunks news records, embeds the chunks and writes the
// vectors to the session index. Processed records are flagged embedded.
type BatchProcessor struct {
	news     storage.NewsRepository
	indexes  *index.Registry
	chunker  *chunker.Chunker
	embedder ChunkEmbedder
	logger   *slog.Logger
}

// ProcessorOption configures a BatchProcessor.
type ProcessorOption func(*BatchProcessor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *BatchProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(
	news storage.NewsRepository,
	indexes *index.Registry,
	c *chunker.Chunker,
	embedder ChunkEmbedder,
	opts ...ProcessorOption,
) (*BatchProcessor, error) {
	if news == nil {
		return nil, ErrNewsRepositoryRequired
	}
	if indexes == nil {
		return nil, ErrIndexRegistryRequired
	}
	if c == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &BatchProcessor{
		news:     news,
		indexes:  indexes,
		chunker:  c,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "vectorize")
	return p, nil
}

// recordText is what gets chunked: the headline followed by the body.
func recordText(r *core.NewsRecord) string {
	switch {
	case r.Title == "":
		return r.Content
	case r.Content == "":
		return r.Title
	default:
		return r.Title + "\n\n" + r.Content
	}
}

// Process vectorizes records of one session. All chunks of the batch are
// embedded in a single gateway call; when it fails nothing is written.
// Each record's previous vectors are replaced, so a record whose body
// shrank leaves no stale chunks behind. Vectors whose dimension does not
// fit the index are rejected before any existing vector is touched.
// Records deleted while the batch was in flight end up with no vectors.
func (p *BatchProcessor) Process(ctx context.Context, session string, records []*core.NewsRecord) (*Result, error) {
	result := &Result{}
	if len(records) == 0 {
		return result, nil
	}

	idx, err := p.indexes.ForSession(session)
	if err != nil {
		return nil, err
	}

	var chunks []core.TextChunk
	ids := make([]core.ID, 0, len(records))
	for _, r := range records {
		if r.Session != session {
			return nil, fmt.Errorf("record %d belongs to session %q, not %q", r.Id, r.Session, session)
		}
		source := strconv.FormatUint(uint64(r.Id), 10)
		chunks = append(chunks, p.chunker.Chunk(r.DocumentID(), recordText(r), map[string]string{
			core.MetadataSourceID: source,
		})...)
		ids = append(ids, r.Id)
	}
	result.Records = len(records)
	result.Chunks = len(chunks)

	var entries []core.VectorEntry
	if len(chunks) > 0 {
		vectors, err := p.embedder.EmbedChunks(ctx, chunks)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embedded %d of %d chunks", len(vectors), len(chunks))
		}

		entries = make([]core.VectorEntry, len(chunks))
		for i, c := range chunks {
			meta := c.Metadata
			meta[core.MetadataText] = c.Content
			entries[i] = core.VectorEntry{ID: c.ID(), Vector: vectors[i].Vector, Metadata: meta}
		}
	}

	if len(entries) > 0 {
		if err := checkDimension(ctx, idx, entries); err != nil {
			return nil, err
		}
	}

	for _, r := range records {
		if _, err := idx.DeleteBySource(ctx, strconv.FormatUint(uint64(r.Id), 10)); err != nil {
			return nil, fmt.Errorf("clear vectors of record %d: %w", r.Id, err)
		}
	}
	if err := idx.Upsert(ctx, entries...); err != nil {
		return nil, err
	}
	result.Vectors = len(entries)

	missing, err := p.news.SetEmbedded(ctx, true, ids...)
	if err != nil {
		return nil, core.NewCollaboratorError("store", err)
	}
	gone := make(map[core.ID]struct{}, len(missing))
	for _, id := range missing {
		removed, err := idx.DeleteBySource(ctx, strconv.FormatUint(uint64(id), 10))
		if err != nil {
			return nil, fmt.Errorf("clear vectors of deleted record %d: %w", id, err)
		}
		result.Vectors -= removed
		gone[id] = struct{}{}
	}
	if len(missing) > 0 {
		p.logger.Debug("dropped vectors of deleted records", "session", session, "records", len(missing))
	}
	for _, r := range records {
		if _, ok := gone[r.Id]; !ok {
			r.Embedded = true
		}
	}

	p.logger.Debug("vectorized batch", "session", session, "records", result.Records, "vectors", result.Vectors)
	return result, nil
}

// checkDimension fixes the index dimension from the batch, or fails with
// core.ErrDimensionMismatch when the batch disagrees with it.
func checkDimension(ctx context.Context, idx index.Index, entries []core.VectorEntry) error {
	dim := len(entries[0].Vector)
	for _, e := range entries[1:] {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %q has dimension %d, batch has %d", core.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return idx.Init(ctx, dim)
}

// Pending returns the records that still need vectors.
func Pending(records []*core.NewsRecord) []*core.NewsRecord {
	var out []*core.NewsRecord
	for _, r := range records {
		if !r.Embedded {
			out = append(out, r)
		}
	}
	return out
}
