package vectorize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/index"
	"github.com/poiesic/newsdesk/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of records embedded per gateway call.
	BatchSize int

	// ReportInterval is how often progress is written, in records.
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
	}
}

// checkpointName names the checkpoint of a session's reindex.
func checkpointName(session string) string {
	return "reindex:" + session
}

// Reindexer rebuilds a session's vector index from its stored records,
// typically after the embedding model changed.
//
// A fresh run clears the index and flags every record as not embedded,
// then vectorizes pending records batch by batch. A checkpoint marks the
// run as in progress; a run interrupted by an error or cancellation is
// resumed by the next Run without clearing the index again.
type Reindexer struct {
	news        storage.NewsRepository
	checkpoints storage.CheckpointRepository
	indexes     *index.Registry
	processor   *BatchProcessor
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// NewReindexer creates a reindexer. progress receives human-readable
// progress output and may be nil.
func NewReindexer(
	news storage.NewsRepository,
	checkpoints storage.CheckpointRepository,
	indexes *index.Registry,
	processor *BatchProcessor,
	config *Config,
	progress io.Writer,
	logger *slog.Logger,
) (*Reindexer, error) {
	switch {
	case news == nil:
		return nil, ErrNewsRepositoryRequired
	case checkpoints == nil:
		return nil, ErrCheckpointRepositoryRequired
	case indexes == nil:
		return nil, ErrIndexRegistryRequired
	case processor == nil:
		return nil, ErrProcessorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reindexer{
		news:        news,
		checkpoints: checkpoints,
		indexes:     indexes,
		processor:   processor,
		config:      config,
		progress:    progress,
		logger:      logger.With("component", "reindexer"),
	}, nil
}

// Run reindexes the session and returns the totals of this run.
func (r *Reindexer) Run(ctx context.Context, session string) (*Result, error) {
	if err := core.ValidateSession(session); err != nil {
		return nil, err
	}

	name := checkpointName(session)
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if checkpoint == nil {
		if err := r.prepare(ctx, session); err != nil {
			return nil, err
		}
		checkpoint = &storage.Checkpoint{Name: name}
		if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
	} else {
		fmt.Fprintf(r.progress, "Resuming reindex of session %s after %d records\n", session, checkpoint.Position)
	}

	iterator := NewRecordIterator(r.news, session, r.config.BatchSize, true)
	pending, err := iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	total := &Result{}
	if pending == 0 {
		fmt.Fprintf(r.progress, "No records to reindex in session %s\n", session)
		return total, r.checkpoints.DeleteCheckpoint(ctx, name)
	}

	fmt.Fprintf(r.progress, "Reindexing %d records of session %s (batch size: %d)\n",
		pending, session, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, pending, r.config.ReportInterval)
	tracker.Start()

	err = iterator.ForEach(ctx, func(records []*core.NewsRecord) error {
		result, err := r.processor.Process(ctx, session, records)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		total.Add(result)
		tracker.Increment(len(records))

		checkpoint.Position += uint64(len(records))
		return r.checkpoints.SaveCheckpoint(ctx, checkpoint)
	})
	tracker.Finish()
	if err != nil {
		r.logger.Error("reindex interrupted", "session", session, "position", checkpoint.Position, "err", err)
		return total, err
	}

	if err := r.checkpoints.DeleteCheckpoint(ctx, name); err != nil {
		return total, fmt.Errorf("delete checkpoint: %w", err)
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. %d records, %d vectors in %v\n",
		total.Records, total.Vectors, elapsed.Round(time.Millisecond))
	r.logger.Info("reindex complete", "session", session, "records", total.Records, "vectors", total.Vectors, "elapsed", elapsed)
	return total, nil
}

// prepare clears the session index and flags every record for embedding.
func (r *Reindexer) prepare(ctx context.Context, session string) error {
	idx, err := r.indexes.ForSession(session)
	if err != nil {
		return err
	}
	if err := idx.Reset(ctx); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}

	records, err := r.news.FindNews(ctx, storage.NewsFilter{Session: session})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	ids := make([]core.ID, len(records))
	for i, rec := range records {
		ids[i] = rec.Id
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = r.news.SetEmbedded(ctx, false, ids...)
	return err
}
