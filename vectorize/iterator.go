package vectorize

import (
	"context"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

const (
	// DefaultBatchSize is the default number of records handed to each batch.
	DefaultBatchSize = 50
)

// RecordIterator walks a session's records in publish-date order, in batches.
type RecordIterator struct {
	news        storage.NewsRepository
	session     string
	batchSize   int
	pendingOnly bool
}

// NewRecordIterator creates an iterator over the session's records.
// A batchSize of 0 or less uses DefaultBatchSize. With pendingOnly set only
// records not yet embedded are visited.
func NewRecordIterator(news storage.NewsRepository, session string, batchSize int, pendingOnly bool) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		news:        news,
		session:     session,
		batchSize:   batchSize,
		pendingOnly: pendingOnly,
	}
}

func (it *RecordIterator) filter() storage.NewsFilter {
	f := storage.NewsFilter{Session: it.session}
	if it.pendingOnly {
		embedded := false
		f.Embedded = &embedded
	}
	return f
}

// Count returns how many records the iterator will visit.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	return it.news.CountNews(ctx, it.filter())
}

// ForEach calls fn for each batch. Iteration stops on the first error from
// fn; context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.NewsRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := it.news.FindNews(ctx, it.filter())
	if err != nil {
		return err
	}

	for i := 0; i < len(records); i += it.batchSize {
		end := min(i+it.batchSize, len(records))
		if err := fn(records[i:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
