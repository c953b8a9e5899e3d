package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/index"
	"github.com/poiesic/newsdesk/storage"
	retry "github.com/sethvargo/go-retry"
)

const (
	// DefaultExpireDays is the lifetime given to newly inserted records.
	DefaultExpireDays = 7

	// DefaultMaxKeywords caps the keywords kept per record.
	DefaultMaxKeywords = 20

	// extractedKeywords is how many keywords are derived from the text of
	// an article that arrives without any.
	extractedKeywords = 5
	minKeywordLength  = 3

	// conflictRetries bounds how often a write that lost a race is retried.
	conflictRetries = 5
)

// IngestRequest is a batch of fetched articles for one session.
type IngestRequest struct {
	Session  string
	Articles []core.RawArticle
	// Keywords are the search keywords that found the articles. They are
	// added to every record.
	Keywords []string
}

// IngestResult reports what happened to each article of a batch.
type IngestResult struct {
	// Records holds the stored record for each article that was inserted
	// or merged, in article order.
	Records  []*core.NewsRecord
	Inserted int
	Updated  int
	Skipped  int
	// Errors holds one entry per article that was skipped or failed.
	Errors []error
}

// Processed returns the number of articles stored, new or merged.
func (r *IngestResult) Processed() int {
	return r.Inserted + r.Updated
}

// Service turns fetched articles into deduplicated news records, expires
// old ones and reports statistics.
type Service struct {
	news        storage.NewsRepository
	indexes     *index.Registry
	expireDays  int
	maxKeywords int
	now         func() time.Time
	logger      *slog.Logger

	locks sync.Map // session -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service) error

// WithExpireDays sets the lifetime of newly inserted records.
// Default is DefaultExpireDays.
func WithExpireDays(days int) Option {
	return func(s *Service) error {
		if days < 0 {
			return fmt.Errorf("expire days must not be negative: %d", days)
		}
		s.expireDays = days
		return nil
	}
}

// WithMaxKeywords sets the keyword cap per record.
// Default is DefaultMaxKeywords.
func WithMaxKeywords(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return fmt.Errorf("max keywords must be greater than 0: %d", n)
		}
		s.maxKeywords = n
		return nil
	}
}

// WithIndexes lets sweeps remove the vectors of expired records.
func WithIndexes(indexes *index.Registry) Option {
	return func(s *Service) error {
		s.indexes = indexes
		return nil
	}
}

// WithClock replaces time.Now, for expiry and statistics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			now = time.Now
		}
		s.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates an ingestion service over news.
func NewService(news storage.NewsRepository, opts ...Option) (*Service, error) {
	if news == nil {
		return nil, ErrNewsRepositoryRequired
	}

	s := &Service{
		news:        news,
		expireDays:  DefaultExpireDays,
		maxKeywords: DefaultMaxKeywords,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "ingestion")
	return s, nil
}

// sessionLock serializes writers within a session.
func (s *Service) sessionLock(session string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(session, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Ingest stores the articles of a batch, merging those already known to
// the session. Articles without a title or URL are skipped. Ingest fails
// only when the session is invalid or no article could be written.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := core.ValidateSession(req.Session); err != nil {
		return nil, err
	}

	result := &IngestResult{Records: make([]*core.NewsRecord, 0, len(req.Articles))}
	if len(req.Articles) == 0 {
		return result, nil
	}

	mu := s.sessionLock(req.Session)
	mu.Lock()
	defer mu.Unlock()

	var failures []error
	for i := range req.Articles {
		article := &req.Articles[i]
		if err := core.ValidateArticle(article); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("article %d: %w", i, err))
			continue
		}

		record, created, err := s.upsert(ctx, req.Session, article, req.Keywords)
		if err != nil {
			s.logger.Error("error storing article", "session", req.Session, "url", article.URL, "err", err)
			err = fmt.Errorf("article %d: %w", i, err)
			result.Errors = append(result.Errors, err)
			failures = append(failures, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if created {
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Records = append(result.Records, record)
	}

	s.logger.Info("ingested articles", "session", req.Session,
		"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped, "failed", len(failures))

	if len(failures) > 0 && result.Processed() == 0 {
		return result, core.NewCollaboratorError("store", errors.Join(failures...))
	}
	return result, nil
}

// upsert writes one article, retrying when a concurrent writer to the same
// dedup key wins the commit. The retry re-reads and merges as an update.
func (s *Service) upsert(ctx context.Context, session string, article *core.RawArticle, keywords []string) (*core.NewsRecord, bool, error) {
	incoming := s.newRecord(session, article, keywords)

	var (
		record  *core.NewsRecord
		created bool
	)
	b := retry.WithMaxRetries(conflictRetries, retry.NewExponential(5*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		record, created, err = s.news.UpsertNews(ctx, incoming, s.merge)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Debug("dedup conflict, retrying as update", "session", session, "key", incoming.DedupKey())
			return retry.RetryableError(err)
		}
		return err
	})
	return record, created, err
}

// newRecord builds the record an article would be inserted as.
func (s *Service) newRecord(session string, article *core.RawArticle, keywords []string) *core.NewsRecord {
	date := article.Published
	if date.IsZero() {
		date = s.now()
	}

	kw := mergeKeywords(nil, slices.Concat(article.Keywords, keywords), s.maxKeywords)
	if len(kw) == 0 {
		kw = ExtractKeywords(article.Title+" "+article.Content, extractedKeywords, minKeywordLength)
	}

	return &core.NewsRecord{
		Session:    session,
		Title:      strings.TrimSpace(article.Title),
		Content:    article.Content,
		URL:        strings.TrimSpace(article.URL),
		Source:     article.Source,
		Date:       date.UTC(),
		Keywords:   kw,
		ExpireDays: s.expireDays,
	}
}

// merge folds a re-fetched article into the stored record: keywords are
// unioned under the cap and the update counter is bumped. Fields the
// stored record lacks are filled in; a longer body replaces the stored one
// and marks the record for re-embedding.
func (s *Service) merge(existing, incoming *core.NewsRecord) *core.NewsRecord {
	existing.Keywords = mergeKeywords(existing.Keywords, incoming.Keywords, s.maxKeywords)
	existing.UpdatedCount++

	if existing.Title == "" {
		existing.Title = incoming.Title
	}
	if existing.Source == "" {
		existing.Source = incoming.Source
	}
	if len(incoming.Content) > len(existing.Content) {
		existing.Content = incoming.Content
		existing.Embedded = false
	}
	return existing
}
