package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
	"github.com/poiesic/newsdesk/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, news storage.NewsRepository, opts ...Option) *Service {
	t.Helper()
	s, err := NewService(news, opts...)
	require.NoError(t, err)
	return s
}

func article(title, url string, keywords ...string) core.RawArticle {
	return core.RawArticle{
		Title:     title,
		Content:   "Body of " + title,
		URL:       url,
		Source:    "wire",
		Published: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Keywords:  keywords,
	}
}

func countNews(t *testing.T, news storage.NewsRepository, session string) int {
	t.Helper()
	n, err := news.CountNews(context.Background(), storage.NewsFilter{Session: session})
	require.NoError(t, err)
	return n
}

func TestNewService(t *testing.T) {
	store := newTestStore(t)

	_, err := NewService(nil)
	assert.ErrorIs(t, err, ErrNewsRepositoryRequired)

	_, err = NewService(store.News, WithExpireDays(-1))
	assert.Error(t, err)

	_, err = NewService(store.News, WithMaxKeywords(0))
	assert.Error(t, err)

	s, err := NewService(store.News, WithLogger(nil), WithClock(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultExpireDays, s.expireDays)
	assert.Equal(t, DefaultMaxKeywords, s.maxKeywords)
}

func TestIngest_ValidatesSession(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)

	_, err := s.Ingest(context.Background(), IngestRequest{Session: " ", Articles: []core.RawArticle{article("a", "u")}})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestIngest_InsertsNewRecords(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News, WithExpireDays(3))

	result, err := s.Ingest(context.Background(), IngestRequest{
		Session:  "s1",
		Articles: []core.RawArticle{article("Chips rally", "https://a/1"), article("Rates hold", "https://a/2")},
		Keywords: []string{"Markets"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.Updated)
	require.Len(t, result.Records, 2)

	r := result.Records[0]
	assert.NotZero(t, r.Id)
	assert.Equal(t, "s1", r.Session)
	assert.Equal(t, "Chips rally", r.Title)
	assert.Equal(t, 3, r.ExpireDays)
	assert.Equal(t, []string{"markets"}, r.Keywords)
	assert.False(t, r.Embedded)
	assert.Equal(t, 2, countNews(t, store.News, "s1"))
}

func TestIngest_DedupIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)
	ctx := context.Background()
	req := IngestRequest{
		Session:  "s1",
		Articles: []core.RawArticle{article("Chips rally", "https://a/1"), article("Rates hold", "")},
		Keywords: []string{"markets"},
	}

	first, err := s.Ingest(ctx, req)
	require.NoError(t, err)
	second, err := s.Ingest(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, countNews(t, store.News, "s1"))

	for i := range first.Records {
		assert.Equal(t, first.Records[i].Id, second.Records[i].Id)
		assert.Equal(t, 1, second.Records[i].UpdatedCount)
	}
}

func TestIngest_TitleDedupWithoutURL(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)
	ctx := context.Background()

	_, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("Chips Rally!", "")}})
	require.NoError(t, err)
	result, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("  chips   rally ", "")}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, countNews(t, store.News, "s1"))
}

func TestIngest_SessionsAreSeparate(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)
	ctx := context.Background()
	a := article("Chips rally", "https://a/1")

	_, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{a}})
	require.NoError(t, err)
	result, err := s.Ingest(ctx, IngestRequest{Session: "s2", Articles: []core.RawArticle{a}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
}

func TestIngest_KeywordUnion(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)
	ctx := context.Background()

	_, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("T", "https://a/1", "ai")}})
	require.NoError(t, err)
	result, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("T", "https://a/1", "ml")}})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, []string{"ai", "ml"}, result.Records[0].Keywords)
	assert.Equal(t, 1, result.Records[0].UpdatedCount)

	stored, err := store.News.GetNews(ctx, result.Records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "ml"}, stored.Keywords)
}

func TestIngest_KeywordCapDropsOldest(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News, WithMaxKeywords(3))
	ctx := context.Background()

	ingest := func(keywords ...string) *core.NewsRecord {
		result, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("T", "https://a/1", keywords...)}})
		require.NoError(t, err)
		return result.Records[0]
	}

	ingest("a", "b", "c")
	// re-mentioning "a" makes it the newest, so "b" is the oldest
	r := ingest("a", "d")
	assert.Equal(t, []string{"c", "a", "d"}, r.Keywords)
}

func TestIngest_ExtractsKeywordsWhenNoneGiven(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)

	a := core.RawArticle{
		Title:   "Copper prices surge",
		Content: "Copper demand from battery makers pushed copper prices higher.",
		URL:     "https://a/copper",
	}
	result, err := s.Ingest(context.Background(), IngestRequest{Session: "s1", Articles: []core.RawArticle{a}})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "copper", result.Records[0].Keywords[0])
	assert.Contains(t, result.Records[0].Keywords, "prices")
}

func TestIngest_DefaultsDateToNow(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, store.News, WithClock(func() time.Time { return now }))

	a := article("Undated", "https://a/undated")
	a.Published = time.Time{}
	result, err := s.Ingest(context.Background(), IngestRequest{Session: "s1", Articles: []core.RawArticle{a}})
	require.NoError(t, err)
	assert.True(t, result.Records[0].Date.Equal(now))
}

func TestIngest_SkipsArticlesWithoutIdentity(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)

	result, err := s.Ingest(context.Background(), IngestRequest{
		Session:  "s1",
		Articles: []core.RawArticle{{Content: "no title or url"}, article("ok", "https://a/ok")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], core.ErrValidation)
}

func TestIngest_LongerBodyMarksForReembedding(t *testing.T) {
	store := newTestStore(t)
	s := newTestService(t, store.News)
	ctx := context.Background()

	first, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{article("T", "https://a/1")}})
	require.NoError(t, err)
	r := first.Records[0]
	r.Embedded = true
	require.NoError(t, store.News.UpdateNews(ctx, r))

	longer := article("T", "https://a/1")
	longer.Content = "A much longer body that replaces the teaser text."
	second, err := s.Ingest(ctx, IngestRequest{Session: "s1", Articles: []core.RawArticle{longer}})
	require.NoError(t, err)
	assert.Equal(t, longer.Content, second.Records[0].Content)
	assert.False(t, second.Records[0].Embedded)
}

func TestIngest_ConcurrentSameArticle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// separate services share no lock, so only the store's dedup index
	// keeps the article unique
	const writers = 4
	var wg sync.WaitGroup
	var inserted atomic.Int32
	for i := 0; i < writers; i++ {
		s := newTestService(t, store.News)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := s.Ingest(ctx, IngestRequest{
				Session:  "s1",
				Articles: []core.RawArticle{article("Same story", "https://a/same", fmt.Sprintf("k%d", i))},
			})
			if !assert.NoError(t, err) {
				return
			}
			inserted.Add(int32(result.Inserted))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	assert.Equal(t, 1, countNews(t, store.News, "s1"))

	records, err := store.News.FindNews(ctx, storage.NewsFilter{Session: "s1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, writers-1, records[0].UpdatedCount)
	assert.Len(t, records[0].Keywords, writers)
}

// flakyRepository fails UpsertNews with the configured errors before
// delegating.
type flakyRepository struct {
	storage.NewsRepository
	mu   sync.Mutex
	errs []error
}

func (f *flakyRepository) UpsertNews(ctx context.Context, r *core.NewsRecord, merge storage.MergeFunc) (*core.NewsRecord, bool, error) {
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, false, err
	}
	f.mu.Unlock()
	return f.NewsRepository.UpsertNews(ctx, r, merge)
}

func TestIngest_RetriesConflicts(t *testing.T) {
	store := newTestStore(t)
	repo := &flakyRepository{NewsRepository: store.News, errs: []error{storage.ErrConflict, storage.ErrConflict}}
	s := newTestService(t, repo)

	result, err := s.Ingest(context.Background(), IngestRequest{Session: "s1", Articles: []core.RawArticle{article("T", "https://a/1")}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
}

func TestIngest_StoreFailure(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("disk full")
	repo := &flakyRepository{NewsRepository: store.News, errs: []error{boom, boom}}
	s := newTestService(t, repo)

	result, err := s.Ingest(context.Background(), IngestRequest{
		Session:  "s1",
		Articles: []core.RawArticle{article("A", "https://a/1"), article("B", "https://a/2")},
	})
	assert.ErrorIs(t, err, core.ErrCollaborator)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.Len(t, result.Errors, 2)
	assert.Zero(t, result.Processed())
}

func TestIngest_PartialStoreFailure(t *testing.T) {
	store := newTestStore(t)
	repo := &flakyRepository{NewsRepository: store.News, errs: []error{errors.New("transient")}}
	s := newTestService(t, repo)

	result, err := s.Ingest(context.Background(), IngestRequest{
		Session:  "s1",
		Articles: []core.RawArticle{article("A", "https://a/1"), article("B", "https://a/2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Len(t, result.Errors, 1)
}
