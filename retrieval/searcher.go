package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/index"
	"github.com/poiesic/newsdesk/storage"
)

// QueryEmbedder embeds a search query. Both ai.Embedder and
// embedding.Gateway satisfy it.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Hit is one retrieved news record.
type Hit struct {
	Record *core.NewsRecord
	Score  float64
	// Chunks are the record's matched chunks, best first. Empty for
	// keyword-only hits.
	Chunks []core.Match
}

// Similarity returns the best chunk similarity, 0 for keyword-only hits.
func (h *Hit) Similarity() float64 {
	if len(h.Chunks) == 0 {
		return 0
	}
	return h.Chunks[0].Score
}

// DefaultCandidateFactor multiplies maxHits to size the chunk query, since
// several chunks of one record may crowd the top of the ranking.
const DefaultCandidateFactor = 4

// Searcher provides hybrid semantic and keyword retrieval over a
// session's news records.
type Searcher struct {
	news            storage.NewsRepository
	indexes         *index.Registry
	embedder        QueryEmbedder
	minScore        float64
	candidateFactor int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops chunk matches below score. Default is 0.
func WithMinScore(score float64) Option {
	return func(s *Searcher) error {
		s.minScore = score
		return nil
	}
}

// WithCandidateFactor sets how many chunk candidates are fetched per
// requested hit. Default is DefaultCandidateFactor.
func WithCandidateFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			factor = 1
		}
		s.candidateFactor = factor
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	news storage.NewsRepository,
	indexes *index.Registry,
	embedder QueryEmbedder,
	opts ...Option,
) (*Searcher, error) {
	if news == nil {
		return nil, ErrNewsRepositoryRequired
	}
	if indexes == nil {
		return nil, ErrIndexRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		news:            news,
		indexes:         indexes,
		embedder:        embedder,
		candidateFactor: DefaultCandidateFactor,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "retrieval")

	return s, nil
}

// FindRelevant returns up to maxHits records of the session related to the
// query, ranked by relevance score.
func (s *Searcher) FindRelevant(ctx context.Context, session, query string, maxHits int) ([]*Hit, error) {
	return s.FindRelevantWithMonitor(ctx, session, query, maxHits, nil)
}

// FindRelevantWithMonitor is FindRelevant with callbacks at each step.
//
// Scoring: a record found both semantically and through its keywords
// scores 1.5x its best chunk similarity, keyword-only records score 1.2,
// and semantic-only records score their similarity. Records containing
// every query word get a further 0.3.
func (s *Searcher) FindRelevantWithMonitor(ctx context.Context, session, query string, maxHits int, monitor Monitor) ([]*Hit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := core.ValidateSession(session); err != nil {
		return nil, err
	}
	if maxHits < 1 {
		return []*Hit{}, nil
	}

	monitor.Start(session, query)

	// 1. Semantic search over the session's chunks
	chunks, err := s.semanticMatches(ctx, session, query, maxHits)
	if err != nil {
		return nil, err
	}
	monitor.AfterSemanticSearch(chunks)

	semantic := make(map[core.ID][]core.Match)
	for _, m := range chunks {
		id, ok := sourceID(m)
		if !ok {
			s.logger.Debug("chunk without source", "chunk", m.ID)
			continue
		}
		semantic[id] = append(semantic[id], m)
	}

	// 2. Keyword search over the session's records
	queryWords := tokenizeAndFilter(query)
	keyword, err := s.keywordMatches(ctx, session, wordSet(queryWords))
	if err != nil {
		return nil, err
	}
	monitor.AfterKeywordSearch(keyword)

	keywordSet := make(map[core.ID]bool, len(keyword))
	for _, id := range keyword {
		keywordSet[id] = true
	}

	// 3. Retrieve the records
	ids := make([]core.ID, 0, len(semantic)+len(keyword))
	for id := range semantic {
		ids = append(ids, id)
	}
	for _, id := range keyword {
		if _, ok := semantic[id]; !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		monitor.Finish(nil)
		return []*Hit{}, nil
	}
	slices.Sort(ids)

	records := make([]*core.NewsRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.news.GetNews(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// vectors can briefly outlive a swept record
				s.logger.Debug("matched record no longer stored", "id", id)
				continue
			}
			s.logger.Error("error retrieving news record", "id", id, "err", err)
			return nil, err
		}
		records = append(records, record)
	}
	monitor.AfterRecordRetrieval(records)

	// 4. Score
	hits := make([]*Hit, 0, len(records))
	for _, record := range records {
		matches, inSemantic := semantic[record.Id]
		inKeyword := keywordSet[record.Id]

		hit := &Hit{Record: record, Chunks: matches}
		switch {
		case inSemantic && inKeyword:
			hit.Score = 1.5 * hit.Similarity()
			monitor.SemanticAndKeywordHit(record)
		case inKeyword:
			hit.Score = 1.2
			monitor.KeywordHit(record)
		default:
			hit.Score = hit.Similarity()
			monitor.SemanticHit(record)
		}

		if containsAllQueryWords(record.Title+" "+record.Content, queryWords) {
			hit.Score += 0.3
		}
		hits = append(hits, hit)
	}

	// Sort by score descending, newer articles first on ties
	slices.SortStableFunc(hits, func(a, b *Hit) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return b.Record.Date.Compare(a.Record.Date)
	})
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	monitor.Finish(hits)

	return hits, nil
}

func (s *Searcher) semanticMatches(ctx context.Context, session, query string, maxHits int) ([]core.Match, error) {
	idx, err := s.indexes.ForSession(session)
	if err != nil {
		return nil, err
	}
	dim, err := idx.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		// nothing embedded yet for this session
		return nil, nil
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, core.NewCollaboratorError("embedding", err)
	}

	matches, err := idx.QuerySimilar(ctx, vector, maxHits*s.candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "session", session, "err", err)
		return nil, err
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= s.minScore {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

func (s *Searcher) keywordMatches(ctx context.Context, session string, query map[string]bool) ([]core.ID, error) {
	if len(query) == 0 {
		return nil, nil
	}
	records, err := s.news.FindNews(ctx, storage.NewsFilter{Session: session})
	if err != nil {
		s.logger.Error("error listing session records", "session", session, "err", err)
		return nil, err
	}

	var ids []core.ID
	for _, r := range records {
		if keywordMatches(r.Keywords, query) {
			ids = append(ids, r.Id)
		}
	}
	return ids, nil
}

func sourceID(m core.Match) (core.ID, bool) {
	raw, ok := m.Metadata[core.MetadataSourceID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return core.ID(id), true
}
