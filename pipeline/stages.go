package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/ingestion"
	"github.com/poiesic/newsdesk/news"
	"github.com/poiesic/newsdesk/vectorize"
	"golang.org/x/sync/errgroup"
)

const languageModel = "language model"

func (o *Orchestrator) search(ctx context.Context, r *run) (Payload, error) {
	if o.c.Search == nil {
		return nil, ErrNotConfigured
	}
	articles, err := o.c.Search.Search(ctx, news.Query{
		Keywords:   r.req.Keywords,
		NumResults: r.req.NumResults,
		Language:   r.req.Language,
		Region:     r.req.Region,
		Recency:    r.req.Recency,
	})
	if err != nil {
		return nil, core.NewCollaboratorError("search", err)
	}
	if len(articles) > r.req.NumResults {
		articles = articles[:r.req.NumResults]
	}
	if len(articles) == 0 {
		r.warn("%s: no articles found", StageSearch)
	}

	r.articles = articles
	r.resp.TotalFound = len(articles)
	return &SearchPayload{Articles: articles}, nil
}

func (o *Orchestrator) store(ctx context.Context, r *run) (Payload, error) {
	if o.c.Ingestion == nil {
		return nil, ErrNotConfigured
	}
	if len(r.articles) == 0 {
		return &StorePayload{}, nil
	}

	res, err := o.c.Ingestion.Ingest(ctx, ingestion.IngestRequest{
		Session:  r.req.Session,
		Articles: r.articles,
		Keywords: r.req.Keywords,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range res.Errors {
		r.warn("%s: %v", StageStore, e)
	}

	r.records = res.Records
	r.resp.ProcessedCount = res.Processed()
	return &StorePayload{
		Records:  res.Records,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Skipped:  res.Skipped,
	}, nil
}

func (o *Orchestrator) vectorize(ctx context.Context, r *run) (Payload, error) {
	if o.c.Vectorizer == nil {
		return nil, ErrNotConfigured
	}
	res, err := o.c.Vectorizer.Process(ctx, r.req.Session, vectorize.Pending(r.records))
	if err != nil {
		return nil, err
	}
	r.resp.VectorsCreated = res.Vectors
	return &VectorizePayload{Records: res.Records, Chunks: res.Chunks, Vectors: res.Vectors}, nil
}

func (o *Orchestrator) analyze(ctx context.Context, r *run) (Payload, error) {
	if o.c.Retriever == nil || o.c.Model == nil {
		return nil, ErrNotConfigured
	}

	hits, err := o.c.Retriever.FindRelevant(ctx, r.req.Session, r.req.Query, r.req.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		r.warn("%s: no stored context matches the query", StageAnalyze)
		return &AnalyzePayload{}, nil
	}

	var history []ai.Message
	if o.c.Memory != nil {
		entries, err := o.c.Memory.RecentMemory(ctx, r.req.Session, r.req.HistoryLimit)
		if err != nil {
			r.logger.Warn("error loading session memory, analyzing without history", "err", err)
		} else {
			history = historyMessages(entries)
		}
	}

	gen, err := o.c.Model.Generate(ctx, ai.GenerateRequest{
		System:      analysisSystemPrompt,
		History:     history,
		Prompt:      buildAnalysisPrompt(r.req.Query, hits),
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return nil, core.NewCollaboratorError(languageModel, err)
	}
	analysis := strings.TrimSpace(gen.Content)
	if analysis == "" {
		return nil, core.NewCollaboratorError(languageModel, ErrEmptyGeneration)
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, Source{
			RecordID: h.Record.Id,
			Title:    h.Record.Title,
			URL:      h.Record.URL,
			Score:    h.Score,
		})
	}

	r.resp.Analysis = analysis
	r.resp.Sources = sources
	return &AnalyzePayload{
		Analysis:   analysis,
		Sources:    sources,
		History:    len(history) / 2,
		TokensUsed: gen.TokensUsed,
	}, nil
}

// cards generates one card per stored record, at most cardConcurrency at a
// time. Individual failures become warnings; the stage fails only when no
// card could be generated.
func (o *Orchestrator) cards(ctx context.Context, r *run) (Payload, error) {
	if o.c.Model == nil {
		return nil, ErrNotConfigured
	}
	if len(r.records) == 0 {
		return &CardPayload{}, nil
	}

	cards := make([]*Card, len(r.records))
	errs := make([]error, len(r.records))

	var g errgroup.Group
	g.SetLimit(o.cardConcurrency)
	for i, record := range r.records {
		g.Go(func() error {
			cards[i], errs[i] = o.card(ctx, record)
			return nil
		})
	}
	g.Wait()

	payload := &CardPayload{Cards: make([]Card, 0, len(cards))}
	for i, card := range cards {
		if errs[i] != nil {
			payload.Failed++
			continue
		}
		payload.Cards = append(payload.Cards, *card)
	}
	if payload.Failed == len(r.records) {
		return payload, core.NewCollaboratorError(languageModel, errors.Join(errs...))
	}
	for i, err := range errs {
		if err != nil {
			r.warn("%s: record %d: %v", StageCards, r.records[i].Id, err)
		}
	}

	r.resp.Cards = payload.Cards
	r.resp.CardsGenerated = len(payload.Cards)
	return payload, nil
}

func (o *Orchestrator) card(ctx context.Context, record *core.NewsRecord) (*Card, error) {
	gen, err := o.c.Model.Generate(ctx, ai.GenerateRequest{
		System:      cardSystemPrompt,
		Prompt:      buildCardPrompt(record),
		Temperature: cardTemperature,
		MaxTokens:   cardMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(gen.Content)
	if summary == "" {
		return nil, ErrEmptyGeneration
	}
	return &Card{
		RecordID: record.Id,
		Title:    record.Title,
		URL:      record.URL,
		Source:   record.Source,
		Date:     record.Date,
		Summary:  summary,
		Keywords: record.Keywords,
	}, nil
}

// sentimentResponse is the JSON shape the sentiment prompt asks for.
// Article indexes are 1-based positions in the prompt.
type sentimentResponse struct {
	Overall  string  `json:"overall"`
	Score    float64 `json:"score"`
	Summary  string  `json:"summary"`
	Articles []struct {
		Index     int     `json:"index"`
		Sentiment string  `json:"sentiment"`
		Score     float64 `json:"score"`
	} `json:"articles"`
}

func (o *Orchestrator) sentiment(ctx context.Context, r *run) (Payload, error) {
	if o.c.Model == nil {
		return nil, ErrNotConfigured
	}
	if len(r.records) == 0 {
		return &SentimentPayload{}, nil
	}

	gen, err := o.c.Model.Generate(ctx, ai.GenerateRequest{
		System:      sentimentSystemPrompt,
		Prompt:      buildSentimentPrompt(r.records),
		Temperature: sentimentTemperature,
		MaxTokens:   sentimentMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, core.NewCollaboratorError(languageModel, err)
	}
	if strings.TrimSpace(gen.Content) == "" {
		return nil, core.NewCollaboratorError(languageModel, ErrEmptyGeneration)
	}

	var raw sentimentResponse
	if err := ai.DecodeJSON(gen.Content, &raw); err != nil {
		return nil, core.NewCollaboratorError(languageModel, err)
	}

	s := &Sentiment{
		Overall: normalizeSentiment(raw.Overall),
		Score:   clampScore(raw.Score),
		Summary: strings.TrimSpace(raw.Summary),
	}
	seen := make(map[int]bool, len(raw.Articles))
	for _, a := range raw.Articles {
		if a.Index < 1 || a.Index > len(r.records) || seen[a.Index] {
			continue
		}
		seen[a.Index] = true
		s.Articles = append(s.Articles, ArticleSentiment{
			RecordID: r.records[a.Index-1].Id,
			Label:    normalizeSentiment(a.Sentiment),
			Score:    clampScore(a.Score),
		})
	}

	r.resp.Sentiment = s
	return &SentimentPayload{Sentiment: s}, nil
}

// normalizeSentiment maps a model label onto the known labels. Anything
// unrecognized is neutral.
func normalizeSentiment(label string) string {
	switch l := strings.ToLower(strings.TrimSpace(label)); l {
	case SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed:
		return l
	}
	return SentimentNeutral
}

// clampScore bounds a sentiment score to [-1, 1].
func clampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(-1, math.Min(1, score))
}

// updateMemory appends a summary of the run to the session memory and
// prunes it to the request's MemoryLimit.
func (o *Orchestrator) updateMemory(ctx context.Context, r *run) (Payload, error) {
	if o.c.Memory == nil {
		return nil, ErrNotConfigured
	}

	entry := &core.MemoryEntry{
		Session:  r.req.Session,
		Query:    r.req.Query,
		Summary:  memorySummary(r),
		Keywords: r.req.Keywords,
	}
	if err := o.c.Memory.AppendMemory(ctx, entry); err != nil {
		return nil, core.NewCollaboratorError("store", err)
	}
	pruned, err := o.c.Memory.PruneMemory(ctx, r.req.Session, r.req.MemoryLimit)
	if err != nil {
		return &MemoryPayload{Entry: entry}, core.NewCollaboratorError("store", err)
	}
	return &MemoryPayload{Entry: entry, Pruned: pruned}, nil
}

// memorySummary is the analysis when there is one, otherwise a list of the
// stored headlines.
func memorySummary(r *run) string {
	if r.resp.Analysis != "" {
		return r.resp.Analysis
	}
	if len(r.records) == 0 {
		return fmt.Sprintf("No articles found for %q.", r.req.Query)
	}
	titles := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		titles = append(titles, rec.Title)
	}
	return fmt.Sprintf("Found %d articles: %s", len(r.records), strings.Join(titles, "; "))
}
