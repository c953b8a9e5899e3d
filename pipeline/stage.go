package pipeline

import (
	"time"

	"github.com/poiesic/newsdesk/core"
)

// Stage names a pipeline step.
type Stage string

const (
	StageSearch    Stage = "search"
	StageStore     Stage = "store"
	StageVectorize Stage = "vectorize"
	StageAnalyze   Stage = "analyze"
	StageCards     Stage = "card_generate"
	StageSentiment Stage = "sentiment_analyze"
	StageMemory    Stage = "memory_update"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageSearch,
	StageStore,
	StageVectorize,
	StageAnalyze,
	StageCards,
	StageSentiment,
	StageMemory,
}

// ParseStage maps a stage name to its Stage.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", &core.ValidationError{Field: "stages", Reason: ErrUnknownStage}
}

// Status is the outcome of one stage.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult records how a stage ended.
type StageResult struct {
	Stage   Stage
	Status  Status
	Elapsed time.Duration
	Err     error
	// Payload is nil for skipped stages and for failures that produced
	// nothing.
	Payload Payload
}

// Payload is the stage-specific output of a StageResult. The concrete
// types are the *Payload structs of this package.
type Payload interface {
	stage() Stage
}

// SearchPayload holds the articles returned by the search provider.
type SearchPayload struct {
	Articles []core.RawArticle
}

// StorePayload reports the ingestion of the searched articles.
type StorePayload struct {
	Records  []*core.NewsRecord
	Inserted int
	Updated  int
	Skipped  int
}

// VectorizePayload reports the chunks and vectors written.
type VectorizePayload struct {
	Records int
	Chunks  int
	Vectors int
}

// Source is a record cited by an analysis.
type Source struct {
	RecordID core.ID
	Title    string
	URL      string
	Score    float64
}

// AnalyzePayload holds the analysis of the query against retrieved context.
type AnalyzePayload struct {
	Analysis   string
	Sources    []Source
	History    int
	TokensUsed int
}

// Card is a short summary of one stored article.
type Card struct {
	RecordID core.ID
	Title    string
	URL      string
	Source   string
	Date     time.Time
	Summary  string
	Keywords []string
}

// CardPayload holds the generated cards in record order. Failed cards are
// left out.
type CardPayload struct {
	Cards  []Card
	Failed int
}

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// ArticleSentiment is the sentiment of one stored article.
type ArticleSentiment struct {
	RecordID core.ID
	Label    string
	Score    float64
}

// Sentiment is the overall and per-article sentiment of a run.
type Sentiment struct {
	Overall  string
	Score    float64
	Summary  string
	Articles []ArticleSentiment
}

// SentimentPayload holds the classified sentiment, nil when there was
// nothing to classify.
type SentimentPayload struct {
	Sentiment *Sentiment
}

// MemoryPayload reports the session memory update.
type MemoryPayload struct {
	Entry  *core.MemoryEntry
	Pruned int
}

func (*SearchPayload) stage() Stage    { return StageSearch }
func (*StorePayload) stage() Stage     { return StageStore }
func (*VectorizePayload) stage() Stage { return StageVectorize }
func (*AnalyzePayload) stage() Stage   { return StageAnalyze }
func (*CardPayload) stage() Stage      { return StageCards }
func (*SentimentPayload) stage() Stage { return StageSentiment }
func (*MemoryPayload) stage() Stage    { return StageMemory }
