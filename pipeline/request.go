package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/newsdesk/core"
)

// Request defaults.
const (
	DefaultNumResults   = 10
	DefaultTopK         = 5
	DefaultHistoryLimit = 5
	DefaultMemoryLimit  = 20
)

// Request describes one pipeline run.
type Request struct {
	Session  string
	Keywords []string
	// Query is the question analyzed against the retrieved context.
	// Defaults to the keywords joined by spaces.
	Query string

	NumResults int
	Language   string
	Region     string
	Recency    time.Duration

	// Stages enables a subset of stages; nil or empty enables all.
	Stages []Stage

	// TopK is the number of records retrieved for analysis.
	TopK int
	// HistoryLimit is how many session memory entries are sent to the
	// language model as history.
	HistoryLimit int
	// MemoryLimit is how many memory entries a session keeps.
	MemoryLimit int

	// Timeout bounds the whole run; 0 means no limit beyond the caller's
	// context.
	Timeout time.Duration
}

// Validate checks the request before any stage runs.
func (r *Request) Validate() error {
	if err := core.ValidateSession(r.Session); err != nil {
		return err
	}
	if err := core.ValidateKeywords(r.Keywords); err != nil {
		return err
	}
	for _, s := range r.Stages {
		if _, err := ParseStage(string(s)); err != nil {
			return err
		}
	}
	if r.NumResults < 0 || r.TopK < 0 || r.HistoryLimit < 0 || r.MemoryLimit < 0 || r.Timeout < 0 {
		return &core.ValidationError{Field: "limits", Reason: errNegativeLimit}
	}
	return nil
}

// withDefaults returns a copy with zero limits replaced by the defaults.
func (r Request) withDefaults() Request {
	r.Keywords = core.NormalizeKeywords(r.Keywords)
	r.Session = strings.TrimSpace(r.Session)
	if strings.TrimSpace(r.Query) == "" {
		r.Query = strings.Join(r.Keywords, " ")
	}
	if r.NumResults == 0 {
		r.NumResults = DefaultNumResults
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.HistoryLimit == 0 {
		r.HistoryLimit = DefaultHistoryLimit
	}
	if r.MemoryLimit == 0 {
		r.MemoryLimit = DefaultMemoryLimit
	}
	return r
}

// Enabled reports whether the request runs stage.
func (r *Request) Enabled(stage Stage) bool {
	return len(r.Stages) == 0 || slices.Contains(r.Stages, stage)
}

// Response aggregates a finished run.
type Response struct {
	RunID   uuid.UUID
	Session string
	Query   string

	// Success is true when the search found articles and storing them did
	// not fail. A disabled store stage counts as a warning only.
	Success bool

	TotalFound     int
	ProcessedCount int
	VectorsCreated int
	CardsGenerated int

	// StageResults holds one result per stage, in execution order.
	StageResults []*StageResult
	Warnings     []string
	Errors       []string

	Analysis  string
	Sources   []Source
	Cards     []Card
	Sentiment *Sentiment

	Elapsed time.Duration
}

// Result returns the result of stage, nil if the stage is unknown.
func (r *Response) Result(stage Stage) *StageResult {
	for _, sr := range r.StageResults {
		if sr.Stage == stage {
			return sr
		}
	}
	return nil
}
