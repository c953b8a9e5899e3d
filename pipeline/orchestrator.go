package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/ingestion"
	"github.com/poiesic/newsdesk/news"
	"github.com/poiesic/newsdesk/retrieval"
	"github.com/poiesic/newsdesk/storage"
	"github.com/poiesic/newsdesk/vectorize"
)

// DefaultCardConcurrency bounds concurrent card generations.
const DefaultCardConcurrency = 4

// Collaborators are the services the stages call. Any may be nil; an
// enabled stage whose collaborator is missing fails with ErrNotConfigured.
type Collaborators struct {
	Search     news.Provider
	Ingestion  *ingestion.Service
	Vectorizer *vectorize.BatchProcessor
	Retriever  *retrieval.Searcher
	Model      ai.LanguageModel
	Memory     storage.MemoryRepository
}

// Orchestrator runs the fixed sequence of pipeline stages. It holds no
// per-run state and may serve concurrent runs.
type Orchestrator struct {
	c               Collaborators
	cardConcurrency int
	monitor         Monitor
	logger          *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithCardConcurrency bounds concurrent card generations.
// Default is DefaultCardConcurrency.
func WithCardConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("card concurrency must be greater than 0: %d", n)
		}
		o.cardConcurrency = n
		return nil
	}
}

// WithMonitor observes every run.
func WithMonitor(m Monitor) Option {
	return func(o *Orchestrator) error {
		if m != nil {
			o.monitor = m
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// New creates an orchestrator over c.
func New(c Collaborators, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		c:               c,
		cardConcurrency: DefaultCardConcurrency,
		monitor:         &noopMonitor{},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "pipeline")
	return o, nil
}

// run carries one run's state from stage to stage.
type run struct {
	id     uuid.UUID
	req    Request
	resp   *Response
	logger *slog.Logger

	articles []core.RawArticle
	records  []*core.NewsRecord
}

func (r *run) warn(format string, args ...any) {
	r.resp.Warnings = append(r.resp.Warnings, fmt.Sprintf(format, args...))
}

// Run validates req and executes every enabled stage in order. Validation
// failures are returned before any stage runs; stage failures are recorded
// in the response and never returned as an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.withDefaults()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	id := uuid.New()
	r := &run{
		id:  id,
		req: req,
		resp: &Response{
			RunID:        id,
			Session:      req.Session,
			Query:        req.Query,
			StageResults: make([]*StageResult, 0, len(Stages)),
		},
		logger: o.logger.With("run", id.String(), "session", req.Session),
	}

	started := time.Now()
	r.logger.Info("pipeline run started", "keywords", req.Keywords)
	o.monitor.RunStarted(id, &r.req)

	for _, stage := range Stages {
		o.runStage(ctx, r, stage)
	}

	r.resp.Success = succeeded(r.resp)
	r.resp.Elapsed = time.Since(started)
	r.logger.Info("pipeline run finished", "success", r.resp.Success,
		"found", r.resp.TotalFound, "processed", r.resp.ProcessedCount,
		"vectors", r.resp.VectorsCreated, "cards", r.resp.CardsGenerated,
		"warnings", len(r.resp.Warnings), "elapsed", r.resp.Elapsed)
	o.monitor.RunFinished(r.resp)
	return r.resp, nil
}

// succeeded applies the run success rule: search found articles and the
// store stage did not fail.
func succeeded(resp *Response) bool {
	search := resp.Result(StageSearch)
	store := resp.Result(StageStore)
	return search != nil && search.Status == StatusSucceeded && resp.TotalFound > 0 &&
		store != nil && store.Status != StatusFailed
}

type stageFunc func(ctx context.Context, r *run) (Payload, error)

func (o *Orchestrator) stageFunc(stage Stage) stageFunc {
	switch stage {
	case StageSearch:
		return o.search
	case StageStore:
		return o.store
	case StageVectorize:
		return o.vectorize
	case StageAnalyze:
		return o.analyze
	case StageCards:
		return o.cards
	case StageSentiment:
		return o.sentiment
	case StageMemory:
		return o.updateMemory
	}
	return func(context.Context, *run) (Payload, error) {
		return nil, ErrUnknownStage
	}
}

// runStage executes one stage and records its result. A stage that is
// reached after the deadline fails without running.
func (o *Orchestrator) runStage(ctx context.Context, r *run, stage Stage) {
	result := &StageResult{Stage: stage}
	logger := r.logger.With("stage", stage)

	if !r.req.Enabled(stage) {
		result.Status = StatusSkipped
		if stage == StageStore {
			r.warn("%s: stage disabled, articles were not stored", stage)
		}
		r.resp.StageResults = append(r.resp.StageResults, result)
		o.monitor.StageFinished(r.id, result)
		return
	}

	o.monitor.StageStarted(r.id, stage)
	started := time.Now()

	var (
		payload Payload
		err     error
	)
	if err = ctx.Err(); err == nil {
		payload, err = o.stageFunc(stage)(ctx, r)
	}
	result.Elapsed = time.Since(started)
	result.Payload = payload

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ErrStageTimeout, err)
		}
		result.Status = StatusFailed
		result.Err = err
		msg := fmt.Sprintf("%s: %v", stage, err)
		if stage == StageSearch || stage == StageStore {
			r.resp.Errors = append(r.resp.Errors, msg)
		} else {
			r.resp.Warnings = append(r.resp.Warnings, msg)
		}
		logger.Error("stage failed", "elapsed", result.Elapsed, "err", err)
	} else {
		result.Status = StatusSucceeded
		logger.Debug("stage succeeded", "elapsed", result.Elapsed)
	}

	r.resp.StageResults = append(r.resp.StageResults, result)
	o.monitor.StageFinished(r.id, result)
}
