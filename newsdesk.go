// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package newsdesk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/ai/openai"
	"github.com/poiesic/newsdesk/chunker"
	"github.com/poiesic/newsdesk/embedding"
	"github.com/poiesic/newsdesk/index"
	"github.com/poiesic/newsdesk/ingestion"
	"github.com/poiesic/newsdesk/news"
	"github.com/poiesic/newsdesk/pipeline"
	"github.com/poiesic/newsdesk/retrieval"
	"github.com/poiesic/newsdesk/storage"
	"github.com/poiesic/newsdesk/storage/badger"
	"github.com/poiesic/newsdesk/vectorize"
)

// Chunking defaults, in tokens.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 100
)

// Desk wires the store, the AI provider and every service of a newsdesk
// process. Nothing is global: each Desk owns its own store and indexes.
type Desk struct {
	store     *badger.Store
	indexes   *index.Registry
	provider  ai.AIProvider
	gateway   *embedding.Gateway
	ingest    *ingestion.Service
	processor *vectorize.BatchProcessor
	searcher  *retrieval.Searcher
	pipeline  *pipeline.Orchestrator
	logger    *slog.Logger
}

// Option configures a Desk.
type Option func(*options)

type options struct {
	inMemory        bool
	aiConfig        *ai.Config
	provider        ai.AIProvider
	search          news.Provider
	chunkSize       int
	chunkOverlap    int
	exactTokens     bool
	embedBatchSize  int
	embedRetries    uint64
	embedRetryDelay time.Duration
	expireDays      int
	cardConcurrency int
	monitor         pipeline.Monitor
	logger          *slog.Logger
}

// InMemory keeps everything in memory; the path passed to Open is ignored.
func InMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithAIConfig configures the OpenAI-compatible provider.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = config
	}
}

// WithAIProvider uses provider instead of building one from the AI config.
// The Desk closes it on Close.
func WithAIProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithSearchProvider sets the news search provider. Without one the
// search stage fails as not configured.
func WithSearchProvider(p news.Provider) Option {
	return func(o *options) {
		o.search = p
	}
}

// WithChunking sets the chunk size and overlap in tokens.
func WithChunking(size, overlap int) Option {
	return func(o *options) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithExactTokens counts tokens with tiktoken instead of the approximate
// counter.
func WithExactTokens() Option {
	return func(o *options) {
		o.exactTokens = true
	}
}

// WithEmbeddingBatchSize sets the provider sub-batch size.
func WithEmbeddingBatchSize(n int) Option {
	return func(o *options) {
		o.embedBatchSize = n
	}
}

// WithEmbeddingRetry retries failed provider sub-batches with exponential
// backoff starting at baseDelay. Default is a single attempt.
func WithEmbeddingRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(o *options) {
		o.embedRetries = maxRetries
		o.embedRetryDelay = baseDelay
	}
}

// WithExpireDays sets the retention of newly stored records.
func WithExpireDays(days int) Option {
	return func(o *options) {
		o.expireDays = days
	}
}

// WithCardConcurrency bounds concurrent card generations.
func WithCardConcurrency(n int) Option {
	return func(o *options) {
		o.cardConcurrency = n
	}
}

// WithMonitor observes pipeline runs.
func WithMonitor(m pipeline.Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open opens (or creates) the store at path and builds every service on
// top of it.
func Open(path string, opts ...Option) (*Desk, error) {
	o := &options{
		aiConfig:     ai.DefaultConfig(),
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c, err := newChunker(o)
	if err != nil {
		return nil, err
	}

	var store *badger.Store
	if o.inMemory {
		store, err = badger.NewMemoryStore()
	} else {
		store, err = badger.OpenStore(path, false)
	}
	if err != nil {
		return nil, err
	}

	d := &Desk{
		store:    store,
		indexes:  index.NewRegistry(index.PersistentFactory(store.Vectors)),
		provider: o.provider,
		logger:   o.logger.With("component", "newsdesk"),
	}
	if d.provider == nil {
		if d.provider, err = openai.NewProvider(o.aiConfig); err != nil {
			store.Close()
			return nil, err
		}
	}

	if err := d.build(o, c); err != nil {
		return nil, errors.Join(err, d.Close())
	}
	return d, nil
}

func newChunker(o *options) (*chunker.Chunker, error) {
	var opts []chunker.Option
	if o.exactTokens {
		counter, err := chunker.NewTiktokenCounter(chunker.DefaultEncoding)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chunker.WithTokenCounter(counter))
	}
	return chunker.New(o.chunkSize, o.chunkOverlap, opts...)
}

func (d *Desk) build(o *options, c *chunker.Chunker) error {
	var err error

	gatewayOpts := []embedding.Option{embedding.WithLogger(o.logger)}
	if o.embedBatchSize > 0 {
		gatewayOpts = append(gatewayOpts, embedding.WithBatchSize(o.embedBatchSize))
	}
	if o.embedRetries > 0 {
		gatewayOpts = append(gatewayOpts, embedding.WithRetry(o.embedRetries, o.embedRetryDelay))
	}
	if d.gateway, err = embedding.New(d.provider.Embedder(), gatewayOpts...); err != nil {
		return err
	}

	ingestOpts := []ingestion.Option{ingestion.WithIndexes(d.indexes), ingestion.WithLogger(o.logger)}
	if o.expireDays > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithExpireDays(o.expireDays))
	}
	if d.ingest, err = ingestion.NewService(d.store.News, ingestOpts...); err != nil {
		return err
	}

	if d.processor, err = vectorize.NewBatchProcessor(d.store.News, d.indexes, c, d.gateway,
		vectorize.WithLogger(o.logger)); err != nil {
		return err
	}

	if d.searcher, err = retrieval.NewSearcher(d.store.News, d.indexes, d.gateway,
		retrieval.WithLogger(o.logger)); err != nil {
		return err
	}

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(o.logger), pipeline.WithMonitor(o.monitor)}
	if o.cardConcurrency > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithCardConcurrency(o.cardConcurrency))
	}
	d.pipeline, err = pipeline.New(pipeline.Collaborators{
		Search:     o.search,
		Ingestion:  d.ingest,
		Vectorizer: d.processor,
		Retriever:  d.searcher,
		Model:      d.provider.LanguageModel(),
		Memory:     d.store.Memory,
	}, pipelineOpts...)
	return err
}

// Close releases the embedding pool, the AI provider and the store.
func (d *Desk) Close() error {
	if d.gateway != nil {
		d.gateway.Release()
	}

	if d.provider != nil {
		if err := d.provider.Close(); err != nil {
			d.logger.Error("error closing AI provider", "err", err)
		}
	}

	if err := d.store.Close(); err != nil {
		d.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Run executes one pipeline run.
func (d *Desk) Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	return d.pipeline.Run(ctx, req)
}

// Ingestion returns the ingestion service, which also sweeps and reports
// session statistics.
func (d *Desk) Ingestion() *ingestion.Service {
	return d.ingest
}

// Searcher returns the retrieval searcher.
func (d *Desk) Searcher() *retrieval.Searcher {
	return d.searcher
}

// NewsRepository returns the document store.
func (d *Desk) NewsRepository() storage.NewsRepository {
	return d.store.News
}

// MemoryRepository returns the session memory store.
func (d *Desk) MemoryRepository() storage.MemoryRepository {
	return d.store.Memory
}

// NewSweeper creates an expiry sweeper over every session.
func (d *Desk) NewSweeper(schedule ingestion.Schedule, opts ...ingestion.SweeperOption) (*ingestion.Sweeper, error) {
	opts = append([]ingestion.SweeperOption{ingestion.WithSweeperLogger(d.logger)}, opts...)
	return ingestion.NewSweeper(d.ingest, schedule, opts...)
}

// NewReindexer creates a reindexer that rebuilds session indexes with the
// current embedding model, reporting progress to w.
func (d *Desk) NewReindexer(config *vectorize.Config, w io.Writer) (*vectorize.Reindexer, error) {
	return vectorize.NewReindexer(d.store.News, d.store.Checkpoints, d.indexes, d.processor, config, w, d.logger)
}
