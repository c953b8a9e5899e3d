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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/newsdesk"
	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/ingestion"
	"github.com/poiesic/newsdesk/news"
	"github.com/poiesic/newsdesk/news/newsapi"
	"github.com/poiesic/newsdesk/pipeline"
	"github.com/poiesic/newsdesk/vectorize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "newsdesk",
		Usage: "News ingestion, retrieval and analysis pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Search, store, vectorize and analyze news for a session",
				Action: runCommand,
				Flags: append(append([]cli.Flag{
					dbFlag(),
					sessionFlag(),
					&cli.StringSliceFlag{
						Name:     "keyword",
						Aliases:  []string{"k"},
						Usage:    "Search keyword (repeatable)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "query",
						Usage: "Question to analyze (defaults to the keywords)",
					},
					&cli.StringFlag{
						Name:  "articles",
						Usage: "Search a JSON file of articles instead of NewsAPI",
					},
					&cli.StringFlag{
						Name:    "newsapi-key",
						Usage:   "NewsAPI key",
						EnvVars: []string{"NEWSAPI_KEY"},
					},
					&cli.StringFlag{
						Name:  "newsapi-endpoint",
						Usage: "NewsAPI-compatible search endpoint",
						Value: newsapi.DefaultEndpoint,
					},
					&cli.IntFlag{
						Name:  "num-results",
						Usage: "Maximum articles to search for",
						Value: pipeline.DefaultNumResults,
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Article language (ISO 639-1)",
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "Article region (ISO 3166-1)",
					},
					&cli.DurationFlag{
						Name:  "recency",
						Usage: "Only search articles published within this window",
					},
					&cli.StringSliceFlag{
						Name:  "stage",
						Usage: "Enable only the named stages (repeatable; default all)",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Records retrieved for analysis",
						Value: pipeline.DefaultTopK,
					},
					&cli.IntFlag{
						Name:  "card-concurrency",
						Usage: "Concurrent card generations",
						Value: pipeline.DefaultCardConcurrency,
					},
					&cli.IntFlag{
						Name:  "expire-days",
						Usage: "Days newly stored records are kept",
						Value: ingestion.DefaultExpireDays,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Bound the whole run",
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write pipeline metrics in Prometheus text format to this file",
					},
				}, aiFlags()...), chunkFlags()...),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild a session's vector index with the current embedding model",
				Action: reindexCommand,
				Flags: append(append([]cli.Flag{
					dbFlag(),
					sessionFlag(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: vectorize.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
				}, aiFlags()...), chunkFlags()...),
			},
			{
				Name:      "search",
				Usage:     "Find stored records relevant to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append([]cli.Flag{
					dbFlag(),
					sessionFlag(),
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum records to return",
						Value: pipeline.DefaultTopK,
					},
				}, aiFlags()...),
			},
			{
				Name:   "sweep",
				Usage:  "Delete expired records from every session",
				Action: sweepCommand,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "sweeper",
				Usage:  "Sweep expired records on a schedule until interrupted",
				Action: sweeperCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Interval (6h) or cron expression (0 3 * * *)",
						Value: "6h",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show statistics for a session",
				Action: statsCommand,
				Flags: []cli.Flag{
					dbFlag(),
					sessionFlag(),
					&cli.IntFlag{
						Name:  "top",
						Usage: "Number of top keywords to show",
						Value: 10,
					},
				},
			},
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func sessionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "session",
		Aliases:  []string{"s"},
		Usage:    "Session identifier",
		Required: true,
	}
}

func aiFlags() []cli.Flag {
	defaults := ai.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "OpenAI-compatible service host URL",
			Value: defaults.ChatHost,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL (defaults to host)",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: defaults.EmbeddingModel,
		},
		&cli.StringFlag{
			Name:  "chat-model",
			Usage: "Language model name",
			Value: defaults.ChatModel,
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "API token",
			Value:   defaults.Token,
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum retry attempts for failed embedding calls",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 1 * time.Second,
		},
	}
}

func chunkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Maximum tokens per chunk",
			Value: newsdesk.DefaultChunkSize,
		},
		&cli.IntFlag{
			Name:  "chunk-overlap",
			Usage: "Tokens of overlap between consecutive chunks",
			Value: newsdesk.DefaultChunkOverlap,
		},
		&cli.BoolFlag{
			Name:  "exact-tokens",
			Usage: "Count tokens with tiktoken instead of approximating",
		},
	}
}

func aiConfig(c *cli.Context) (*ai.Config, error) {
	host := c.String("host")
	embeddingHost := c.String("embedding-host")
	if embeddingHost == "" {
		embeddingHost = host
	}
	cfg := ai.NewConfig(
		ai.WithChatHost(host),
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatModel(c.String("chat-model")),
		ai.WithToken(c.String("token")),
	)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return cfg, nil
}

// openDesk opens the database with whichever AI and chunking flags the
// command defines. Commands without them get the defaults.
func openDesk(c *cli.Context, opts ...newsdesk.Option) (*newsdesk.Desk, error) {
	if c.String("host") != "" {
		cfg, err := aiConfig(c)
		if err != nil {
			return nil, err
		}
		opts = append(opts, newsdesk.WithAIConfig(cfg))
	}
	if c.Int("chunk-size") > 0 {
		opts = append(opts, newsdesk.WithChunking(c.Int("chunk-size"), c.Int("chunk-overlap")))
	}
	if c.Bool("exact-tokens") {
		opts = append(opts, newsdesk.WithExactTokens())
	}
	switch retries := c.Int("max-retries"); {
	case retries < 0:
		return nil, fmt.Errorf("max-retries must be 0 or more, got %d", retries)
	case retries > 0:
		opts = append(opts, newsdesk.WithEmbeddingRetry(uint64(retries), c.Duration("retry-delay")))
	}

	d, err := newsdesk.Open(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return d, nil
}

// searchProvider picks the article file when given, NewsAPI otherwise.
func searchProvider(c *cli.Context) (news.Provider, error) {
	if path := c.String("articles"); path != "" {
		return news.LoadStatic(path)
	}
	if key := c.String("newsapi-key"); key != "" {
		return newsapi.New(key, newsapi.WithEndpoint(c.String("newsapi-endpoint")))
	}
	return nil, errors.New("one of --articles or --newsapi-key is required")
}

func buildRequest(c *cli.Context) (pipeline.Request, error) {
	req := pipeline.Request{
		Session:    c.String("session"),
		Keywords:   c.StringSlice("keyword"),
		Query:      c.String("query"),
		NumResults: c.Int("num-results"),
		Language:   c.String("language"),
		Region:     c.String("region"),
		Recency:    c.Duration("recency"),
		TopK:       c.Int("top-k"),
		Timeout:    c.Duration("timeout"),
	}
	for _, name := range c.StringSlice("stage") {
		stage, err := pipeline.ParseStage(strings.TrimSpace(name))
		if err != nil {
			return req, fmt.Errorf("stage %q: %w", name, err)
		}
		req.Stages = append(req.Stages, stage)
	}
	return req, req.Validate()
}

func runCommand(c *cli.Context) error {
	req, err := buildRequest(c)
	if err != nil {
		return err
	}
	provider, err := searchProvider(c)
	if err != nil {
		return err
	}

	opts := []newsdesk.Option{
		newsdesk.WithSearchProvider(provider),
		newsdesk.WithCardConcurrency(c.Int("card-concurrency")),
		newsdesk.WithExpireDays(c.Int("expire-days")),
	}
	var reg *prometheus.Registry
	if c.String("metrics-file") != "" {
		reg = prometheus.NewRegistry()
		metrics, err := pipeline.NewMetricsMonitor(reg)
		if err != nil {
			return err
		}
		opts = append(opts, newsdesk.WithMonitor(metrics))
	}

	d, err := openDesk(c, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := d.Run(ctx, req)
	if err != nil {
		return err
	}
	printResponse(c.App.Writer, resp)

	if reg != nil {
		if err := prometheus.WriteToTextfile(c.String("metrics-file"), reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if !resp.Success {
		return errors.New("pipeline run did not succeed")
	}
	return nil
}

func printResponse(w io.Writer, resp *pipeline.Response) {
	fmt.Fprintf(w, "Run %s (session %s)\n", resp.RunID, resp.Session)
	fmt.Fprintf(w, "Query: %s\n", resp.Query)
	fmt.Fprintf(w, "Success: %t  found: %d  processed: %d  vectors: %d  cards: %d  elapsed: %s\n\n",
		resp.Success, resp.TotalFound, resp.ProcessedCount, resp.VectorsCreated, resp.CardsGenerated,
		resp.Elapsed.Round(time.Millisecond))

	for _, sr := range resp.StageResults {
		fmt.Fprintf(w, "  %-18s %-9s %s\n", sr.Stage, sr.Status, sr.Elapsed.Round(time.Millisecond))
	}
	for _, e := range resp.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warn := range resp.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}

	if resp.Analysis != "" {
		fmt.Fprintf(w, "\nAnalysis:\n%s\n", resp.Analysis)
		for i, s := range resp.Sources {
			fmt.Fprintf(w, "  [%d] %s (%s) [%0.3f]\n", i+1, s.Title, s.URL, s.Score)
		}
	}
	if len(resp.Cards) > 0 {
		fmt.Fprintln(w, "\nCards:")
		for _, card := range resp.Cards {
			fmt.Fprintf(w, "* %s\n  %s\n", card.Title, card.Summary)
		}
	}
	if s := resp.Sentiment; s != nil {
		fmt.Fprintf(w, "\nSentiment: %s (%+.2f) %s\n", s.Overall, s.Score, s.Summary)
	}
}

func reindexCommand(c *cli.Context) error {
	config := &vectorize.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	d, err := openDesk(c)
	if err != nil {
		return err
	}
	defer d.Close()

	reindexer, err := d.NewReindexer(config, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := reindexer.Run(ctx, c.String("session")); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	d, err := openDesk(c)
	if err != nil {
		return err
	}
	defer d.Close()

	hits, err := d.Searcher().FindRelevant(context.Background(), c.String("session"), query, c.Int("max-hits"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Found %d hits\n", len(hits))
	for i, hit := range hits {
		fmt.Fprintf(w, "%d: '%s' (%d)[%0.3f]\n", i, hit.Record.Title, hit.Record.Id, hit.Score)
	}
	return nil
}

func sweepCommand(c *cli.Context) error {
	d, err := openDesk(c)
	if err != nil {
		return err
	}
	defer d.Close()

	results, err := d.Ingestion().SweepAll(context.Background())
	printSweep(c.App.Writer, results)
	return err
}

func printSweep(w io.Writer, results []*ingestion.SweepResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No sessions to sweep")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s: deleted %d", r.Session, r.Deleted)
		if len(r.Keywords) > 0 {
			fmt.Fprintf(w, " (keywords: %s)", strings.Join(r.Keywords, ", "))
		}
		fmt.Fprintln(w)
	}
}

func sweeperCommand(c *cli.Context) error {
	schedule, err := ingestion.ParseSchedule(c.String("schedule"))
	if err != nil {
		return err
	}

	d, err := openDesk(c)
	if err != nil {
		return err
	}
	defer d.Close()

	sweeper, err := d.NewSweeper(schedule, ingestion.OnSweep(func(results []*ingestion.SweepResult, _ error) {
		printSweep(c.App.Writer, results)
	}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sweeper.Run(ctx)
}

func statsCommand(c *cli.Context) error {
	d, err := openDesk(c)
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.Ingestion().Stats(context.Background(), c.String("session"), c.Int("top"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Session: %s\n", stats.Session)
	fmt.Fprintf(w, "Records: %d (today: %d)\n", stats.Total, stats.Today)
	if !stats.MostRecent.IsZero() {
		fmt.Fprintf(w, "Most recent: %s\n", stats.MostRecent.Format("2006-01-02 15:04 MST"))
	}
	for _, k := range stats.TopKeywords {
		fmt.Fprintf(w, "  %-20s %d\n", k.Keyword, k.Count)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
