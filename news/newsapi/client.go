package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/news"
)

const (
	// DefaultEndpoint is the NewsAPI "everything" search endpoint.
	DefaultEndpoint = "https://newsapi.org/v2/everything"

	// MaxPageSize is the largest page the API serves.
	MaxPageSize = 100

	defaultTimeout = 30 * time.Second
)

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

// Client searches a NewsAPI-compatible endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

var _ news.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) error {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid endpoint: %q", endpoint)
		}
		c.endpoint = endpoint
		return nil
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30s timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client != nil {
			c.httpClient = client
		}
		return nil
	}
}

// WithClock replaces time.Now when computing the recency window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// New creates a client authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("newsapi: api key required")
	}

	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "newsapi")
	return c, nil
}

// buildQuery quotes each keyword and ORs them together.
func buildQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = strconv.Quote(t)
	}
	return strings.Join(quoted, " OR ")
}

func (c *Client) requestURL(q news.Query, terms []string) string {
	params := url.Values{}
	params.Set("q", buildQuery(terms))
	params.Set("sortBy", "publishedAt")
	if q.NumResults > 0 {
		params.Set("pageSize", strconv.Itoa(min(q.NumResults, MaxPageSize)))
	}
	if q.Language != "" {
		params.Set("language", strings.ToLower(q.Language))
	}
	if q.Region != "" {
		params.Set("country", strings.ToLower(q.Region))
	}
	if q.Recency > 0 {
		params.Set("from", c.now().Add(-q.Recency).UTC().Format(time.RFC3339))
	}
	return c.endpoint + "?" + params.Encode()
}

// Search queries the endpoint once. The keywords of the query are attached
// to every returned article.
func (c *Client) Search(ctx context.Context, q news.Query) ([]core.RawArticle, error) {
	terms := q.Terms()
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: %w", news.ErrSearch, core.ErrEmptyKeywords)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(q, terms), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", news.ErrSearch, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", news.ErrSearch, err)
	}
	defer resp.Body.Close()

	var result response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s", news.ErrSearch, resp.Status)
		}
		return nil, fmt.Errorf("%w: decode response: %w", news.ErrSearch, err)
	}
	if resp.StatusCode != http.StatusOK || result.Status == "error" {
		return nil, fmt.Errorf("%w: %s: %s %s", news.ErrSearch, resp.Status, result.Code, result.Message)
	}

	articles := make([]core.RawArticle, 0, len(result.Articles))
	for _, a := range result.Articles {
		if q.NumResults > 0 && len(articles) == q.NumResults {
			break
		}
		if a.Title == "[Removed]" {
			continue
		}
		articles = append(articles, core.RawArticle{
			Title:     strings.TrimSpace(a.Title),
			Content:   body(a),
			URL:       a.URL,
			Source:    a.Source.Name,
			Published: a.PublishedAt,
			Keywords:  append([]string(nil), terms...),
		})
	}

	c.logger.Debug("search complete", "query", terms, "total", result.TotalResults,
		"returned", len(articles), "elapsed", time.Since(started))
	return articles, nil
}

// body prefers the longer of content and description. The API truncates
// content and appends a "[+N chars]" marker, which is dropped.
func body(a article) string {
	content := a.Content
	if i := strings.LastIndex(content, "[+"); i >= 0 && strings.HasSuffix(content, " chars]") {
		content = strings.TrimSuffix(strings.TrimSpace(content[:i]), "…")
	}
	if len(a.Description) > len(content) {
		return strings.TrimSpace(a.Description)
	}
	return strings.TrimSpace(content)
}
