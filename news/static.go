package news

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/newsdesk/core"
)

// Static serves a fixed set of articles. An article matches a query when
// any keyword occurs in its title, content or keywords, ignoring case.
// It backs offline runs and tests.
type Static struct {
	articles []core.RawArticle
	now      func() time.Time
}

var _ Provider = (*Static)(nil)

// NewStatic creates a provider over articles.
func NewStatic(articles []core.RawArticle) *Static {
	return &Static{articles: slices.Clone(articles), now: time.Now}
}

// LoadStatic reads a JSON array of articles from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var articles []struct {
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		URL       string    `json:"url"`
		Source    string    `json:"source"`
		Published time.Time `json:"published"`
		Keywords  []string  `json:"keywords"`
	}
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	out := make([]core.RawArticle, len(articles))
	for i, a := range articles {
		out[i] = core.RawArticle{
			Title:     a.Title,
			Content:   a.Content,
			URL:       a.URL,
			Source:    a.Source,
			Published: a.Published,
			Keywords:  a.Keywords,
		}
	}
	return NewStatic(out), nil
}

// Search returns matching articles in the order they were given.
func (s *Static) Search(ctx context.Context, q Query) ([]core.RawArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}

	terms := q.Terms()
	for i, t := range terms {
		terms[i] = strings.ToLower(t)
	}

	var cutoff time.Time
	if q.Recency > 0 {
		cutoff = s.now().Add(-q.Recency)
	}

	var out []core.RawArticle
	for _, a := range s.articles {
		if q.NumResults > 0 && len(out) == q.NumResults {
			break
		}
		if !cutoff.IsZero() && !a.Published.IsZero() && a.Published.Before(cutoff) {
			continue
		}
		if !matches(a, terms) {
			continue
		}
		a.Keywords = slices.Clone(a.Keywords)
		out = append(out, a)
	}
	return out, nil
}

func matches(a core.RawArticle, terms []string) bool {
	text := strings.ToLower(a.Title + "\n" + a.Content + "\n" + strings.Join(a.Keywords, "\n"))
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
