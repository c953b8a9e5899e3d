package news

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/poiesic/newsdesk/core"
)

// ErrSearch wraps every failure of a search provider.
var ErrSearch = errors.New("news search failed")

// Query describes a news search.
type Query struct {
	Keywords []string
	// NumResults caps the returned articles; providers may return fewer.
	NumResults int
	// Language is an ISO 639-1 code such as "en"; empty means any.
	Language string
	// Region is an ISO 3166-1 country code such as "us"; empty means any.
	Region string
	// Recency restricts results to articles published within the window;
	// 0 means no restriction.
	Recency time.Duration
}

// Terms returns the trimmed, non-blank keywords.
func (q Query) Terms() []string {
	terms := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
	}
	return terms
}

// Provider searches an external news source.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Search returns articles matching q. Failures wrap ErrSearch.
	Search(ctx context.Context, q Query) ([]core.RawArticle, error)
}
