package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/news"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `{
  "status": "ok",
  "totalResults": 3,
  "articles": [
    {
      "source": {"id": null, "name": "Wire"},
      "title": "Chip exports climb",
      "description": "Short teaser.",
      "content": "Chip exports climbed for a third month as demand held… [+1520 chars]",
      "url": "https://wire.example/chips",
      "publishedAt": "2026-03-19T08:30:00Z"
    },
    {
      "source": {"name": "Removed"},
      "title": "[Removed]",
      "url": "https://removed.example"
    },
    {
      "source": {"name": "Daily"},
      "title": "  Rates on hold ",
      "description": "The central bank kept rates unchanged and signalled patience.",
      "content": "",
      "url": "https://daily.example/rates",
      "publishedAt": "2026-03-18T12:00:00Z"
    }
  ]
}`

var fixedNow = time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New("secret",
		WithEndpoint(server.URL+"/v2/everything"),
		WithHTTPClient(server.Client()),
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("key", WithEndpoint("not a url"))
	assert.Error(t, err)

	c, err := New("key", WithHTTPClient(nil), WithLogger(nil), WithClock(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, c.endpoint)
}

func TestSearch_RequestParameters(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"status":"ok","articles":[]}`))
	})

	_, err := c.Search(context.Background(), news.Query{
		Keywords:   []string{"chip exports", " ", "tariffs"},
		NumResults: 250,
		Language:   "EN",
		Region:     "US",
		Recency:    48 * time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "/v2/everything", got.URL.Path)
	assert.Equal(t, "secret", got.Header.Get("X-Api-Key"))

	params, err := url.ParseQuery(got.URL.RawQuery)
	require.NoError(t, err)
	assert.Equal(t, `"chip exports" OR "tariffs"`, params.Get("q"))
	assert.Equal(t, "100", params.Get("pageSize"))
	assert.Equal(t, "en", params.Get("language"))
	assert.Equal(t, "us", params.Get("country"))
	assert.Equal(t, "2026-03-18T10:00:00Z", params.Get("from"))
	assert.Equal(t, "publishedAt", params.Get("sortBy"))
	assert.Empty(t, params.Get("apiKey"))
}

func TestSearch_MapsArticles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	})

	articles, err := c.Search(context.Background(), news.Query{Keywords: []string{"chips"}})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, core.RawArticle{
		Title:     "Chip exports climb",
		Content:   "Chip exports climbed for a third month as demand held",
		URL:       "https://wire.example/chips",
		Source:    "Wire",
		Published: time.Date(2026, 3, 19, 8, 30, 0, 0, time.UTC),
		Keywords:  []string{"chips"},
	}, articles[0])

	assert.Equal(t, "Rates on hold", articles[1].Title)
	assert.Equal(t, "The central bank kept rates unchanged and signalled patience.", articles[1].Content)
}

func TestSearch_NumResultsCapsOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	})

	articles, err := c.Search(context.Background(), news.Query{Keywords: []string{"chips"}, NumResults: 1})
	require.NoError(t, err)
	assert.Len(t, articles, 1)
}

func TestSearch_Errors(t *testing.T) {
	t.Run("no keywords", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})
		_, err := c.Search(context.Background(), news.Query{Keywords: []string{" "}})
		assert.ErrorIs(t, err, news.ErrSearch)
		assert.ErrorIs(t, err, core.ErrEmptyKeywords)
	})

	t.Run("api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
		})
		_, err := c.Search(context.Background(), news.Query{Keywords: []string{"chips"}})
		assert.ErrorIs(t, err, news.ErrSearch)
		assert.Contains(t, err.Error(), "apiKeyInvalid")
	})

	t.Run("non-json failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
		})
		_, err := c.Search(context.Background(), news.Query{Keywords: []string{"chips"}})
		assert.ErrorIs(t, err, news.ErrSearch)
		assert.Contains(t, err.Error(), "504")
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":`))
		})
		_, err := c.Search(context.Background(), news.Query{Keywords: []string{"chips"}})
		assert.ErrorIs(t, err, news.ErrSearch)
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(samplePage))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Search(ctx, news.Query{Keywords: []string{"chips"}})
		assert.ErrorIs(t, err, news.ErrSearch)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBody(t *testing.T) {
	tests := []struct {
		name string
		a    article
		want string
	}{
		{"content only", article{Content: "Full text."}, "Full text."},
		{"truncation marker dropped", article{Content: "Opening line… [+200 chars]"}, "Opening line"},
		{"longer description wins", article{Description: "A longer description.", Content: "Short."}, "A longer description."},
		{"both empty", article{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, body(tt.a))
		})
	}
}
