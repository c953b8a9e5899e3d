package news

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

func fixtures() []core.RawArticle {
	return []core.RawArticle{
		{Title: "Chip exports climb", Content: "Semiconductor shipments rose.", URL: "https://a/1", Published: now.Add(-2 * time.Hour)},
		{Title: "Rates on hold", Content: "The central bank waited.", URL: "https://a/2", Published: now.Add(-72 * time.Hour)},
		{Title: "Harvest report", Content: "Wheat yields fell.", URL: "https://a/3", Keywords: []string{"agriculture"}},
	}
}

func TestQueryTerms(t *testing.T) {
	q := Query{Keywords: []string{" chips ", "", "  ", "rates"}}
	assert.Equal(t, []string{"chips", "rates"}, q.Terms())
}

func TestStatic_Search(t *testing.T) {
	s := NewStatic(fixtures())
	s.now = func() time.Time { return now }
	ctx := context.Background()

	got, err := s.Search(ctx, Query{Keywords: []string{"CHIP", "bank"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a/1", got[0].URL)
	assert.Equal(t, "https://a/2", got[1].URL)

	got, err = s.Search(ctx, Query{Keywords: []string{"chip", "bank"}, Recency: 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a/1", got[0].URL)

	got, err = s.Search(ctx, Query{Keywords: []string{"agriculture"}})
	require.NoError(t, err)
	require.Len(t, got, 1, "keywords are searched too, undated articles pass recency")

	got, err = s.Search(ctx, Query{Keywords: []string{"chip", "bank"}, NumResults: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Search(ctx, Query{Keywords: []string{"volcano"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(fixtures()).Search(ctx, Query{Keywords: []string{"chip"}})
	assert.ErrorIs(t, err, ErrSearch)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"title": "Chip exports climb", "url": "https://a/1", "source": "Wire",
		 "published": "2026-03-19T08:30:00Z", "keywords": ["chips"]}
	]`), 0o644))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	got, err := s.Search(context.Background(), Query{Keywords: []string{"chips"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Wire", got[0].Source)
	assert.True(t, got[0].Published.Equal(time.Date(2026, 3, 19, 8, 30, 0, 0, time.UTC)))

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))
	_, err = LoadStatic(bad)
	assert.Error(t, err)
}
