package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// SweepResult reports one session's expiry sweep.
type SweepResult struct {
	Session string
	Deleted int
	// Keywords is the sorted union of the deleted records' keywords, so
	// callers can re-issue searches for topics about to lose context.
	Keywords []string
}

// KeywordCount is a keyword and how many live records carry it.
type KeywordCount struct {
	Keyword string
	Count   int
}

// Stats summarizes a session's live records.
type Stats struct {
	Session string
	Total   int
	// Today counts live records published on the current UTC day.
	Today int
	// MostRecent is the latest publish date, zero if the session is empty.
	MostRecent  time.Time
	TopKeywords []KeywordCount
}

// ageDays returns how many whole UTC calendar days separate date from now.
func ageDays(date, now time.Time) int {
	d := date.UTC().Truncate(24 * time.Hour)
	n := now.UTC().Truncate(24 * time.Hour)
	return int(n.Sub(d) / (24 * time.Hour))
}

// expired reports whether (today - date) > expire_days in whole UTC days.
func expired(r *core.NewsRecord, now time.Time) bool {
	return ageDays(r.Date, now) > r.ExpireDays
}

// Sweep deletes the session's expired records one at a time, along with
// their vectors when an index registry is configured. It does not take the
// ingestion lock. Failures on individual records are joined into the
// returned error; the result still covers the records that were deleted.
func (s *Service) Sweep(ctx context.Context, session string) (*SweepResult, error) {
	if err := core.ValidateSession(session); err != nil {
		return nil, err
	}

	records, err := s.news.FindNews(ctx, storage.NewsFilter{Session: session})
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &SweepResult{Session: session}
	keywords := make(map[string]struct{})
	var errs []error

	for _, r := range records {
		if !expired(r, now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := s.news.DeleteNews(ctx, r.Id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete record %d: %w", r.Id, err))
			continue
		}
		result.Deleted++
		for _, k := range r.Keywords {
			keywords[k] = struct{}{}
		}

		if s.indexes != nil {
			source := strconv.FormatUint(uint64(r.Id), 10)
			if _, err := s.indexes.DeleteBySource(ctx, session, source); err != nil {
				errs = append(errs, fmt.Errorf("delete vectors of record %d: %w", r.Id, err))
			}
		}
	}

	result.Keywords = make([]string, 0, len(keywords))
	for k := range keywords {
		result.Keywords = append(result.Keywords, k)
	}
	slices.Sort(result.Keywords)

	if result.Deleted > 0 {
		s.logger.Info("swept expired records", "session", session, "deleted", result.Deleted)
	}
	return result, errors.Join(errs...)
}

// SweepAll sweeps every session that has stored records.
func (s *Service) SweepAll(ctx context.Context) ([]*SweepResult, error) {
	sessions, err := s.news.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*SweepResult, 0, len(sessions))
	var errs []error
	for _, session := range sessions {
		result, err := s.Sweep(ctx, session)
		if err != nil {
			s.logger.Error("error sweeping session", "session", session, "err", err)
			errs = append(errs, fmt.Errorf("session %s: %w", session, err))
		}
		if result != nil {
			results = append(results, result)
		}
	}
	return results, errors.Join(errs...)
}

// Stats computes statistics over the session's live records. Up to topN
// keywords are returned by descending frequency, ties alphabetical.
func (s *Service) Stats(ctx context.Context, session string, topN int) (*Stats, error) {
	if err := core.ValidateSession(session); err != nil {
		return nil, err
	}

	records, err := s.news.FindNews(ctx, storage.NewsFilter{Session: session})
	if err != nil {
		return nil, err
	}

	now := s.now()
	stats := &Stats{Session: session}
	freq := make(map[string]int)
	for _, r := range records {
		if expired(r, now) {
			continue
		}
		stats.Total++
		if ageDays(r.Date, now) == 0 {
			stats.Today++
		}
		if r.Date.After(stats.MostRecent) {
			stats.MostRecent = r.Date
		}
		for _, k := range r.Keywords {
			freq[k]++
		}
	}

	stats.TopKeywords = make([]KeywordCount, 0, len(freq))
	for k, c := range freq {
		stats.TopKeywords = append(stats.TopKeywords, KeywordCount{Keyword: k, Count: c})
	}
	slices.SortFunc(stats.TopKeywords, func(a, b KeywordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	if topN >= 0 && len(stats.TopKeywords) > topN {
		stats.TopKeywords = stats.TopKeywords[:topN]
	}
	return stats, nil
}
