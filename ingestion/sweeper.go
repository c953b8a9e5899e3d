package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// Schedule yields the next run time after a given time. A zero time means
// there is no further run.
type Schedule interface {
	Next(from time.Time) time.Time
}

// Every is a fixed-interval Schedule.
type Every time.Duration

// Next returns from plus the interval.
func (e Every) Next(from time.Time) time.Time {
	return from.Add(time.Duration(e))
}

// ParseSchedule accepts either a Go duration ("6h", "30m") or a cron
// expression ("0 3 * * *", "@hourly").
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("%w: interval must be positive: %s", ErrInvalidSchedule, spec)
		}
		return Every(d), nil
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return expr, nil
}

// Sweeper runs expiry sweeps over every session on its own schedule. It
// never blocks ingestion: sweeps delete record by record without taking
// the ingestion lock.
type Sweeper struct {
	service  *Service
	schedule Schedule
	now      func() time.Time
	onSweep  func([]*SweepResult, error)
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// OnSweep registers a callback invoked after every sweep.
func OnSweep(fn func([]*SweepResult, error)) SweeperOption {
	return func(s *Sweeper) {
		s.onSweep = fn
	}
}

// WithSweeperLogger sets a custom logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSweeper creates a sweeper for service on schedule.
func NewSweeper(service *Service, schedule Schedule, opts ...SweeperOption) (*Sweeper, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidSchedule)
	}

	s := &Sweeper{
		service:  service,
		schedule: schedule,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s, nil
}

// Run sweeps at each scheduled time until ctx is done. It returns nil on
// cancellation and ErrInvalidSchedule if the schedule runs out.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		now := s.now()
		next := s.schedule.Next(now)
		if next.IsZero() {
			return fmt.Errorf("%w: no run after %s", ErrInvalidSchedule, now.Format(time.RFC3339))
		}
		s.logger.Debug("next sweep scheduled", "at", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		s.SweepOnce(ctx)
	}
}

// SweepOnce runs a single sweep over every session.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]*SweepResult, error) {
	started := time.Now()
	results, err := s.service.SweepAll(ctx)

	deleted := 0
	for _, r := range results {
		deleted += r.Deleted
	}
	if err != nil {
		s.logger.Error("sweep finished with errors", "sessions", len(results), "deleted", deleted, "err", err)
	} else {
		s.logger.Info("sweep finished", "sessions", len(results), "deleted", deleted, "elapsed", time.Since(started))
	}

	if s.onSweep != nil {
		s.onSweep(results, err)
	}
	return results, err
}
