package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coachkit/creditledger/pkg/logger"
)

// DefaultSweepSchedule runs at midnight UTC on the first of each month.
const DefaultSweepSchedule = "0 0 1 * *"

// Resetter is implemented by *Enforcer.
type Resetter interface {
	ResetAll(ctx context.Context) (int, error)
}

// Sweeper proactively resets all counters on a cron schedule. Lazy resets in
// CheckAndIncrement keep enforcement correct without it; the sweep keeps
// reported usage consistent for idle accounts.
type Sweeper struct {
	target   Resetter
	schedule cron.Schedule
	expr     string
	timeout  time.Duration
	log      *slog.Logger
}

// NewSweeper parses schedule as a standard five-field cron expression.
func NewSweeper(target Resetter, schedule string, log *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("quota: invalid sweep schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		target:   target,
		schedule: sched,
		expr:     schedule,
		timeout:  5 * time.Minute,
		log:      log.With(logger.Component("quota_sweeper")),
	}, nil
}

// Run schedules the sweep and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.sweep(ctx) }))
	c.Start()
	s.log.InfoContext(ctx, "quota sweeper started", slog.String("schedule", s.expr))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("quota sweeper stopped")
	return nil
}

// Next reports when the sweep fires after t.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.target.ResetAll(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "scheduled quota sweep failed", logger.Error(err))
		return
	}
	s.log.InfoContext(ctx, "scheduled quota sweep finished",
		slog.Int("counters", n), logger.Duration(time.Since(start)))
}
