package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs Sweep on a cron schedule until its context ends.
type Scheduler struct {
	sweeper  Sweeper
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(sweeper Sweeper, schedule string) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "credstore.sweeper"),
		now:      time.Now,
	}
}

// Run blocks until ctx is done. An empty schedule returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, expired entries are filtered on read only")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Debug("sweeper started", "schedule", s.schedule)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) RunOnce(ctx context.Context) int {
	n, err := s.sweeper.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Warn("sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Debug("swept expired entries", "count", n)
	}
	return n
}
