package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the job on a fixed interval. A lightweight ticker loop is
// enough here; the job itself is idempotent and lock-guarded.
type Scheduler struct {
	job      *Job
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(job *Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, interval: interval, logger: logger}
}

// Run ticks until the context is cancelled. One batch runs immediately on
// start so a restart does not postpone overdue date checks by a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled reconcile run failed", "error", err)
	}
}
