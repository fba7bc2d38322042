package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs the reconciler across all accounts on a fixed interval.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *logrus.Entry
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(r *Reconciler, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		reconciler: r,
		interval:   interval,
		logger:     logger.WithField("component", "scheduler"),
	}
}

// Run sweeps immediately, then on every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Background reconciliation disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval).Info("Background reconciliation started")

	// Run immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Background reconciliation stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.reconciler.Reconcile(ctx, ""); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Reconciliation sweep failed")
	}
}
