// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"slotmine/internal/service"
	"slotmine/internal/util"
)

// Scheduler runs the two background sweeps on independent timers. They
// coordinate only through the storage layer's row locks, never through
// shared in-process flags, so the design stays correct if the jobs move
// to separate processes.
type Scheduler struct {
	cron       *cron.Cron
	expiry     *service.ExpiryProcessor
	checkpoint *service.CheckpointJob
	logger     *slog.Logger
}

// New creates a Scheduler wiring the expiry processor and the accrual
// persistence job.
func New(expiry *service.ExpiryProcessor, checkpoint *service.CheckpointJob, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		expiry:     expiry,
		checkpoint: checkpoint,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start registers both jobs on their intervals and starts the timers.
func (s *Scheduler) Start(expiryEvery, checkpointEvery time.Duration) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", expiryEvery), s.runExpiry); err != nil {
		return fmt.Errorf("failed to schedule expiry processor: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", checkpointEvery), s.runCheckpoint); err != nil {
		return fmt.Errorf("failed to schedule checkpoint job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("background jobs scheduled", "expiry_every", expiryEvery.String(), "checkpoint_every", checkpointEvery.String())
	return nil
}

// Stop halts the timers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("background jobs stopped")
}

func (s *Scheduler) runExpiry() {
	summary, err := s.expiry.RunNow(context.Background())
	if err != nil {
		if util.IsError(err, util.ErrConcurrencyConflict) {
			s.logger.Warn("expiry sweep still running, skipping tick")
			return
		}
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if summary.TotalSlots > 0 {
		s.logger.Info("scheduled expiry sweep", "processed", summary.ProcessedSlots, "failed", summary.FailedSlots)
	}
}

func (s *Scheduler) runCheckpoint() {
	n, err := s.checkpoint.RunNow(context.Background())
	if err != nil {
		if util.IsError(err, util.ErrConcurrencyConflict) {
			s.logger.Warn("checkpoint sweep still running, skipping tick")
			return
		}
		s.logger.Error("checkpoint sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("scheduled checkpoint sweep", "slots", n)
	}
}
