// internal/service/checkpoint_job.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"slotmine/internal/accrual"
	"slotmine/internal/metrics"
	"slotmine/internal/repository"
	"slotmine/internal/util"
	"slotmine/pkg/db"
)

// CheckpointConfig carries the persistence-job knobs.
type CheckpointConfig struct {
	// BatchSize bounds transaction size per batch.
	BatchSize int
	// Threshold is the materiality floor: virtual deltas below it are not
	// worth a write and are skipped until they grow.
	Threshold decimal.Decimal
}

// CheckpointJob periodically converts virtual earnings into realized
// accrued_earnings on long-lived active slots, bounding the delta a crash
// could lose to one job interval. It never touches wallets: realized
// earnings stay on the slot until claimed or finalized.
type CheckpointJob struct {
	dbBeginner db.DBTxBeginner
	slotRepo   repository.SlotRepository
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc
	cfg        CheckpointConfig
	running    atomic.Bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewCheckpointJob creates a new CheckpointJob.
func NewCheckpointJob(
	dbBeginner db.DBTxBeginner,
	slotRepo repository.SlotRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	cfg CheckpointConfig,
	logger *slog.Logger,
) *CheckpointJob {
	return &CheckpointJob{
		dbBeginner: dbBeginner,
		slotRepo:   slotRepo,
		beginTx:    beginTx,
		commitTx:   commitTx,
		rollbackTx: rollbackTx,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With("component", "checkpoint_job"),
	}
}

// RunNow executes one checkpoint sweep and returns how many slots were
// checkpointed. Overlapping runs are refused.
func (j *CheckpointJob) RunNow(ctx context.Context) (int, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, util.ErrConcurrencyConflict
	}
	defer j.running.Store(false)

	cutoff := j.now()
	cursor := time.Time{}
	checkpointed := 0

	for {
		n, nextCursor, err := j.processBatch(ctx, cursor, cutoff)
		if err != nil {
			return checkpointed, err
		}
		checkpointed += n
		if nextCursor.IsZero() {
			break
		}
		cursor = nextCursor
	}

	if checkpointed > 0 {
		metrics.RecordCheckpointed(checkpointed)
		j.logger.Info("accrual checkpoints persisted", "slots", checkpointed)
	}
	return checkpointed, nil
}

// processBatch checkpoints one batch inside a single transaction. It
// returns the count written and the cursor for the next batch; a zero
// cursor means the sweep is done.
func (j *CheckpointJob) processBatch(ctx context.Context, cursor, cutoff time.Time) (int, time.Time, error) {
	txController, err := j.beginTx(ctx, j.dbBeginner)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("checkpoint: failed to begin transaction: %w", err)
	}
	defer j.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("checkpoint: transaction controller does not implement DBExecutor")
	}

	slots, err := j.slotRepo.GetStaleActiveSlotsForUpdate(ctx, txExecutor, cursor, cutoff, j.cfg.BatchSize)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("checkpoint: failed to query stale slots: %w", err)
	}
	if len(slots) == 0 {
		return 0, time.Time{}, nil
	}

	written := 0
	nextCursor := cursor
	for _, slot := range slots {
		if slot.LastAccruedAt.After(nextCursor) {
			nextCursor = slot.LastAccruedAt
		}
		upper := slot.AccrualUpperBound(cutoff)
		delta := accrual.Project(slot.Principal, slot.WeeklyRate, slot.PendingElapsed(cutoff))
		if delta.LessThan(j.cfg.Threshold) {
			continue
		}
		if err := j.slotRepo.CheckpointSlot(ctx, txExecutor, slot.ID, upper, delta); err != nil {
			return 0, time.Time{}, fmt.Errorf("checkpoint: slot %s: %w", slot.ID, err)
		}
		written++
	}

	if err := j.commitTx(txController); err != nil {
		return 0, time.Time{}, fmt.Errorf("checkpoint: failed to commit: %w", err)
	}

	if len(slots) < j.cfg.BatchSize {
		// Short batch: nothing left beyond the cursor.
		return written, time.Time{}, nil
	}
	return written, nextCursor, nil
}
