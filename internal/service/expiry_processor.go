// internal/service/expiry_processor.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"slotmine/internal/accrual"
	"slotmine/internal/cache"
	"slotmine/internal/domain"
	"slotmine/internal/metrics"
	"slotmine/internal/notify"
	"slotmine/internal/repository"
	"slotmine/internal/stats"
	"slotmine/internal/util"
	"slotmine/pkg/db"
)

// BatchSummary reports one expiry sweep. Per-slot failures are recorded,
// not fatal: a bad record never blocks the rest of the sweep.
type BatchSummary struct {
	TotalSlots       int      `json:"total_slots"`
	ProcessedSlots   int      `json:"processed_slots"`
	FailedSlots      int      `json:"failed_slots"`
	Errors           []string `json:"errors,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// ProcessingStatus is the operational snapshot for admin visibility.
type ProcessingStatus struct {
	ActiveSlots       int64      `json:"active_slots"`
	ExpiredSlots      int64      `json:"expired_slots"`
	ExpiringSoon      int64      `json:"expiring_soon"`
	ProcessedLastHour int64      `json:"processed_last_hour"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
}

// ExpiryConfig carries the batch-processor knobs.
type ExpiryConfig struct {
	Currency string
	// BatchSize bounds transaction size and memory per batch.
	BatchSize int
	// BatchTimeout bounds how long one batch transaction may run.
	BatchTimeout time.Duration
	// SoonWindow defines "expiring soon" for the status report.
	SoonWindow time.Duration
}

// ExpiryProcessor finds every active slot past expiry and finalizes it:
// final earnings credited, slot deactivated, one activity entry per slot,
// one notification per affected owner. Idempotent: a second run right
// after the first finds nothing to do.
type ExpiryProcessor struct {
	dbBeginner   db.DBTxBeginner
	dbExecutor   repository.DBExecutor
	slotRepo     repository.SlotRepository
	walletRepo   repository.WalletRepository
	activityRepo repository.ActivityRepository
	beginTx      db.BeginTxFunc
	commitTx     db.CommitTxFunc
	rollbackTx   db.RollbackTxFunc
	cache        cache.Cache
	notifier     notify.Notifier
	live         *stats.Live
	cfg          ExpiryConfig
	running      atomic.Bool
	now          func() time.Time
	logger       *slog.Logger
}

// NewExpiryProcessor creates a new ExpiryProcessor.
func NewExpiryProcessor(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	slotRepo repository.SlotRepository,
	walletRepo repository.WalletRepository,
	activityRepo repository.ActivityRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	c cache.Cache,
	notifier notify.Notifier,
	live *stats.Live,
	cfg ExpiryConfig,
	logger *slog.Logger,
) *ExpiryProcessor {
	return &ExpiryProcessor{
		dbBeginner:   dbBeginner,
		dbExecutor:   dbExecutor,
		slotRepo:     slotRepo,
		walletRepo:   walletRepo,
		activityRepo: activityRepo,
		beginTx:      beginTx,
		commitTx:     commitTx,
		rollbackTx:   rollbackTx,
		cache:        c,
		notifier:     notifier,
		live:         live,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger.With("component", "expiry_processor"),
	}
}

// RunNow executes one full sweep. Called by the scheduler on its interval
// and by the admin trigger. Overlapping runs are refused.
func (p *ExpiryProcessor) RunNow(ctx context.Context) (*BatchSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, util.ErrConcurrencyConflict
	}
	defer p.running.Store(false)

	start := p.now()
	asOf := start
	summary := &BatchSummary{}
	credited := make(map[int64]decimal.Decimal)

	// Cursor on expires_at pages the sweep past slots that could not be
	// finalized, so a bad record never stalls the slots behind it.
	cursor := time.Time{}
	for {
		batchCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
		nextCursor, err := p.processBatch(batchCtx, cursor, asOf, summary, credited)
		cancel()
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			p.logger.Error("expiry batch aborted", "error", err)
			break
		}
		if nextCursor.IsZero() {
			break
		}
		cursor = nextCursor
		if ctx.Err() != nil {
			summary.Errors = append(summary.Errors, ctx.Err().Error())
			break
		}
	}

	// Invalidate and notify per owner, not per slot, to bound fan-out.
	for ownerID, amount := range credited {
		if err := p.cache.InvalidateOwner(ctx, ownerID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("cache invalidation for owner %d: %v", ownerID, err))
			continue
		}
		event := notify.Event{OwnerID: ownerID, Kind: "expiry", Amount: amount, At: p.now()}
		if wallet, err := p.walletRepo.GetWalletByOwner(ctx, p.dbExecutor, ownerID, p.cfg.Currency); err == nil {
			event.NewBalance = wallet.Balance
		}
		p.notifier.Publish(event)
	}

	elapsed := p.now().Sub(start)
	summary.ProcessingTimeMs = elapsed.Milliseconds()
	p.live.RecordRun(p.now(), int64(summary.ProcessedSlots))
	metrics.RecordFinalized(summary.ProcessedSlots)
	metrics.RecordExpiryBatch(elapsed.Seconds())

	p.logger.Info("expiry sweep complete",
		"total", summary.TotalSlots,
		"processed", summary.ProcessedSlots,
		"failed", summary.FailedSlots,
		"took_ms", summary.ProcessingTimeMs)
	return summary, nil
}

// processBatch finalizes one batch inside a single transaction and returns
// the cursor for the next batch; a zero cursor means the sweep is done.
// Per-slot computation failures are recorded in the summary without
// touching the database, so they cannot poison the transaction; the cursor
// moves past them. A write failure rolls back and aborts the whole batch,
// which is retried on the next scheduled run.
func (p *ExpiryProcessor) processBatch(ctx context.Context, cursor, asOf time.Time, summary *BatchSummary, credited map[int64]decimal.Decimal) (time.Time, error) {
	txController, err := p.beginTx(ctx, p.dbBeginner)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer p.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return time.Time{}, fmt.Errorf("transaction controller does not implement DBExecutor")
	}

	slots, err := p.slotRepo.GetExpiredActiveSlotsForUpdate(ctx, txExecutor, cursor, asOf, p.cfg.BatchSize)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query expired slots: %w", err)
	}
	if len(slots) == 0 {
		return time.Time{}, nil
	}
	summary.TotalSlots += len(slots)

	batchCredited := make(map[int64]decimal.Decimal)
	processed := 0
	failed := 0
	nextCursor := cursor
	for _, slot := range slots {
		if slot.ExpiresAt.After(nextCursor) {
			nextCursor = slot.ExpiresAt
		}

		finalCredit, err := p.finalEarnings(&slot)
		if err != nil {
			failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("slot %s: %v", slot.ID, err))
			continue
		}

		wallet, err := p.walletRepo.GetWalletByOwner(ctx, txExecutor, slot.OwnerID, p.cfg.Currency)
		if err != nil {
			if util.IsError(err, util.ErrWalletNotFound) {
				failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("slot %s: owner %d has no wallet", slot.ID, slot.OwnerID))
				continue
			}
			return time.Time{}, fmt.Errorf("failed to get wallet for owner %d: %w", slot.OwnerID, err)
		}

		if finalCredit.IsPositive() {
			if err := p.walletRepo.AdjustBalance(ctx, txExecutor, wallet.ID, finalCredit); err != nil {
				return time.Time{}, fmt.Errorf("failed to credit wallet for slot %s: %w", slot.ID, err)
			}
		}

		entry := domain.NewActivityEntry(slot.OwnerID, domain.ActivityExpiryClose, finalCredit, p.cfg.Currency, 1,
			fmt.Sprintf("slot %s finalized at expiry", slot.ID))
		if err := p.activityRepo.CreateEntry(ctx, txExecutor, entry); err != nil {
			return time.Time{}, fmt.Errorf("failed to log expiry for slot %s: %w", slot.ID, err)
		}

		if err := p.slotRepo.FinalizeSlot(ctx, txExecutor, slot.ID); err != nil {
			return time.Time{}, fmt.Errorf("failed to finalize slot %s: %w", slot.ID, err)
		}

		processed++
		batchCredited[slot.OwnerID] = batchCredited[slot.OwnerID].Add(finalCredit)
	}

	if err := p.commitTx(txController); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit batch: %w", err)
	}

	summary.ProcessedSlots += processed
	summary.FailedSlots += failed
	for ownerID, amount := range batchCredited {
		credited[ownerID] = credited[ownerID].Add(amount)
	}
	if len(slots) < p.cfg.BatchSize {
		// Short batch: nothing left beyond the cursor.
		return time.Time{}, nil
	}
	return nextCursor, nil
}

// finalEarnings computes the credit for a slot over its frozen window
// [lastAccruedAt, expiresAt]: the realized remainder plus the final
// incremental projection. Validation failures here are per-slot errors.
func (p *ExpiryProcessor) finalEarnings(slot *domain.Slot) (decimal.Decimal, error) {
	if slot.Principal.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative principal %s", slot.Principal)
	}
	if slot.WeeklyRate.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative weekly rate %s", slot.WeeklyRate)
	}
	if slot.AccruedEarnings.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative accrued earnings %s", slot.AccruedEarnings)
	}
	remaining := slot.ExpiresAt.Sub(slot.LastAccruedAt)
	delta := accrual.ProjectWindow(slot.Principal, slot.WeeklyRate, remaining, slot.Window())
	return slot.AccruedEarnings.Add(delta), nil
}

// Status reports operational counts for the admin endpoint.
func (p *ExpiryProcessor) Status(ctx context.Context) (*ProcessingStatus, error) {
	now := p.now()
	counts, err := p.slotRepo.CountSlots(ctx, p.dbExecutor, now, p.cfg.SoonWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}
	status := &ProcessingStatus{
		ActiveSlots:       counts.Active,
		ExpiredSlots:      counts.ExpiredPending,
		ExpiringSoon:      counts.ExpiringSoon,
		ProcessedLastHour: p.live.ProcessedLastHour(now),
	}
	if lastRun := p.live.LastRunAt(); !lastRun.IsZero() {
		status.LastRunAt = &lastRun
	}
	return status, nil
}
