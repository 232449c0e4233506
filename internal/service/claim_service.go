// internal/service/claim_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"slotmine/internal/accrual"
	"slotmine/internal/cache"
	"slotmine/internal/domain"
	"slotmine/internal/metrics"
	"slotmine/internal/notify"
	"slotmine/internal/repository"
	"slotmine/internal/util"
	"slotmine/pkg/db"
)

// ClaimResult is the structured outcome of a claim. Success=false with a
// message is a normal no-op (nothing accrued yet), not a system fault.
type ClaimResult struct {
	Success       bool            `json:"success"`
	ClaimedAmount decimal.Decimal `json:"claimed_amount"`
	Message       string          `json:"message,omitempty"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	SlotsClaimed  int             `json:"slots_claimed"`
}

// ClaimService converts an owner's currently virtual earnings into
// realized wallet balance, at most once per accrual window.
type ClaimService interface {
	Claim(ctx context.Context, ownerID int64) (*ClaimResult, error)
}

// ClaimConfig carries the claim-behavior knobs.
type ClaimConfig struct {
	Currency string
	// MinClaimAmount is the threshold below which a claim is a no-op.
	MinClaimAmount decimal.Decimal
	// LockTimeout bounds the wait for the per-owner serialization lock.
	LockTimeout time.Duration
	// CloseSlotOnClaim closes claimed slots instead of letting them keep
	// accruing from the new checkpoint.
	CloseSlotOnClaim bool
}

// claimService implements the ClaimService interface.
type claimService struct {
	dbBeginner   db.DBTxBeginner
	slotRepo     repository.SlotRepository
	walletRepo   repository.WalletRepository
	activityRepo repository.ActivityRepository
	beginTx      db.BeginTxFunc
	commitTx     db.CommitTxFunc
	rollbackTx   db.RollbackTxFunc
	cache        cache.Cache
	notifier     notify.Notifier
	locks        *ownerLocks
	cfg          ClaimConfig
	now          func() time.Time
	logger       *slog.Logger
}

// NewClaimService creates a new instance of ClaimService.
func NewClaimService(
	dbBeginner db.DBTxBeginner,
	slotRepo repository.SlotRepository,
	walletRepo repository.WalletRepository,
	activityRepo repository.ActivityRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	c cache.Cache,
	notifier notify.Notifier,
	cfg ClaimConfig,
	logger *slog.Logger,
) ClaimService {
	return &claimService{
		dbBeginner:   dbBeginner,
		slotRepo:     slotRepo,
		walletRepo:   walletRepo,
		activityRepo: activityRepo,
		beginTx:      beginTx,
		commitTx:     commitTx,
		rollbackTx:   rollbackTx,
		cache:        c,
		notifier:     notifier,
		locks:        newOwnerLocks(),
		cfg:          cfg,
		now:          time.Now,
		logger:       logger.With("component", "claim"),
	}
}

// Claim computes the incremental earnings of every active slot since its
// checkpoint (capped at expiry), credits the sum to the wallet, and resets
// the checkpoints, all in one transaction serialized per owner.
func (c *claimService) Claim(ctx context.Context, ownerID int64) (*ClaimResult, error) {
	if ownerID <= 0 {
		return nil, util.ErrInvalidInput
	}

	release, err := c.locks.acquire(ctx, ownerID, c.cfg.LockTimeout)
	if err != nil {
		metrics.RecordClaim("conflict")
		return nil, err
	}
	defer release()

	txController, err := c.beginTx(ctx, c.dbBeginner)
	if err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to begin transaction: %w", err)
	}
	defer c.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("claim: transaction controller does not implement DBExecutor")
	}

	slots, err := c.slotRepo.GetActiveSlotsByOwnerForUpdate(ctx, txExecutor, ownerID)
	if err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to load slots for owner %d: %w", ownerID, err)
	}
	if len(slots) == 0 {
		metrics.RecordClaim("empty")
		return &ClaimResult{Success: false, ClaimedAmount: decimal.Zero, Message: "no active slots to claim"}, nil
	}

	now := c.now()
	total := decimal.Zero
	checkpoints := make([]notify.SlotCheckpoint, 0, len(slots))
	type pendingSlot struct {
		slot  domain.Slot
		upper time.Time
		close bool
	}
	pending := make([]pendingSlot, 0, len(slots))
	for _, slot := range slots {
		delta := accrual.Project(slot.Principal, slot.WeeklyRate, slot.PendingElapsed(now))
		total = total.Add(slot.AccruedEarnings).Add(delta)
		pending = append(pending, pendingSlot{
			slot:  slot,
			upper: slot.AccrualUpperBound(now),
			close: slot.Expired(now) || c.cfg.CloseSlotOnClaim,
		})
	}

	if total.LessThan(c.cfg.MinClaimAmount) {
		metrics.RecordClaim("empty")
		return &ClaimResult{Success: false, ClaimedAmount: decimal.Zero, Message: "nothing to claim yet"}, nil
	}

	wallet, err := c.walletRepo.GetWalletByOwner(ctx, txExecutor, ownerID, c.cfg.Currency)
	if err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to get wallet for owner %d: %w", ownerID, err)
	}
	if err := c.walletRepo.AdjustBalance(ctx, txExecutor, wallet.ID, total); err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to credit wallet: %w", err)
	}

	for _, p := range pending {
		if p.close {
			err = c.slotRepo.FinalizeSlot(ctx, txExecutor, p.slot.ID)
		} else {
			err = c.slotRepo.ResetCheckpoint(ctx, txExecutor, p.slot.ID, p.upper)
		}
		if err != nil {
			metrics.RecordClaim("error")
			return nil, fmt.Errorf("claim: failed to checkpoint slot %s: %w", p.slot.ID, err)
		}
		checkpoints = append(checkpoints, notify.SlotCheckpoint{
			SlotID:          p.slot.ID,
			LastAccruedAt:   p.upper,
			AccruedEarnings: decimal.Zero,
			IsActive:        !p.close,
		})
	}

	entry := domain.NewActivityEntry(ownerID, domain.ActivityClaim, total, c.cfg.Currency, len(pending),
		fmt.Sprintf("claimed across %d slot(s)", len(pending)))
	if err := c.activityRepo.CreateEntry(ctx, txExecutor, entry); err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to create activity entry: %w", err)
	}

	if err := c.commitTx(txController); err != nil {
		metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim: failed to commit transaction: %w", err)
	}

	// Invalidate before returning so the next read cannot see the
	// pre-claim aggregate.
	if err := c.cache.InvalidateOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("claim: failed to invalidate cache: %w", err)
	}

	newBalance := wallet.Balance.Add(total)
	c.notifier.Publish(notify.Event{
		OwnerID:    ownerID,
		Kind:       "claim",
		NewBalance: newBalance,
		Amount:     total,
		Slots:      checkpoints,
		At:         now,
	})
	metrics.RecordClaim("credited")
	c.logger.Info("claim credited", "owner_id", ownerID, "amount", total.String(), "slots", len(pending))

	return &ClaimResult{
		Success:       true,
		ClaimedAmount: total,
		NewBalance:    newBalance,
		SlotsClaimed:  len(pending),
	}, nil
}
