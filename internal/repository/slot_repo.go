// internal/repository/slot_repo.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"slotmine/internal/domain"
)

// SlotCounts is the operational snapshot the processing-status endpoint reports.
type SlotCounts struct {
	Active         int64 `db:"active"`
	ExpiredPending int64 `db:"expired_pending"` // past expiry but still active
	ExpiringSoon   int64 `db:"expiring_soon"`
}

// SlotRepository defines the interface for slot data operations.
// Operations that mutate a slot are expected to run inside a transaction
// whose row locks (acquired by the ForUpdate reads) serialize concurrent
// claims and expiry finalization for the same slot.
type SlotRepository interface {
	// CreateSlot inserts a new slot using the provided DBExecutor.
	CreateSlot(ctx context.Context, q DBExecutor, slot *domain.Slot) error
	// GetSlotByID retrieves a slot by its ID.
	GetSlotByID(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Slot, error)
	// GetActiveSlotsByOwner retrieves all active slots for an owner, for reads.
	GetActiveSlotsByOwner(ctx context.Context, q DBExecutor, ownerID int64) ([]domain.Slot, error)
	// GetActiveSlotsByOwnerForUpdate is the same read with row locks held,
	// for claim transactions.
	GetActiveSlotsByOwnerForUpdate(ctx context.Context, q DBExecutor, ownerID int64) ([]domain.Slot, error)
	// GetExpiredActiveSlotsForUpdate retrieves up to limit active slots whose
	// expiry lies in (after, asOf], oldest first, locking the rows and
	// skipping ones already locked by a concurrent claim. The after cursor
	// lets the sweep page past slots it could not finalize without
	// refetching them.
	GetExpiredActiveSlotsForUpdate(ctx context.Context, q DBExecutor, after, asOf time.Time, limit int) ([]domain.Slot, error)
	// GetStaleActiveSlotsForUpdate retrieves up to limit active slots whose
	// last checkpoint lies in (after, cutoff], oldest first, for the
	// persistence job. The after cursor lets the job page past slots it
	// chose to skip without refetching them.
	GetStaleActiveSlotsForUpdate(ctx context.Context, q DBExecutor, after, cutoff time.Time, limit int) ([]domain.Slot, error)
	// CheckpointSlot advances last_accrued_at and adds delta to
	// accrued_earnings. The guard refuses to move the checkpoint backwards
	// or to touch inactive slots.
	CheckpointSlot(ctx context.Context, q DBExecutor, slotID uuid.UUID, accruedAt time.Time, delta decimal.Decimal) error
	// ResetCheckpoint sets last_accrued_at to accruedAt and zeroes
	// accrued_earnings, after a claim realized them into the wallet.
	ResetCheckpoint(ctx context.Context, q DBExecutor, slotID uuid.UUID, accruedAt time.Time) error
	// FinalizeSlot closes the slot: checkpoint at expiry, earnings zeroed
	// (credited by the caller in the same transaction), is_active false.
	FinalizeSlot(ctx context.Context, q DBExecutor, slotID uuid.UUID) error
	// CountSlots returns the operational counts as of asOf; ExpiringSoon
	// covers (asOf, asOf+soonWindow].
	CountSlots(ctx context.Context, q DBExecutor, asOf time.Time, soonWindow time.Duration) (*SlotCounts, error)
}
