// internal/repository/postgres/slot_pg.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"slotmine/internal/domain"
	"slotmine/internal/repository"
	"slotmine/internal/util"
)

const slotColumns = `id, owner_id, principal, weekly_rate, start_at, expires_at,
	last_accrued_at, accrued_earnings, is_active, created_at, updated_at`

// SlotRepository implements repository.SlotRepository for PostgreSQL.
type SlotRepository struct{}

// NewSlotRepository creates a new SlotRepository.
func NewSlotRepository(db *sqlx.DB) repository.SlotRepository {
	return &SlotRepository{}
}

// CreateSlot inserts a new slot using the provided DBExecutor.
func (r *SlotRepository) CreateSlot(ctx context.Context, q repository.DBExecutor, slot *domain.Slot) error {
	query := `INSERT INTO slots (` + slotColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.ExecContext(ctx, query,
		slot.ID, slot.OwnerID, slot.Principal, slot.WeeklyRate,
		slot.StartAt, slot.ExpiresAt, slot.LastAccruedAt,
		slot.AccruedEarnings, slot.IsActive, slot.CreatedAt, slot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

// GetSlotByID retrieves a slot by its ID using the provided DBExecutor.
func (r *SlotRepository) GetSlotByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Slot, error) {
	var slot domain.Slot
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`
	err := q.GetContext(ctx, &slot, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get slot by ID %s: %w", id, err)
	}
	return &slot, nil
}

// GetActiveSlotsByOwner retrieves all active slots for an owner.
func (r *SlotRepository) GetActiveSlotsByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64) ([]domain.Slot, error) {
	var slots []domain.Slot
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE owner_id = $1 AND is_active = TRUE ORDER BY start_at`
	if err := q.SelectContext(ctx, &slots, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get active slots for owner %d: %w", ownerID, err)
	}
	return slots, nil
}

// GetActiveSlotsByOwnerForUpdate retrieves active slots for an owner with
// row locks, serializing against the expiry sweep inside a transaction.
func (r *SlotRepository) GetActiveSlotsByOwnerForUpdate(ctx context.Context, q repository.DBExecutor, ownerID int64) ([]domain.Slot, error) {
	var slots []domain.Slot
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE owner_id = $1 AND is_active = TRUE ORDER BY start_at FOR UPDATE`
	if err := q.SelectContext(ctx, &slots, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to lock active slots for owner %d: %w", ownerID, err)
	}
	return slots, nil
}

// GetExpiredActiveSlotsForUpdate retrieves a batch of expired-but-active
// slots with expiry in (after, asOf], oldest first. SKIP LOCKED lets the
// sweep pass over slots a concurrent claim is holding; they are picked up
// on the next run.
func (r *SlotRepository) GetExpiredActiveSlotsForUpdate(ctx context.Context, q repository.DBExecutor, after, asOf time.Time, limit int) ([]domain.Slot, error) {
	var slots []domain.Slot
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE is_active = TRUE AND expires_at > $1 AND expires_at <= $2
              ORDER BY expires_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED`
	if err := q.SelectContext(ctx, &slots, query, after, asOf, limit); err != nil {
		return nil, fmt.Errorf("failed to get expired active slots: %w", err)
	}
	return slots, nil
}

// GetStaleActiveSlotsForUpdate retrieves a batch of active slots whose
// checkpoint lies in (after, cutoff], for the accrual persistence job.
func (r *SlotRepository) GetStaleActiveSlotsForUpdate(ctx context.Context, q repository.DBExecutor, after, cutoff time.Time, limit int) ([]domain.Slot, error) {
	var slots []domain.Slot
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE is_active = TRUE AND last_accrued_at > $1 AND last_accrued_at <= $2
              ORDER BY last_accrued_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED`
	if err := q.SelectContext(ctx, &slots, query, after, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to get stale active slots: %w", err)
	}
	return slots, nil
}

// CheckpointSlot advances the accrual checkpoint. The WHERE guard keeps
// last_accrued_at monotonic and refuses inactive slots.
func (r *SlotRepository) CheckpointSlot(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID, accruedAt time.Time, delta decimal.Decimal) error {
	query := `UPDATE slots
              SET last_accrued_at = $1, accrued_earnings = accrued_earnings + $2, updated_at = $3
              WHERE id = $4 AND is_active = TRUE AND last_accrued_at <= $1`
	result, err := q.ExecContext(ctx, query, accruedAt, delta, time.Now().UTC(), slotID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint slot %s: %w", slotID, err)
	}
	return requireRowAffected(result, slotID)
}

// ResetCheckpoint moves the checkpoint forward and zeroes the realized
// earnings after a claim has credited them to the wallet.
func (r *SlotRepository) ResetCheckpoint(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID, accruedAt time.Time) error {
	query := `UPDATE slots
              SET last_accrued_at = $1, accrued_earnings = 0, updated_at = $2
              WHERE id = $3 AND is_active = TRUE AND last_accrued_at <= $1`
	result, err := q.ExecContext(ctx, query, accruedAt, time.Now().UTC(), slotID)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint for slot %s: %w", slotID, err)
	}
	return requireRowAffected(result, slotID)
}

// FinalizeSlot deactivates the slot with its checkpoint pinned at expiry.
// The caller credits the final earnings in the same transaction.
func (r *SlotRepository) FinalizeSlot(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID) error {
	query := `UPDATE slots
              SET last_accrued_at = expires_at, accrued_earnings = 0, is_active = FALSE, updated_at = $1
              WHERE id = $2 AND is_active = TRUE`
	result, err := q.ExecContext(ctx, query, time.Now().UTC(), slotID)
	if err != nil {
		return fmt.Errorf("failed to finalize slot %s: %w", slotID, err)
	}
	return requireRowAffected(result, slotID)
}

// CountSlots returns operational counts for the status endpoint.
func (r *SlotRepository) CountSlots(ctx context.Context, q repository.DBExecutor, asOf time.Time, soonWindow time.Duration) (*repository.SlotCounts, error) {
	var counts repository.SlotCounts
	query := `SELECT
              COUNT(*) FILTER (WHERE is_active) AS active,
              COUNT(*) FILTER (WHERE is_active AND expires_at <= $1) AS expired_pending,
              COUNT(*) FILTER (WHERE is_active AND expires_at > $1 AND expires_at <= $2) AS expiring_soon
              FROM slots`
	if err := q.GetContext(ctx, &counts, query, asOf, asOf.Add(soonWindow)); err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}
	return &counts, nil
}

func requireRowAffected(result sql.Result, slotID uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for slot %s: %w", slotID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("slot %s: %w", slotID, util.ErrSlotInactive)
	}
	return nil
}
