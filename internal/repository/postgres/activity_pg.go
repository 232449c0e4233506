// internal/repository/postgres/activity_pg.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"slotmine/internal/domain"
	"slotmine/internal/repository"
)

// ActivityRepository implements repository.ActivityRepository for PostgreSQL.
// Append-only: no update or delete statements exist here.
type ActivityRepository struct{}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *sqlx.DB) repository.ActivityRepository {
	return &ActivityRepository{}
}

// CreateEntry appends a new activity entry using the provided DBExecutor.
func (r *ActivityRepository) CreateEntry(ctx context.Context, q repository.DBExecutor, entry *domain.ActivityEntry) error {
	query := `INSERT INTO activity_log (id, owner_id, type, amount, currency, slot_count, detail, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := q.ExecContext(ctx, query,
		entry.ID, entry.OwnerID, entry.Type, entry.Amount,
		entry.Currency, entry.SlotCount, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity entry: %w", err)
	}
	return nil
}

// GetEntriesByOwner retrieves activity history for an owner, newest first.
func (r *ActivityRepository) GetEntriesByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64, limit, offset int) ([]domain.ActivityEntry, int64, error) {
	var entries []domain.ActivityEntry
	query := `SELECT id, owner_id, type, amount, currency, slot_count, detail, created_at
              FROM activity_log WHERE owner_id = $1
              ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := q.SelectContext(ctx, &entries, query, ownerID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to get activity entries for owner %d: %w", ownerID, err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM activity_log WHERE owner_id = $1`
	if err := q.GetContext(ctx, &totalCount, countQuery, ownerID); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity entries for owner %d: %w", ownerID, err)
	}

	return entries, totalCount, nil
}
