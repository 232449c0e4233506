// internal/repository/activity_repo.go
package repository

import (
	"context"

	"slotmine/internal/domain"
)

// ActivityRepository defines the interface for the append-only activity log.
// There are no update or delete operations: entries are immutable.
type ActivityRepository interface {
	// CreateEntry appends a new activity entry using the provided DBExecutor.
	CreateEntry(ctx context.Context, q DBExecutor, entry *domain.ActivityEntry) error
	// GetEntriesByOwner retrieves activity history for an owner, newest
	// first, with the total count for pagination.
	GetEntriesByOwner(ctx context.Context, q DBExecutor, ownerID int64, limit, offset int) ([]domain.ActivityEntry, int64, error)
}
