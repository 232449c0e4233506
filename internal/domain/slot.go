// internal/domain/slot.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Slot represents one mining-slot investment position. Principal and
// weekly rate are fixed for the slot's lifetime; earnings accrue linearly
// over [StartAt, ExpiresAt].
type Slot struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	OwnerID         int64           `db:"owner_id" json:"owner_id"`
	Principal       decimal.Decimal `db:"principal" json:"principal"`                 // NUMERIC(20, 8) in DB
	WeeklyRate      decimal.Decimal `db:"weekly_rate" json:"weekly_rate"`             // fractional yield per 7-day period
	StartAt         time.Time       `db:"start_at" json:"start_at"`
	ExpiresAt       time.Time       `db:"expires_at" json:"expires_at"`
	LastAccruedAt   time.Time       `db:"last_accrued_at" json:"last_accrued_at"`     // checkpoint boundary
	AccruedEarnings decimal.Decimal `db:"accrued_earnings" json:"accrued_earnings"`   // realized but unclaimed
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// NewSlot creates a new Slot starting now and expiring after duration.
// Rank/tier bonuses must already be resolved into weeklyRate by the caller.
func NewSlot(ownerID int64, principal, weeklyRate decimal.Decimal, duration time.Duration, now time.Time) *Slot {
	now = now.UTC()
	return &Slot{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Principal:       principal,
		WeeklyRate:      weeklyRate,
		StartAt:         now,
		ExpiresAt:       now.Add(duration),
		LastAccruedAt:   now,
		AccruedEarnings: decimal.Zero,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Window returns the total accrual window length.
func (s *Slot) Window() time.Duration {
	return s.ExpiresAt.Sub(s.StartAt)
}

// Expired reports whether the slot's accrual window has fully elapsed.
func (s *Slot) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AccrualUpperBound returns min(now, ExpiresAt): the point up to which
// earnings may accrue at the given instant. Earnings never accrue past
// expiry.
func (s *Slot) AccrualUpperBound(now time.Time) time.Time {
	if now.After(s.ExpiresAt) {
		return s.ExpiresAt
	}
	return now
}

// PendingElapsed returns the duration between the last checkpoint and the
// accrual upper bound, clamped to zero for clock skew.
func (s *Slot) PendingElapsed(now time.Time) time.Duration {
	elapsed := s.AccrualUpperBound(now).Sub(s.LastAccruedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
