// internal/domain/activity.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityType is the closed set of balance-affecting event kinds. Every
// consumer switches over it exhaustively; adding a kind means updating
// Valid and Describe, which the domain tests enforce.
type ActivityType string

const (
	ActivitySlotPurchase ActivityType = "slot_purchase"
	ActivityClaim        ActivityType = "claim"
	ActivityExpiryClose  ActivityType = "expiry_close"
	ActivityDeposit      ActivityType = "deposit"
	ActivityBonus        ActivityType = "bonus"
	ActivityPenalty      ActivityType = "penalty"
)

// AllActivityTypes lists every defined kind, for validation and tests.
var AllActivityTypes = []ActivityType{
	ActivitySlotPurchase,
	ActivityClaim,
	ActivityExpiryClose,
	ActivityDeposit,
	ActivityBonus,
	ActivityPenalty,
}

// Valid reports whether t is a defined activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivitySlotPurchase, ActivityClaim, ActivityExpiryClose,
		ActivityDeposit, ActivityBonus, ActivityPenalty:
		return true
	}
	return false
}

// Describe returns a human-readable label for the activity kind.
func (t ActivityType) Describe() string {
	switch t {
	case ActivitySlotPurchase:
		return "Slot purchased"
	case ActivityClaim:
		return "Earnings claimed"
	case ActivityExpiryClose:
		return "Slot expired and finalized"
	case ActivityDeposit:
		return "Funds deposited"
	case ActivityBonus:
		return "Bonus credited"
	case ActivityPenalty:
		return "Penalty applied"
	}
	return "Unknown activity"
}

// ActivityEntry is an immutable append-only record of a balance-affecting
// event. It is the audit trail and the source of truth for reconciling
// disputed balances. Entries are never updated or deleted.
type ActivityEntry struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OwnerID   int64           `db:"owner_id" json:"owner_id"`
	Type      ActivityType    `db:"type" json:"type"`
	Amount    decimal.Decimal `db:"amount" json:"amount"` // signed delta applied to the wallet
	Currency  string          `db:"currency" json:"currency"`
	SlotCount int             `db:"slot_count" json:"slot_count"` // slots covered by this entry (claims, expiries)
	Detail    string          `db:"detail" json:"detail"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NewActivityEntry creates a new ActivityEntry instance.
func NewActivityEntry(ownerID int64, typ ActivityType, amount decimal.Decimal, currency string, slotCount int, detail string) *ActivityEntry {
	return &ActivityEntry{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Type:      typ,
		Amount:    amount,
		Currency:  currency,
		SlotCount: slotCount,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}
