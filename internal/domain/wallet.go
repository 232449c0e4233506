// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds one balance per (owner, currency). The balance is never
// negative; every mutation happens inside a transaction that also records
// the cause as an ActivityEntry.
type Wallet struct {
	ID        int64           `db:"id" json:"id"`
	OwnerID   int64           `db:"owner_id" json:"owner_id"`
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"` // NUMERIC(20, 8) in DB
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// NewWallet creates a new Wallet instance with a zero balance.
func NewWallet(ownerID int64, currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		OwnerID:   ownerID,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
