// internal/repository/wallet_repo.go
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"slotmine/internal/domain"
)

// WalletRepository defines the interface for wallet data operations.
type WalletRepository interface {
	// CreateWallet adds a new wallet using the provided DBExecutor.
	CreateWallet(ctx context.Context, q DBExecutor, wallet *domain.Wallet) error
	// GetWalletByOwner retrieves a wallet by owner ID and currency.
	GetWalletByOwner(ctx context.Context, q DBExecutor, ownerID int64, currency string) (*domain.Wallet, error)
	// AdjustBalance applies a signed delta to the wallet balance. The
	// database CHECK constraint rejects any adjustment that would drive the
	// balance negative.
	AdjustBalance(ctx context.Context, q DBExecutor, walletID int64, delta decimal.Decimal) error
}
