// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"slotmine/internal/domain"
	"slotmine/internal/repository"
	"slotmine/internal/util"
)

// WalletRepository implements repository.WalletRepository for PostgreSQL.
type WalletRepository struct{}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) repository.WalletRepository {
	return &WalletRepository{}
}

// CreateWallet inserts a new wallet using the provided DBExecutor.
func (r *WalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	query := `INSERT INTO wallets (owner_id, currency, balance, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := q.QueryRowContext(ctx, query, wallet.OwnerID, wallet.Currency, wallet.Balance, wallet.CreatedAt, wallet.UpdatedAt).Scan(&wallet.ID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetWalletByOwner retrieves a wallet by owner ID and currency.
func (r *WalletRepository) GetWalletByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT id, owner_id, currency, balance, created_at, updated_at
              FROM wallets WHERE owner_id = $1 AND currency = $2`
	err := q.GetContext(ctx, &wallet, query, ownerID, currency)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet for owner %d (%s): %w", ownerID, currency, err)
	}
	return &wallet, nil
}

// AdjustBalance applies a signed delta to the wallet balance. The CHECK
// constraint on the balance column turns an overdraft into a query error,
// which is mapped to ErrInsufficientBalance.
func (r *WalletRepository) AdjustBalance(ctx context.Context, q repository.DBExecutor, walletID int64, delta decimal.Decimal) error {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = $2 WHERE id = $3`
	result, err := q.ExecContext(ctx, query, delta, time.Now().UTC(), walletID)
	if err != nil {
		if isCheckViolation(err) {
			return util.ErrInsufficientBalance
		}
		return fmt.Errorf("failed to adjust balance for wallet %d: %w", walletID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after adjusting wallet %d: %w", walletID, err)
	}
	if rowsAffected == 0 {
		return util.ErrWalletNotFound
	}
	return nil
}

// isCheckViolation reports whether err is the balance CHECK constraint
// firing (pq error class 23514).
func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}
