// internal/service/slot_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// SlotProjection is one slot's contribution to the live-earnings view:
// the realized (checkpointed) portion plus the virtual delta since the
// last checkpoint.
type SlotProjection struct {
	SlotID        uuid.UUID       `json:"slot_id"`
	Principal     decimal.Decimal `json:"principal"`
	WeeklyRate    decimal.Decimal `json:"weekly_rate"`
	Realized      decimal.Decimal `json:"realized"`
	Virtual       decimal.Decimal `json:"virtual"`
	Total         decimal.Decimal `json:"total"`
	LastAccruedAt time.Time       `json:"last_accrued_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// EarningsProjection is the read-only aggregate the dashboard polls. It is
// the value wrapped by the cache layer.
type EarningsProjection struct {
	OwnerID       int64            `json:"owner_id"`
	Slots         []SlotProjection `json:"per_slot"`
	TotalAccrued  decimal.Decimal  `json:"total_accrued"`
	PerSecondRate decimal.Decimal  `json:"per_second_rate"`
	AsOf          time.Time        `json:"as_of"`
}

// SlotService defines slot purchase, wallet, and read-side business logic.
type SlotService interface {
	CreateOwner(ctx context.Context, username string) (*domain.User, *domain.Wallet, error)
	PurchaseSlot(ctx context.Context, ownerID int64, principal, weeklyRate decimal.Decimal, duration time.Duration) (*domain.Slot, error)
	GetProjectedEarnings(ctx context.Context, ownerID int64) (*EarningsProjection, error)
	Deposit(ctx context.Context, ownerID int64, amount decimal.Decimal) (*domain.Wallet, error)
	AdjustReward(ctx context.Context, ownerID int64, amount decimal.Decimal, typ domain.ActivityType, detail string) (*domain.Wallet, error)
	GetWallet(ctx context.Context, ownerID int64) (*domain.Wallet, error)
	GetActivity(ctx context.Context, ownerID int64, limit, offset int) ([]domain.ActivityEntry, int64, error)
}

// slotService implements the SlotService interface.
type slotService struct {
	dbBeginner   db.DBTxBeginner
	dbExecutor   repository.DBExecutor
	userRepo     repository.UserRepository
	walletRepo   repository.WalletRepository
	slotRepo     repository.SlotRepository
	activityRepo repository.ActivityRepository
	beginTx      db.BeginTxFunc
	commitTx     db.CommitTxFunc
	rollbackTx   db.RollbackTxFunc
	cache        cache.Cache
	notifier     notify.Notifier
	currency     string
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewSlotService creates a new instance of SlotService.
func NewSlotService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	slotRepo repository.SlotRepository,
	activityRepo repository.ActivityRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	c cache.Cache,
	notifier notify.Notifier,
	currency string,
	cacheTTL time.Duration,
) SlotService {
	return &slotService{
		dbBeginner:   dbBeginner,
		dbExecutor:   dbExecutor,
		userRepo:     userRepo,
		walletRepo:   walletRepo,
		slotRepo:     slotRepo,
		activityRepo: activityRepo,
		beginTx:      beginTx,
		commitTx:     commitTx,
		rollbackTx:   rollbackTx,
		cache:        c,
		notifier:     notifier,
		currency:     currency,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// CreateOwner creates a user together with an empty wallet atomically.
func (s *slotService) CreateOwner(ctx context.Context, username string) (*domain.User, *domain.Wallet, error) {
	if username == "" {
		return nil, nil, util.ErrInvalidInput
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, nil, fmt.Errorf("create owner: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, nil, fmt.Errorf("create owner: transaction controller does not implement DBExecutor")
	}

	if _, err := s.userRepo.GetUserByUsername(ctx, txExecutor, username); err == nil {
		return nil, nil, fmt.Errorf("create owner: username '%s': %w", username, util.ErrDuplicateEntry)
	} else if !util.IsError(err, util.ErrOwnerNotFound) {
		return nil, nil, fmt.Errorf("create owner: failed to check existing user: %w", err)
	}

	user := domain.NewUser(username)
	if err := s.userRepo.CreateUser(ctx, txExecutor, user); err != nil {
		return nil, nil, fmt.Errorf("create owner: failed to create user: %w", err)
	}

	wallet := domain.NewWallet(user.ID, s.currency)
	if err := s.walletRepo.CreateWallet(ctx, txExecutor, wallet); err != nil {
		return nil, nil, fmt.Errorf("create owner: failed to create wallet: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, nil, fmt.Errorf("create owner: failed to commit transaction: %w", err)
	}
	return user, wallet, nil
}

// PurchaseSlot debits the principal from the owner's wallet and inserts
// the slot in one atomic transaction.
func (s *slotService) PurchaseSlot(ctx context.Context, ownerID int64, principal, weeklyRate decimal.Decimal, duration time.Duration) (*domain.Slot, error) {
	if ownerID <= 0 || !principal.IsPositive() || !weeklyRate.IsPositive() || duration <= 0 {
		return nil, util.ErrInvalidInput
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("purchase slot: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("purchase slot: transaction controller does not implement DBExecutor")
	}

	wallet, err := s.walletRepo.GetWalletByOwner(ctx, txExecutor, ownerID, s.currency)
	if err != nil {
		return nil, fmt.Errorf("purchase slot: failed to get wallet for owner %d: %w", ownerID, err)
	}
	if wallet.Balance.LessThan(principal) {
		metrics.RecordPurchase("insufficient_balance")
		return nil, util.ErrInsufficientBalance
	}

	if err := s.walletRepo.AdjustBalance(ctx, txExecutor, wallet.ID, principal.Neg()); err != nil {
		metrics.RecordPurchase("error")
		return nil, fmt.Errorf("purchase slot: failed to debit wallet: %w", err)
	}

	slot := domain.NewSlot(ownerID, principal, weeklyRate, duration, s.now())
	if err := s.slotRepo.CreateSlot(ctx, txExecutor, slot); err != nil {
		metrics.RecordPurchase("error")
		return nil, fmt.Errorf("purchase slot: failed to create slot: %w", err)
	}

	entry := domain.NewActivityEntry(ownerID, domain.ActivitySlotPurchase, principal.Neg(), s.currency, 1, fmt.Sprintf("slot %s", slot.ID))
	if err := s.activityRepo.CreateEntry(ctx, txExecutor, entry); err != nil {
		metrics.RecordPurchase("error")
		return nil, fmt.Errorf("purchase slot: failed to create activity entry: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		metrics.RecordPurchase("error")
		return nil, fmt.Errorf("purchase slot: failed to commit transaction: %w", err)
	}

	// Invalidate before returning so the next read cannot see pre-purchase state.
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("purchase slot: failed to invalidate cache: %w", err)
	}

	s.notifier.Publish(notify.Event{
		OwnerID:    ownerID,
		Kind:       "purchase",
		NewBalance: wallet.Balance.Sub(principal),
		Amount:     principal.Neg(),
		Slots: []notify.SlotCheckpoint{{
			SlotID:          slot.ID,
			LastAccruedAt:   slot.LastAccruedAt,
			AccruedEarnings: slot.AccruedEarnings,
			IsActive:        true,
		}},
		At: s.now(),
	})
	metrics.RecordPurchase("success")
	return slot, nil
}

// GetProjectedEarnings returns the owner's live-earnings aggregate through
// the read-through cache.
func (s *slotService) GetProjectedEarnings(ctx context.Context, ownerID int64) (*EarningsProjection, error) {
	if ownerID <= 0 {
		return nil, util.ErrInvalidInput
	}

	missed := false
	var projection EarningsProjection
	err := s.cache.GetOrCompute(ctx, cache.EarningsKey(ownerID), s.cacheTTL, &projection, func(ctx context.Context) (interface{}, error) {
		missed = true
		return s.computeProjection(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	if missed {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
	}
	return &projection, nil
}

// computeProjection builds the aggregate from authoritative store state.
func (s *slotService) computeProjection(ctx context.Context, ownerID int64) (*EarningsProjection, error) {
	if _, err := s.userRepo.GetUserByID(ctx, s.dbExecutor, ownerID); err != nil {
		return nil, err
	}

	slots, err := s.slotRepo.GetActiveSlotsByOwner(ctx, s.dbExecutor, ownerID)
	if err != nil {
		return nil, fmt.Errorf("projected earnings: failed to load slots for owner %d: %w", ownerID, err)
	}

	now := s.now()
	projection := &EarningsProjection{
		OwnerID:       ownerID,
		Slots:         make([]SlotProjection, 0, len(slots)),
		TotalAccrued:  decimal.Zero,
		PerSecondRate: decimal.Zero,
		AsOf:          now,
	}
	for _, slot := range slots {
		virtual := accrual.Project(slot.Principal, slot.WeeklyRate, slot.PendingElapsed(now))
		total := slot.AccruedEarnings.Add(virtual)
		projection.Slots = append(projection.Slots, SlotProjection{
			SlotID:        slot.ID,
			Principal:     slot.Principal,
			WeeklyRate:    slot.WeeklyRate,
			Realized:      slot.AccruedEarnings,
			Virtual:       virtual,
			Total:         total,
			LastAccruedAt: slot.LastAccruedAt,
			ExpiresAt:     slot.ExpiresAt,
		})
		projection.TotalAccrued = projection.TotalAccrued.Add(total)
		if !slot.Expired(now) {
			projection.PerSecondRate = projection.PerSecondRate.Add(accrual.PerSecondRate(slot.Principal, slot.WeeklyRate))
		}
	}
	return projection, nil
}

// Deposit credits the owner's wallet and records the cause.
func (s *slotService) Deposit(ctx context.Context, ownerID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	return s.adjust(ctx, ownerID, amount, domain.ActivityDeposit, "wallet deposit")
}

// AdjustReward applies a bonus or penalty to the owner's wallet.
func (s *slotService) AdjustReward(ctx context.Context, ownerID int64, amount decimal.Decimal, typ domain.ActivityType, detail string) (*domain.Wallet, error) {
	if typ != domain.ActivityBonus && typ != domain.ActivityPenalty {
		return nil, util.ErrInvalidInput
	}
	if typ == domain.ActivityPenalty && amount.IsPositive() {
		amount = amount.Neg()
	}
	return s.adjust(ctx, ownerID, amount, typ, detail)
}

func (s *slotService) adjust(ctx context.Context, ownerID int64, amount decimal.Decimal, typ domain.ActivityType, detail string) (*domain.Wallet, error) {
	if ownerID <= 0 || amount.IsZero() {
		return nil, util.ErrInvalidInput
	}
	if typ == domain.ActivityDeposit && !amount.IsPositive() {
		return nil, util.ErrInvalidInput
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("adjust: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("adjust: transaction controller does not implement DBExecutor")
	}

	wallet, err := s.walletRepo.GetWalletByOwner(ctx, txExecutor, ownerID, s.currency)
	if err != nil {
		return nil, fmt.Errorf("adjust: failed to get wallet for owner %d: %w", ownerID, err)
	}
	if amount.IsNegative() && wallet.Balance.LessThan(amount.Neg()) {
		return nil, util.ErrInsufficientBalance
	}

	if err := s.walletRepo.AdjustBalance(ctx, txExecutor, wallet.ID, amount); err != nil {
		return nil, fmt.Errorf("adjust: failed to adjust balance: %w", err)
	}

	entry := domain.NewActivityEntry(ownerID, typ, amount, s.currency, 0, detail)
	if err := s.activityRepo.CreateEntry(ctx, txExecutor, entry); err != nil {
		return nil, fmt.Errorf("adjust: failed to create activity entry: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("adjust: failed to commit transaction: %w", err)
	}

	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("adjust: failed to invalidate cache: %w", err)
	}

	wallet.Balance = wallet.Balance.Add(amount)
	s.notifier.Publish(notify.Event{
		OwnerID:    ownerID,
		Kind:       "adjustment",
		NewBalance: wallet.Balance,
		Amount:     amount,
		At:         s.now(),
	})
	return wallet, nil
}

// GetWallet retrieves the owner's wallet.
func (s *slotService) GetWallet(ctx context.Context, ownerID int64) (*domain.Wallet, error) {
	if ownerID <= 0 {
		return nil, util.ErrInvalidInput
	}
	wallet, err := s.walletRepo.GetWalletByOwner(ctx, s.dbExecutor, ownerID, s.currency)
	if err != nil {
		return nil, fmt.Errorf("get wallet: failed to get wallet for owner %d: %w", ownerID, err)
	}
	return wallet, nil
}

// GetActivity retrieves the owner's balance-affecting event history.
func (s *slotService) GetActivity(ctx context.Context, ownerID int64, limit, offset int) ([]domain.ActivityEntry, int64, error) {
	if ownerID <= 0 {
		return nil, 0, util.ErrInvalidInput
	}
	entries, totalCount, err := s.activityRepo.GetEntriesByOwner(ctx, s.dbExecutor, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("get activity: failed to load entries for owner %d: %w", ownerID, err)
	}
	return entries, totalCount, nil
}
