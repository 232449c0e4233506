// internal/service/fakes_test.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"slotmine/internal/domain"
	"slotmine/internal/notify"
	"slotmine/internal/repository"
	"slotmine/internal/util"
	"slotmine/pkg/db"
)

// fakeStore is a stateful in-memory stand-in for the PostgreSQL
// repositories. One instance implements all four repository interfaces.
// beginTx takes the store lock and snapshots state, so a rollback restores
// it the way an aborted transaction would, and concurrent transactions
// serialize the way row locks serialize them in the real store.
type fakeStore struct {
	mu           sync.Mutex
	users        map[int64]domain.User
	wallets      map[int64]domain.Wallet
	slots        map[uuid.UUID]domain.Slot
	activity     []domain.ActivityEntry
	nextUserID   int64
	nextWalletID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]domain.User),
		wallets: make(map[int64]domain.Wallet),
		slots:   make(map[uuid.UUID]domain.Slot),
	}
}

type storeSnapshot struct {
	users        map[int64]domain.User
	wallets      map[int64]domain.Wallet
	slots        map[uuid.UUID]domain.Slot
	activity     []domain.ActivityEntry
	nextUserID   int64
	nextWalletID int64
}

// snapshot must be called with mu held.
func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		users:        make(map[int64]domain.User, len(s.users)),
		wallets:      make(map[int64]domain.Wallet, len(s.wallets)),
		slots:        make(map[uuid.UUID]domain.Slot, len(s.slots)),
		activity:     append([]domain.ActivityEntry(nil), s.activity...),
		nextUserID:   s.nextUserID,
		nextWalletID: s.nextWalletID,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.wallets {
		snap.wallets[k] = v
	}
	for k, v := range s.slots {
		snap.slots[k] = v
	}
	return snap
}

// restore must be called with mu held.
func (s *fakeStore) restore(snap storeSnapshot) {
	s.users = snap.users
	s.wallets = snap.wallets
	s.slots = snap.slots
	s.activity = snap.activity
	s.nextUserID = snap.nextUserID
	s.nextWalletID = snap.nextWalletID
}

// fakeTx implements db.TxController and repository.DBExecutor. The
// executor methods are never reached because the fake repositories keep
// their state in the store, not in SQL.
type fakeTx struct {
	store *fakeStore
	snap  storeSnapshot
	done  bool
}

func (t *fakeTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.store.restore(t.snap)
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (t *fakeTx) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

// fakeConn stands in for the non-transactional *sqlx.DB executor.
type fakeConn struct{}

func (c *fakeConn) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (c *fakeConn) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

// Transaction control funcs injected into the services under test.

func (s *fakeStore) beginTx(ctx context.Context, _ db.DBTxBeginner) (db.TxController, error) {
	s.mu.Lock()
	return &fakeTx{store: s, snap: s.snapshot()}, nil
}

func commitFakeTx(tx db.TxController) error {
	return tx.Commit()
}

func rollbackFakeTx(tx db.TxController) {
	_ = tx.Rollback()
}

// lockIfNeeded takes the store lock for calls arriving outside a
// transaction; inside one, the lock is already held by the fakeTx.
func (s *fakeStore) lockIfNeeded(q repository.DBExecutor) func() {
	if _, inTx := q.(*fakeTx); inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// UserRepository

func (s *fakeStore) CreateUser(ctx context.Context, q repository.DBExecutor, user *domain.User) error {
	defer s.lockIfNeeded(q)()
	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.ID] = *user
	return nil
}

func (s *fakeStore) GetUserByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.User, error) {
	defer s.lockIfNeeded(q)()
	user, ok := s.users[id]
	if !ok {
		return nil, util.ErrOwnerNotFound
	}
	return &user, nil
}

func (s *fakeStore) GetUserByUsername(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error) {
	defer s.lockIfNeeded(q)()
	for _, user := range s.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, util.ErrOwnerNotFound
}

// WalletRepository

func (s *fakeStore) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	defer s.lockIfNeeded(q)()
	s.nextWalletID++
	wallet.ID = s.nextWalletID
	s.wallets[wallet.ID] = *wallet
	return nil
}

func (s *fakeStore) GetWalletByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64, currency string) (*domain.Wallet, error) {
	defer s.lockIfNeeded(q)()
	for _, wallet := range s.wallets {
		if wallet.OwnerID == ownerID && wallet.Currency == currency {
			w := wallet
			return &w, nil
		}
	}
	return nil, util.ErrWalletNotFound
}

func (s *fakeStore) AdjustBalance(ctx context.Context, q repository.DBExecutor, walletID int64, delta decimal.Decimal) error {
	defer s.lockIfNeeded(q)()
	wallet, ok := s.wallets[walletID]
	if !ok {
		return util.ErrWalletNotFound
	}
	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		return fmt.Errorf("wallet %d: %w", walletID, util.ErrInsufficientBalance)
	}
	wallet.Balance = newBalance
	s.wallets[walletID] = wallet
	return nil
}

// SlotRepository

func (s *fakeStore) CreateSlot(ctx context.Context, q repository.DBExecutor, slot *domain.Slot) error {
	defer s.lockIfNeeded(q)()
	s.slots[slot.ID] = *slot
	return nil
}

func (s *fakeStore) GetSlotByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Slot, error) {
	defer s.lockIfNeeded(q)()
	slot, ok := s.slots[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &slot, nil
}

func (s *fakeStore) GetActiveSlotsByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64) ([]domain.Slot, error) {
	defer s.lockIfNeeded(q)()
	return s.activeSlotsByOwnerLocked(ownerID), nil
}

func (s *fakeStore) GetActiveSlotsByOwnerForUpdate(ctx context.Context, q repository.DBExecutor, ownerID int64) ([]domain.Slot, error) {
	defer s.lockIfNeeded(q)()
	return s.activeSlotsByOwnerLocked(ownerID), nil
}

func (s *fakeStore) activeSlotsByOwnerLocked(ownerID int64) []domain.Slot {
	var slots []domain.Slot
	for _, slot := range s.slots {
		if slot.OwnerID == ownerID && slot.IsActive {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].StartAt.Equal(slots[j].StartAt) {
			return slots[i].StartAt.Before(slots[j].StartAt)
		}
		return slots[i].ID.String() < slots[j].ID.String()
	})
	return slots
}

func (s *fakeStore) GetExpiredActiveSlotsForUpdate(ctx context.Context, q repository.DBExecutor, after, asOf time.Time, limit int) ([]domain.Slot, error) {
	defer s.lockIfNeeded(q)()
	var slots []domain.Slot
	for _, slot := range s.slots {
		if slot.IsActive && slot.ExpiresAt.After(after) && !slot.ExpiresAt.After(asOf) {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ExpiresAt.Before(slots[j].ExpiresAt) })
	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

func (s *fakeStore) GetStaleActiveSlotsForUpdate(ctx context.Context, q repository.DBExecutor, after, cutoff time.Time, limit int) ([]domain.Slot, error) {
	defer s.lockIfNeeded(q)()
	var slots []domain.Slot
	for _, slot := range s.slots {
		if slot.IsActive && slot.LastAccruedAt.After(after) && !slot.LastAccruedAt.After(cutoff) {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].LastAccruedAt.Before(slots[j].LastAccruedAt) })
	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

func (s *fakeStore) CheckpointSlot(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID, accruedAt time.Time, delta decimal.Decimal) error {
	defer s.lockIfNeeded(q)()
	slot, ok := s.slots[slotID]
	if !ok || !slot.IsActive || slot.LastAccruedAt.After(accruedAt) {
		return fmt.Errorf("slot %s: %w", slotID, util.ErrSlotInactive)
	}
	slot.LastAccruedAt = accruedAt
	slot.AccruedEarnings = slot.AccruedEarnings.Add(delta)
	slot.UpdatedAt = accruedAt
	s.slots[slotID] = slot
	return nil
}

func (s *fakeStore) ResetCheckpoint(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID, accruedAt time.Time) error {
	defer s.lockIfNeeded(q)()
	slot, ok := s.slots[slotID]
	if !ok || !slot.IsActive || slot.LastAccruedAt.After(accruedAt) {
		return fmt.Errorf("slot %s: %w", slotID, util.ErrSlotInactive)
	}
	slot.LastAccruedAt = accruedAt
	slot.AccruedEarnings = decimal.Zero
	slot.UpdatedAt = accruedAt
	s.slots[slotID] = slot
	return nil
}

func (s *fakeStore) FinalizeSlot(ctx context.Context, q repository.DBExecutor, slotID uuid.UUID) error {
	defer s.lockIfNeeded(q)()
	slot, ok := s.slots[slotID]
	if !ok || !slot.IsActive {
		return fmt.Errorf("slot %s: %w", slotID, util.ErrSlotInactive)
	}
	slot.LastAccruedAt = slot.ExpiresAt
	slot.AccruedEarnings = decimal.Zero
	slot.IsActive = false
	s.slots[slotID] = slot
	return nil
}

func (s *fakeStore) CountSlots(ctx context.Context, q repository.DBExecutor, asOf time.Time, soonWindow time.Duration) (*repository.SlotCounts, error) {
	defer s.lockIfNeeded(q)()
	counts := &repository.SlotCounts{}
	soon := asOf.Add(soonWindow)
	for _, slot := range s.slots {
		if !slot.IsActive {
			continue
		}
		counts.Active++
		if !slot.ExpiresAt.After(asOf) {
			counts.ExpiredPending++
		} else if !slot.ExpiresAt.After(soon) {
			counts.ExpiringSoon++
		}
	}
	return counts, nil
}

// ActivityRepository

func (s *fakeStore) CreateEntry(ctx context.Context, q repository.DBExecutor, entry *domain.ActivityEntry) error {
	defer s.lockIfNeeded(q)()
	s.activity = append(s.activity, *entry)
	return nil
}

func (s *fakeStore) GetEntriesByOwner(ctx context.Context, q repository.DBExecutor, ownerID int64, limit, offset int) ([]domain.ActivityEntry, int64, error) {
	defer s.lockIfNeeded(q)()
	var owned []domain.ActivityEntry
	for i := len(s.activity) - 1; i >= 0; i-- {
		if s.activity[i].OwnerID == ownerID {
			owned = append(owned, s.activity[i])
		}
	}
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}
	return owned, total, nil
}

// Test seeding and inspection helpers.

func (s *fakeStore) seedOwner(username string, balance decimal.Decimal, currency string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	ownerID := s.nextUserID
	s.users[ownerID] = domain.User{ID: ownerID, Username: username}
	s.nextWalletID++
	s.wallets[s.nextWalletID] = domain.Wallet{ID: s.nextWalletID, OwnerID: ownerID, Currency: currency, Balance: balance}
	return ownerID
}

func (s *fakeStore) seedSlot(slot *domain.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = *slot
}

func (s *fakeStore) slotByID(id uuid.UUID) domain.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id]
}

func (s *fakeStore) balanceOf(ownerID int64, currency string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.OwnerID == ownerID && wallet.Currency == currency {
			return wallet.Balance
		}
	}
	return decimal.Zero
}

func (s *fakeStore) entriesOf(ownerID int64, typ domain.ActivityType) []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []domain.ActivityEntry
	for _, entry := range s.activity {
		if entry.OwnerID == ownerID && entry.Type == typ {
			entries = append(entries, entry)
		}
	}
	return entries
}

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) byKind(kind string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []notify.Event
	for _, event := range r.events {
		if event.Kind == kind {
			events = append(events, event)
		}
	}
	return events
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
