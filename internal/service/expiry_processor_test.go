// internal/service/expiry_processor_test.go
package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotmine/internal/cache"
	"slotmine/internal/domain"
	"slotmine/internal/stats"
	"slotmine/internal/util"
)

func defaultExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		Currency:     testCurrency,
		BatchSize:    200,
		BatchTimeout: 30 * time.Second,
		SoonWindow:   time.Hour,
	}
}

func newTestExpiryProcessor(store *fakeStore, cfg ExpiryConfig, at time.Time) (*ExpiryProcessor, *recordingNotifier) {
	notifier := &recordingNotifier{}
	p := NewExpiryProcessor(
		nil,
		&fakeConn{},
		store, store, store,
		store.beginTx, commitFakeTx, rollbackFakeTx,
		cache.NewMemoryCache(),
		notifier,
		stats.NewLive(),
		cfg,
		testLogger(),
	)
	p.now = fixedClock(at)
	return p, notifier
}

func TestExpiryProcessorRunNow(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	principal := decimal.NewFromInt(1000)
	weeklyRate := decimal.RequireFromString("0.007")

	t.Run("FinalizesExpiredSlot", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		slot := domain.NewSlot(ownerID, principal, weeklyRate, 7*24*time.Hour, start)
		store.seedSlot(slot)

		// A full rate week at 0.7% of 1000 is exactly 7, no matter how late
		// the sweep runs.
		proc, notifier := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(8*24*time.Hour))
		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.TotalSlots)
		assert.Equal(t, 1, summary.ProcessedSlots)
		assert.Equal(t, 0, summary.FailedSlots)
		assert.Empty(t, summary.Errors)

		assert.True(t, store.balanceOf(ownerID, testCurrency).Equal(decimal.NewFromInt(7)))

		stored := store.slotByID(slot.ID)
		assert.False(t, stored.IsActive)
		assert.True(t, stored.LastAccruedAt.Equal(slot.ExpiresAt))
		assert.True(t, stored.AccruedEarnings.IsZero())

		entries := store.entriesOf(ownerID, domain.ActivityExpiryClose)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(7)))

		events := notifier.byKind("expiry")
		require.Len(t, events, 1)
		assert.True(t, events[0].NewBalance.Equal(decimal.NewFromInt(7)))
	})

	t.Run("CheckpointedRemainderCredited", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		slot := domain.NewSlot(ownerID, principal, weeklyRate, 7*24*time.Hour, start)
		// Half the window was already realized by the persistence job.
		slot.AccruedEarnings = decimal.RequireFromString("3.5")
		slot.LastAccruedAt = start.Add(84 * time.Hour)
		store.seedSlot(slot)

		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(8*24*time.Hour))
		_, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		// Realized 3.5 plus the final half-window 3.5.
		assert.True(t, store.balanceOf(ownerID, testCurrency).Equal(decimal.NewFromInt(7)))
	})

	t.Run("SecondRunIsNoOp", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		store.seedSlot(domain.NewSlot(ownerID, principal, weeklyRate, 7*24*time.Hour, start))

		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(8*24*time.Hour))
		_, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, summary.TotalSlots)
		assert.Equal(t, 0, summary.ProcessedSlots)
		assert.True(t, store.balanceOf(ownerID, testCurrency).Equal(decimal.NewFromInt(7)))
	})

	t.Run("ActiveSlotUntouched", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		slot := domain.NewSlot(ownerID, principal, weeklyRate, 14*24*time.Hour, start)
		store.seedSlot(slot)

		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(24*time.Hour))
		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 0, summary.TotalSlots)
		assert.True(t, store.slotByID(slot.ID).IsActive)
		assert.True(t, store.balanceOf(ownerID, testCurrency).IsZero())
	})

	t.Run("PerSlotFailureIsolation", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		bad := domain.NewSlot(ownerID, principal, weeklyRate, 6*24*time.Hour, start)
		bad.WeeklyRate = decimal.RequireFromString("-0.007")
		store.seedSlot(bad)
		good := domain.NewSlot(ownerID, principal, weeklyRate, 7*24*time.Hour, start)
		store.seedSlot(good)

		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(8*24*time.Hour))
		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, summary.TotalSlots)
		assert.Equal(t, 1, summary.ProcessedSlots)
		assert.Equal(t, 1, summary.FailedSlots)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], bad.ID.String())

		assert.False(t, store.slotByID(good.ID).IsActive, "good slot finalized despite neighbor failure")
		assert.True(t, store.slotByID(bad.ID).IsActive, "bad slot left for inspection")
		assert.True(t, store.balanceOf(ownerID, testCurrency).Equal(decimal.NewFromInt(7)))
	})

	t.Run("OwnerWithoutWalletIsRecordedNotFatal", func(t *testing.T) {
		store := newFakeStore()
		walletless := func() int64 {
			store.mu.Lock()
			defer store.mu.Unlock()
			store.nextUserID++
			id := store.nextUserID
			store.users[id] = domain.User{ID: id, Username: "walletless"}
			return id
		}()
		store.seedSlot(domain.NewSlot(walletless, principal, weeklyRate, 6*24*time.Hour, start))

		funded := store.seedOwner("funded", decimal.Zero, testCurrency)
		fundedSlot := domain.NewSlot(funded, principal, weeklyRate, 7*24*time.Hour, start)
		store.seedSlot(fundedSlot)

		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start.Add(8*24*time.Hour))
		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.ProcessedSlots)
		assert.Equal(t, 1, summary.FailedSlots)
		assert.False(t, store.slotByID(fundedSlot.ID).IsActive)
	})

	t.Run("PagesThroughBatches", func(t *testing.T) {
		store := newFakeStore()
		ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
		for i := 0; i < 3; i++ {
			slot := domain.NewSlot(ownerID, principal, weeklyRate, time.Duration(i+1)*24*time.Hour, start)
			store.seedSlot(slot)
		}

		cfg := defaultExpiryConfig()
		cfg.BatchSize = 1
		proc, _ := newTestExpiryProcessor(store, cfg, start.Add(8*24*time.Hour))
		summary, err := proc.RunNow(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 3, summary.TotalSlots)
		assert.Equal(t, 3, summary.ProcessedSlots)
	})

	t.Run("OverlappingRunRefused", func(t *testing.T) {
		store := newFakeStore()
		proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), start)
		proc.running.Store(true)
		_, err := proc.RunNow(context.Background())
		assert.ErrorIs(t, err, util.ErrConcurrencyConflict)
	})
}

func TestExpiryProcessorStatus(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	principal := decimal.NewFromInt(100)
	weeklyRate := decimal.RequireFromString("0.01")

	store := newFakeStore()
	ownerID := store.seedOwner("miner", decimal.Zero, testCurrency)
	now := start.Add(48 * time.Hour)

	store.seedSlot(domain.NewSlot(ownerID, principal, weeklyRate, 24*time.Hour, start))        // expired
	store.seedSlot(domain.NewSlot(ownerID, principal, weeklyRate, 14*24*time.Hour, start))     // active
	store.seedSlot(domain.NewSlot(ownerID, principal, weeklyRate, 48*time.Hour+30*time.Minute, start)) // expiring soon

	proc, _ := newTestExpiryProcessor(store, defaultExpiryConfig(), now)

	status, err := proc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.ActiveSlots)
	assert.Equal(t, int64(1), status.ExpiredSlots)
	assert.Equal(t, int64(1), status.ExpiringSoon)
	assert.Equal(t, int64(0), status.ProcessedLastHour)
	assert.Nil(t, status.LastRunAt)

	_, err = proc.RunNow(context.Background())
	require.NoError(t, err)

	status, err = proc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.ActiveSlots)
	assert.Equal(t, int64(0), status.ExpiredSlots)
	assert.Equal(t, int64(1), status.ProcessedLastHour)
	require.NotNil(t, status.LastRunAt)
	assert.True(t, status.LastRunAt.Equal(now))
}
