// internal/service/ownerlock.go
package service

import (
	"context"
	"sync"
	"time"

	"slotmine/internal/util"
)

// ownerLocks serializes claim execution per owner so two concurrent claims
// can never credit the same accrual window. Lock acquisition is bounded:
// a caller that cannot acquire within the timeout gets
// util.ErrConcurrencyConflict instead of hanging a user-facing request.
type ownerLocks struct {
	mu   sync.Mutex
	sems map[int64]chan struct{}
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{sems: make(map[int64]chan struct{})}
}

// acquire takes the owner's lock, waiting at most timeout. The returned
// release func must be called exactly once.
func (l *ownerLocks) acquire(ctx context.Context, ownerID int64, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[ownerID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[ownerID] = sem
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, util.ErrConcurrencyConflict
	case <-ctx.Done():
		return nil, util.ErrConcurrencyConflict
	}
}
