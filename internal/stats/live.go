// internal/stats/live.go
package stats

import (
	"sync"
	"time"
)

type batchRecord struct {
	at    time.Time
	count int64
}

// Live holds ephemeral display counters for the processing-status endpoint.
// It is injected into the components that update and read it rather than
// living as an ambient global, and can be reset on demand.
type Live struct {
	mu        sync.Mutex
	batches   []batchRecord
	lastRunAt time.Time
}

// NewLive creates an empty Live stats holder.
func NewLive() *Live {
	return &Live{}
}

// RecordRun records a processing run that finalized count slots at the
// given time.
func (l *Live) RecordRun(at time.Time, count int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRunAt = at
	if count > 0 {
		l.batches = append(l.batches, batchRecord{at: at, count: count})
	}
	l.prune(at)
}

// ProcessedLastHour returns how many slots were finalized in the hour
// before now.
func (l *Live) ProcessedLastHour(now time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	var total int64
	for _, rec := range l.batches {
		total += rec.count
	}
	return total
}

// LastRunAt returns when the processor last completed a run.
func (l *Live) LastRunAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRunAt
}

// Reset clears all counters.
func (l *Live) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = nil
	l.lastRunAt = time.Time{}
}

// prune drops records older than an hour. Caller holds the lock.
func (l *Live) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := l.batches[:0]
	for _, rec := range l.batches {
		if rec.at.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	l.batches = kept
}
