// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsTotal tracks claim outcomes
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotmine_claims_total",
			Help: "The total number of claim operations by outcome",
		},
		[]string{"outcome"}, // credited, empty, conflict, error
	)

	// SlotsFinalized tracks slots closed by the expiry processor
	SlotsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slotmine_slots_finalized_total",
		Help: "The total number of expired slots finalized",
	})

	// SlotsCheckpointed tracks checkpoints written by the persistence job
	SlotsCheckpointed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slotmine_slots_checkpointed_total",
		Help: "The total number of slot accrual checkpoints persisted",
	})

	// ExpiryBatchSeconds tracks expiry sweep durations
	ExpiryBatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slotmine_expiry_batch_seconds",
		Help:    "Time taken by one expiry sweep in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// CacheRequests tracks cache lookups by result
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotmine_cache_requests_total",
			Help: "The total number of cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// SlotPurchases tracks slot purchases by outcome
	SlotPurchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotmine_slot_purchases_total",
			Help: "The total number of slot purchase attempts",
		},
		[]string{"outcome"}, // success, insufficient_balance, error
	)
)

// RecordClaim records a claim operation outcome
func RecordClaim(outcome string) {
	ClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordFinalized records n slots finalized by the expiry sweep
func RecordFinalized(n int) {
	SlotsFinalized.Add(float64(n))
}

// RecordCheckpointed records n slots checkpointed by the persistence job
func RecordCheckpointed(n int) {
	SlotsCheckpointed.Add(float64(n))
}

// RecordExpiryBatch records the duration of one expiry sweep
func RecordExpiryBatch(seconds float64) {
	ExpiryBatchSeconds.Observe(seconds)
}

// RecordPurchase records a slot purchase outcome
func RecordPurchase(outcome string) {
	SlotPurchases.WithLabelValues(outcome).Inc()
}
