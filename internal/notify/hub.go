// internal/notify/hub.go
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SlotCheckpoint is the per-slot state pushed to live views after a
// mutation: the new checkpoint boundary and what remains realized.
type SlotCheckpoint struct {
	SlotID          uuid.UUID       `json:"slot_id"`
	LastAccruedAt   time.Time       `json:"last_accrued_at"`
	AccruedEarnings decimal.Decimal `json:"accrued_earnings"`
	IsActive        bool            `json:"is_active"`
}

// Event is a post-mutation delta for one owner. The transport layer
// (WebSocket, external to this engine) delivers it to connected clients.
type Event struct {
	OwnerID    int64            `json:"owner_id"`
	Kind       string           `json:"kind"` // "claim", "expiry", "purchase", "adjustment"
	NewBalance decimal.Decimal  `json:"new_balance"`
	Amount     decimal.Decimal  `json:"amount"`
	Slots      []SlotCheckpoint `json:"slots,omitempty"`
	At         time.Time        `json:"at"`
}

// Notifier pushes post-mutation deltas to subscribed live views.
type Notifier interface {
	Publish(ev Event)
}

// Hub fans events out to per-owner subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event and resyncs on its next
// poll, which is safe because events are deltas over authoritative store
// state.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[int]chan Event
	nextID int
	closed bool
	logger *slog.Logger
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[int64]map[int]chan Event),
		logger: logger.With("component", "notify"),
	}
}

// Subscribe registers a buffered subscription for one owner. The returned
// cancel func must be called to release it.
func (h *Hub) Subscribe(ownerID int64, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan Event)
	}
	h.subs[ownerID][id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if owners, ok := h.subs[ownerID]; ok {
			if sub, ok := owners[id]; ok {
				delete(owners, id)
				close(sub)
			}
			if len(owners) == 0 {
				delete(h.subs, ownerID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers ev to the owner's subscribers without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[ev.OwnerID] {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping notification for slow subscriber", "owner_id", ev.OwnerID, "kind", ev.Kind)
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ownerID, owners := range h.subs {
		for id, ch := range owners {
			close(ch)
			delete(owners, id)
		}
		delete(h.subs, ownerID)
	}
}
