// Package broadcast fans settled prices out to live subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Event is a price change for one cohort.
type Event struct {
	CohortID string          `json:"cohort_id"`
	Price    decimal.Decimal `json:"price"`
}

// Subscription is one live receiver. A non-empty Filter restricts it to a
// single cohort.
type Subscription struct {
	ID     uint64
	Filter string

	hub    *Hub
	events chan Event
	closed bool // guarded by hub.mu
}

// Events delivers matching events in publish order. The channel is closed
// when the subscription or the hub is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close removes the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) matches(cohortID string) bool {
	return s.Filter == "" || s.Filter == cohortID
}

// Hub holds the live subscriber set. Delivery is best effort: a
// subscriber whose queue is full misses the event, and nobody receives
// events published before they subscribed.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	buffer int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub whose subscribers queue up to buffer events.
func NewHub(buffer int, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers a new subscription. filter may be empty to receive
// every cohort. Subscribing to a closed hub returns an already closed
// subscription.
func (h *Hub) Subscribe(filter string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{
		ID:     h.nextID,
		Filter: filter,
		hub:    h,
		events: make(chan Event, h.buffer),
	}
	if h.closed {
		s.closed = true
		close(s.events)
		return s
	}
	h.subs[s.ID] = s
	h.metrics.SubscriberAdded()
	return s
}

// Publish delivers {cohortID, price} to every matching subscription
// without blocking.
func (h *Hub) Publish(cohortID string, price decimal.Decimal) {
	ev := Event{CohortID: cohortID, Price: price}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.metrics.EventPublished()
	for _, s := range h.subs {
		if !s.matches(cohortID) {
			continue
		}
		select {
		case s.events <- ev:
		default:
			h.metrics.EventDropped()
			h.logger.Warn("subscriber queue full, dropping price event",
				"subscription_id", s.ID,
				"cohort_id", cohortID,
			)
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		s.closed = true
		close(s.events)
		delete(h.subs, id)
		h.metrics.SubscriberRemoved()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
	delete(h.subs, s.ID)
	h.metrics.SubscriberRemoved()
}
