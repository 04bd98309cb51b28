package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultPriceTTL is the freshness window for cached prices.
const DefaultPriceTTL = time.Hour

// PriceCache holds the last settled price per cohort.
type PriceCache interface {
	// Get returns the cohort's quote if one exists and is still fresh.
	// Misses, expiry and backend faults all read as absent.
	Get(ctx context.Context, cohortID string) (domain.PriceQuote, bool)
	// Set overwrites the cohort's quote unconditionally.
	Set(ctx context.Context, cohortID string, price decimal.Decimal, now time.Time) error
}

// MemoryPriceCache is a thread-safe in-process PriceCache.
type MemoryPriceCache struct {
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	quotes map[string]domain.PriceQuote
}

// NewMemoryPriceCache creates a cache whose entries expire after ttl.
// A nil clock defaults to time.Now.
func NewMemoryPriceCache(ttl time.Duration, clock func() time.Time) *MemoryPriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryPriceCache{
		ttl:    ttl,
		now:    clock,
		quotes: make(map[string]domain.PriceQuote),
	}
}

func (c *MemoryPriceCache) Get(_ context.Context, cohortID string) (domain.PriceQuote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[cohortID]
	c.mu.RUnlock()

	if !ok || !q.FreshAt(c.now(), c.ttl) {
		return domain.PriceQuote{}, false
	}
	return q, true
}

func (c *MemoryPriceCache) Set(_ context.Context, cohortID string, price decimal.Decimal, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.quotes[cohortID] = domain.PriceQuote{CohortID: cohortID, Price: price, ObservedAt: now}
	return nil
}
