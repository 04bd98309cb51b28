package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is the most recent settled price for a cohort.
type PriceQuote struct {
	CohortID   string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// FreshAt reports whether the quote is still inside the freshness window at now.
func (q PriceQuote) FreshAt(now time.Time, window time.Duration) bool {
	return now.Before(q.ObservedAt.Add(window))
}
