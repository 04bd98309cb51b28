package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/store"
)

// PriceResponse is a cohort's last settled price. Price and ObservedAt are
// nil when there is no fresh quote.
type PriceResponse struct {
	CohortID   string
	Price      *decimal.Decimal
	ObservedAt *time.Time
}

// CohortService answers read-only cohort queries.
type CohortService struct {
	cohorts *store.CohortStore
	prices  store.PriceCache
	ledger  store.Ledger
}

// NewCohortService creates a new CohortService with the given dependencies.
func NewCohortService(cohorts *store.CohortStore, prices store.PriceCache, ledger store.Ledger) *CohortService {
	return &CohortService{
		cohorts: cohorts,
		prices:  prices,
		ledger:  ledger,
	}
}

// List returns every cohort sorted by id.
func (s *CohortService) List() []*domain.Cohort {
	return s.cohorts.List()
}

// Get returns a cohort or domain.ErrCohortNotFound.
func (s *CohortService) Get(cohortID string) (*domain.Cohort, error) {
	return s.cohorts.Get(cohortID)
}

// Price returns the cohort's last settled price if it is still fresh.
func (s *CohortService) Price(ctx context.Context, cohortID string) (*PriceResponse, error) {
	if !s.cohorts.Exists(cohortID) {
		return nil, domain.ErrCohortNotFound
	}

	resp := &PriceResponse{CohortID: cohortID}
	if q, ok := s.prices.Get(ctx, cohortID); ok {
		resp.Price = &q.Price
		resp.ObservedAt = &q.ObservedAt
	}
	return resp, nil
}

// Trades returns the cohort's trades settled at or after since. A zero
// since returns the full history.
func (s *CohortService) Trades(ctx context.Context, cohortID string, since time.Time) ([]domain.Trade, error) {
	if !s.cohorts.Exists(cohortID) {
		return nil, domain.ErrCohortNotFound
	}
	return s.ledger.ListByCohort(ctx, cohortID, since)
}
