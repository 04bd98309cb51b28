package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
)

// PaperGateway is an in-process custody book. It keeps per-cohort
// balances and a receipt log, and is what the service runs against when
// no external custody service is configured.
type PaperGateway struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // cohort → holder → balance
	receipts map[string]Receipt          // idempotency key → receipt
	log      []Receipt                   // settlement order
	latency  time.Duration
	now      func() time.Time
	fault    func(req TransferRequest) error
}

// NewPaperGateway creates an empty custody book.
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		balances: make(map[string]map[string]int64),
		receipts: make(map[string]Receipt),
		now:      time.Now,
	}
}

// SetLatency makes every Transfer wait d before settling, which lets tests
// exercise deadlines and lock hold times.
func (g *PaperGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// SetFault installs a hook that may reject a transfer before it settles.
// A nil hook clears it.
func (g *PaperGateway) SetFault(f func(req TransferRequest) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fault = f
}

// Mint credits amount tokens of cohortID to holder.
func (g *PaperGateway) Mint(cohortID, holder string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holder(cohortID)[holder] += amount
}

// Balance returns holder's balance in cohortID.
func (g *PaperGateway) Balance(cohortID, holder string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[cohortID][holder]
}

// TransferCount returns how many distinct transfers have settled.
func (g *PaperGateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.log)
}

// holder must be called with g.mu held.
func (g *PaperGateway) holder(cohortID string) map[string]int64 {
	m, ok := g.balances[cohortID]
	if !ok {
		m = make(map[string]int64)
		g.balances[cohortID] = m
	}
	return m
}

func (g *PaperGateway) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	g.mu.Lock()
	if r, ok := g.receipts[req.IdempotencyKey]; ok {
		g.mu.Unlock()
		return r, nil
	}
	latency, fault := g.latency, g.fault
	g.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Receipt{}, &domain.SettlementError{Reason: "transfer timed out: " + ctx.Err().Error()}
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, &domain.SettlementError{Reason: "transfer timed out: " + err.Error()}
	}
	if fault != nil {
		if err := fault(req); err != nil {
			return Receipt{}, &domain.SettlementError{Reason: err.Error()}
		}
	}
	if req.Amount <= 0 {
		return Receipt{}, &domain.SettlementError{Reason: "amount must be positive"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// A concurrent call with the same key may have won while we waited.
	if r, ok := g.receipts[req.IdempotencyKey]; ok {
		return r, nil
	}

	book := g.holder(req.CohortID)
	if book[req.From] < req.Amount {
		return Receipt{}, &domain.SettlementError{
			Reason: fmt.Sprintf("insufficient custody balance for %s: have %d, need %d", req.From, book[req.From], req.Amount),
		}
	}
	book[req.From] -= req.Amount
	book[req.To] += req.Amount

	r := Receipt{
		IdempotencyKey: req.IdempotencyKey,
		CohortID:       req.CohortID,
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		SettledAt:      g.now().UTC(),
	}
	g.receipts[req.IdempotencyKey] = r
	g.log = append(g.log, r)
	return r, nil
}

func (g *PaperGateway) AvailableSupply(_ context.Context, cohortID, holder string) (int64, error) {
	return g.Balance(cohortID, holder), nil
}

func (g *PaperGateway) Lookup(_ context.Context, key string) (Receipt, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.receipts[key]
	return r, ok, nil
}

func (g *PaperGateway) Transfers(_ context.Context, since time.Time) ([]Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make([]Receipt, 0)
	for _, r := range g.log {
		if !r.SettledAt.Before(since) {
			result = append(result, r)
		}
	}
	return result, nil
}
