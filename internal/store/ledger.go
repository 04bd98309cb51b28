package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/google/btree"
)

// Ledger is the durable, append-only record of settled trades.
type Ledger interface {
	// Append records t. If a trade with the same TransactionID already
	// exists, the existing record is returned together with
	// domain.ErrDuplicateTransaction and nothing is written.
	Append(ctx context.Context, t domain.Trade) (domain.Trade, error)
	// Get returns domain.ErrTransactionNotFound when id is unknown.
	Get(ctx context.Context, id string) (domain.Trade, error)
	// ListByWallet returns the wallet's trades in insertion order.
	ListByWallet(ctx context.Context, walletID string) ([]domain.Trade, error)
	// ListByCohort returns the cohort's trades settled at or after since,
	// ordered by settlement time. A zero since returns every trade.
	ListByCohort(ctx context.Context, cohortID string, since time.Time) ([]domain.Trade, error)
}

// cohortEntry orders a cohort's trades by settlement time, then by
// append sequence for trades settled in the same instant.
type cohortEntry struct {
	settledAt time.Time
	seq       uint64
	trade     *domain.Trade
}

func cohortLess(a, b cohortEntry) bool {
	if !a.settledAt.Equal(b.settledAt) {
		return a.settledAt.Before(b.settledAt)
	}
	return a.seq < b.seq
}

// MemoryLedger is a thread-safe in-memory Ledger. Trades are indexed by
// transaction id, by wallet (append order) and by cohort in a B-tree
// keyed on settlement time.
type MemoryLedger struct {
	mu       sync.RWMutex
	seq      uint64
	byID     map[string]*domain.Trade
	byWallet map[string][]*domain.Trade
	byCohort map[string]*btree.BTreeG[cohortEntry]
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:     make(map[string]*domain.Trade),
		byWallet: make(map[string][]*domain.Trade),
		byCohort: make(map[string]*btree.BTreeG[cohortEntry]),
	}
}

func (l *MemoryLedger) Append(_ context.Context, t domain.Trade) (domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byID[t.TransactionID]; ok {
		return *existing, domain.ErrDuplicateTransaction
	}

	stored := t
	l.seq++
	l.byID[t.TransactionID] = &stored
	l.byWallet[t.WalletID] = append(l.byWallet[t.WalletID], &stored)

	tree, ok := l.byCohort[t.CohortID]
	if !ok {
		const degree = 32
		tree = btree.NewG[cohortEntry](degree, cohortLess)
		l.byCohort[t.CohortID] = tree
	}
	tree.ReplaceOrInsert(cohortEntry{settledAt: t.SettledAt, seq: l.seq, trade: &stored})

	return stored, nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.byID[id]
	if !ok {
		return domain.Trade{}, domain.ErrTransactionNotFound
	}
	return *t, nil
}

func (l *MemoryLedger) ListByWallet(_ context.Context, walletID string) ([]domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trades := l.byWallet[walletID]
	result := make([]domain.Trade, len(trades))
	for i, t := range trades {
		result[i] = *t
	}
	return result, nil
}

func (l *MemoryLedger) ListByCohort(_ context.Context, cohortID string, since time.Time) ([]domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Trade, 0)
	tree, ok := l.byCohort[cohortID]
	if !ok {
		return result, nil
	}

	// seq 0 sorts before every stored entry with the same timestamp.
	tree.AscendGreaterOrEqual(cohortEntry{settledAt: since}, func(e cohortEntry) bool {
		result = append(result, *e.trade)
		return true
	})
	return result, nil
}

// Len returns the number of recorded trades.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}
