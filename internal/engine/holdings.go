package engine

import (
	"context"
	"sort"

	"github.com/efreitasn/cohortex/internal/store"
	"github.com/shopspring/decimal"
)

// HoldingValue is one cohort position valued at the latest fresh price.
type HoldingValue struct {
	CohortID    string
	Amount      int64
	LatestPrice decimal.Decimal
	Value       decimal.Decimal
}

// Portfolio is a wallet's valued holdings.
type Portfolio struct {
	WalletID   string
	Holdings   []HoldingValue // sorted by cohort id
	TotalValue decimal.Decimal
}

// Projector derives positions by folding the ledger. It keeps no state of
// its own, so every read reflects every committed trade.
type Projector struct {
	ledger store.Ledger
	prices store.PriceCache
}

// NewProjector creates a Projector over the given ledger and price cache.
func NewProjector(ledger store.Ledger, prices store.PriceCache) *Projector {
	return &Projector{ledger: ledger, prices: prices}
}

// PositionOf returns the wallet's net position in cohortID.
func (p *Projector) PositionOf(ctx context.Context, walletID, cohortID string) (int64, error) {
	trades, err := p.ledger.ListByWallet(ctx, walletID)
	if err != nil {
		return 0, err
	}
	var position int64
	for _, t := range trades {
		if t.CohortID == cohortID {
			position += t.SignedAmount()
		}
	}
	return position, nil
}

// Positions returns every cohort position of the wallet, including zero
// and negative ones.
func (p *Projector) Positions(ctx context.Context, walletID string) (map[string]int64, error) {
	trades, err := p.ledger.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	positions := make(map[string]int64)
	for _, t := range trades {
		positions[t.CohortID] += t.SignedAmount()
	}
	return positions, nil
}

// PortfolioOf values the wallet's positive positions. A cohort with no
// fresh quote is valued at zero.
func (p *Projector) PortfolioOf(ctx context.Context, walletID string) (Portfolio, error) {
	positions, err := p.Positions(ctx, walletID)
	if err != nil {
		return Portfolio{}, err
	}

	pf := Portfolio{
		WalletID:   walletID,
		Holdings:   make([]HoldingValue, 0, len(positions)),
		TotalValue: decimal.Zero,
	}
	for cohortID, amount := range positions {
		if amount <= 0 {
			continue
		}
		price := decimal.Zero
		if q, ok := p.prices.Get(ctx, cohortID); ok {
			price = q.Price
		}
		value := price.Mul(decimal.NewFromInt(amount))
		pf.Holdings = append(pf.Holdings, HoldingValue{
			CohortID:    cohortID,
			Amount:      amount,
			LatestPrice: price,
			Value:       value,
		})
		pf.TotalValue = pf.TotalValue.Add(value)
	}
	sort.Slice(pf.Holdings, func(i, j int) bool {
		return pf.Holdings[i].CohortID < pf.Holdings[j].CohortID
	})
	return pf, nil
}
