package domain

import "github.com/shopspring/decimal"

// FeePolicy is a two-tier fee schedule: every trade pays BaseRate on its
// notional, and trades larger than SurchargeThreshold units pay
// SurchargeRate on top.
type FeePolicy struct {
	BaseRate           decimal.Decimal
	SurchargeRate      decimal.Decimal
	SurchargeThreshold int64
}

// DefaultFeePolicy returns 2% base with a 1% surcharge above 500 units.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		BaseRate:           decimal.RequireFromString("0.02"),
		SurchargeRate:      decimal.RequireFromString("0.01"),
		SurchargeThreshold: 500,
	}
}

// Rate returns the fee rate applied to a trade of the given size.
func (p FeePolicy) Rate(amount int64) decimal.Decimal {
	if amount > p.SurchargeThreshold {
		return p.BaseRate.Add(p.SurchargeRate)
	}
	return p.BaseRate
}

// Compute returns the fee for amount units at price, rounded to cents.
func (p FeePolicy) Compute(amount int64, price decimal.Decimal) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(amount))
	return notional.Mul(p.Rate(amount)).Round(2)
}
