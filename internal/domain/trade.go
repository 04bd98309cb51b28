package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a trade buys from or sells to the treasury.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Prices carry at most maxPriceScale fractional digits and
// maxPriceIntegerDigits digits before the point.
const (
	maxPriceScale         = 18
	maxPriceIntegerDigits = 15
)

var (
	walletIDRegex      = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	cohortIDRegex      = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	transactionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)
)

// ParseSide maps the wire value onto the closed Side set. Anything other
// than "buy" or "sell" is rejected.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", &ValidationError{Message: "side must be 'buy' or 'sell'"}
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// TradeRequest is a trade submission that has passed boundary validation.
type TradeRequest struct {
	TransactionID string // empty means "assign one"
	WalletID      string
	CohortID      string
	Amount        int64
	Price         decimal.Decimal
	Side          Side
}

// Validate checks the request invariants. It performs no I/O.
func (r TradeRequest) Validate() error {
	if r.TransactionID != "" && !transactionIDRegex.MatchString(r.TransactionID) {
		return &ValidationError{Message: "transaction_id must match ^[a-zA-Z0-9_.:-]{1,128}$"}
	}
	if !walletIDRegex.MatchString(r.WalletID) {
		return &ValidationError{Message: "wallet_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if !cohortIDRegex.MatchString(r.CohortID) {
		return &ValidationError{Message: "cohort_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if r.Amount <= 0 {
		return &ValidationError{Message: "amount must be a positive integer"}
	}
	if !r.Price.IsPositive() {
		return &ValidationError{Message: "price must be greater than 0"}
	}
	if err := validatePriceSize(r.Price); err != nil {
		return err
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return &ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	return nil
}

// validatePriceSize bounds the price's scale and magnitude. The exponent
// is checked before the coefficient is measured.
func validatePriceSize(p decimal.Decimal) error {
	exp := int64(p.Exponent())
	if exp < -maxPriceScale {
		return &ValidationError{Message: fmt.Sprintf("price must have at most %d decimal places", maxPriceScale)}
	}
	if exp > maxPriceIntegerDigits || int64(p.NumDigits())+exp > maxPriceIntegerDigits {
		return &ValidationError{Message: fmt.Sprintf("price must have at most %d digits before the decimal point", maxPriceIntegerDigits)}
	}
	return nil
}

// Trade is a settled trade as recorded in the ledger. Never mutated after append.
type Trade struct {
	TransactionID string
	WalletID      string
	CohortID      string
	Amount        int64
	Price         decimal.Decimal
	Side          Side
	Fee           decimal.Decimal
	SettledAt     time.Time
}

// SignedAmount is the trade's contribution to the wallet's position.
func (t Trade) SignedAmount() int64 {
	return t.Amount * t.Side.Sign()
}

// SamePair reports whether the trade belongs to the same (wallet, cohort)
// pair as the request.
func (t Trade) SamePair(r TradeRequest) bool {
	return t.WalletID == r.WalletID && t.CohortID == r.CohortID
}
