// Package settlement defines the custody boundary the trade engine settles
// through, plus an in-process paper implementation and an HTTP client.
package settlement

import (
	"context"
	"time"
)

// TransferRequest moves Amount tokens of a cohort between two holders.
// IdempotencyKey is the trade's transaction id.
type TransferRequest struct {
	CohortID       string
	TokenAddress   string
	From           string
	To             string
	Amount         int64
	IdempotencyKey string
}

// Receipt confirms a completed transfer.
type Receipt struct {
	IdempotencyKey string
	CohortID       string
	From           string
	To             string
	Amount         int64
	SettledAt      time.Time
}

// Gateway executes transfers against actual custody.
//
// Transfer must be idempotent per IdempotencyKey: a repeated key returns
// the original receipt without moving tokens again. Failures are reported
// as *domain.SettlementError.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
	AvailableSupply(ctx context.Context, cohortID, holder string) (int64, error)
	Lookup(ctx context.Context, idempotencyKey string) (Receipt, bool, error)
	Transfers(ctx context.Context, since time.Time) ([]Receipt, error)
}
