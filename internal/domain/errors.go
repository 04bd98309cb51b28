package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidInput         = errors.New("invalid_input")
	ErrCohortNotFound       = errors.New("cohort_not_found")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrInsufficientSupply   = errors.New("insufficient_supply")
	ErrSettlementFailed     = errors.New("settlement_failure")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrLedgerWrite          = errors.New("ledger_write_failure")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
)

// ValidationError represents a request validation failure.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// SettlementError carries the gateway's reason for a failed transfer.
// It matches ErrSettlementFailed under errors.Is.
type SettlementError struct {
	Reason string
}

func (e *SettlementError) Error() string {
	return "settlement failed: " + e.Reason
}

func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementFailed
}

// LedgerWriteError is returned when a transfer settled but the ledger
// append did not. The trade is parked for replay under TransactionID.
type LedgerWriteError struct {
	TransactionID string
	Err           error
}

func (e *LedgerWriteError) Error() string {
	return "ledger write failed for settled transaction " + e.TransactionID + ": " + e.Err.Error()
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

func (e *LedgerWriteError) Is(target error) bool {
	return target == ErrLedgerWrite
}
