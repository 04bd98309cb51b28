package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "amount must be a positive integer"}
	if err.Error() != "amount must be a positive integer" {
		t.Errorf("Error() = %q, want %q", err.Error(), "amount must be a positive integer")
	}
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := fmt.Errorf("submit: %w", &ValidationError{Message: "bad side"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("wrapped ValidationError should match ErrInvalidInput")
	}
	if errors.Is(err, ErrCohortNotFound) {
		t.Error("ValidationError should not match ErrCohortNotFound")
	}
}

func TestSettlementError_CarriesReason(t *testing.T) {
	var err error = &SettlementError{Reason: "custody offline"}
	if !errors.Is(err, ErrSettlementFailed) {
		t.Error("SettlementError should match ErrSettlementFailed")
	}
	var se *SettlementError
	if !errors.As(err, &se) || se.Reason != "custody offline" {
		t.Errorf("errors.As did not recover reason, got %+v", se)
	}
}

func TestLedgerWriteError_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &LedgerWriteError{TransactionID: "tx-1", Err: cause}
	if !errors.Is(err, ErrLedgerWrite) {
		t.Error("LedgerWriteError should match ErrLedgerWrite")
	}
	if !errors.Is(err, cause) {
		t.Error("LedgerWriteError should unwrap to its cause")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidInput,
		ErrCohortNotFound,
		ErrInsufficientHoldings,
		ErrInsufficientSupply,
		ErrSettlementFailed,
		ErrDuplicateTransaction,
		ErrLedgerWrite,
		ErrTransactionNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
