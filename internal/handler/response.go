package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/cohortex/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// maxBodyBytes caps request bodies read by ParseJSON.
const maxBodyBytes = 64 << 10

// ParseJSON decodes the request body as JSON into v. Unknown fields,
// trailing data and bodies over maxBodyBytes are rejected.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON: %v", err)
	}
	if dec.More() {
		return fmt.Errorf("Request body must contain a single JSON object")
	}
	return nil
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var settlementErr *domain.SettlementError
	var ledgerErr *domain.LedgerWriteError

	switch {
	case errors.As(err, &validationErr):
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
	case errors.Is(err, domain.ErrCohortNotFound):
		WriteError(w, http.StatusNotFound, "cohort_not_found", "Cohort not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		WriteError(w, http.StatusNotFound, "transaction_not_found", "Transaction not found")
	case errors.Is(err, domain.ErrInsufficientHoldings):
		WriteError(w, http.StatusConflict, "insufficient_holdings", err.Error())
	case errors.Is(err, domain.ErrInsufficientSupply):
		WriteError(w, http.StatusConflict, "insufficient_supply", err.Error())
	case errors.As(err, &settlementErr):
		WriteError(w, http.StatusBadGateway, "settlement_failure", settlementErr.Reason)
	case errors.As(err, &ledgerErr):
		WriteError(w, http.StatusInternalServerError, "ledger_write_failure",
			"Transfer "+ledgerErr.TransactionID+" settled but was not recorded; it will be replayed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		WriteError(w, http.StatusServiceUnavailable, "request_cancelled", "Request timed out before settlement started")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
