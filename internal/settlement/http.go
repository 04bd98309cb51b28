package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/go-resty/resty/v2"
)

// transferBody is the wire form of a transfer on the custody service.
type transferBody struct {
	IdempotencyKey string    `json:"idempotency_key"`
	CohortID       string    `json:"cohort_id"`
	TokenAddress   string    `json:"token_address,omitempty"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Amount         int64     `json:"amount"`
	SettledAt      time.Time `json:"settled_at,omitempty"`
}

func (b transferBody) receipt() Receipt {
	return Receipt{
		IdempotencyKey: b.IdempotencyKey,
		CohortID:       b.CohortID,
		From:           b.From,
		To:             b.To,
		Amount:         b.Amount,
		SettledAt:      b.SettledAt.UTC(),
	}
}

type balanceBody struct {
	CohortID string `json:"cohort_id"`
	Holder   string `json:"holder"`
	Balance  int64  `json:"balance"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPGateway talks to an external custody service over JSON/HTTP.
//
// Endpoints:
//
//	POST /transfers                    settle (idempotent on idempotency_key)
//	GET  /transfers/{key}              lookup, 404 when unknown
//	GET  /transfers?since=RFC3339      settled transfers since a point in time
//	GET  /balances/{cohort}/{holder}   available supply
//
// Transfer is never retried here. A timeout is reported as a settlement
// failure and the caller decides whether to resubmit with the same key.
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway creates a client for the custody service at baseURL.
// timeout bounds every request.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cohortex-settlement/1.0")
	return &HTTPGateway{client: client}
}

func (g *HTTPGateway) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	var out transferBody
	var failure errorBody
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(transferBody{
			IdempotencyKey: req.IdempotencyKey,
			CohortID:       req.CohortID,
			TokenAddress:   req.TokenAddress,
			From:           req.From,
			To:             req.To,
			Amount:         req.Amount,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/transfers")
	if err != nil {
		return Receipt{}, transportFailure(err)
	}
	if !resp.IsSuccess() {
		return Receipt{}, &domain.SettlementError{Reason: failureReason(resp, failure)}
	}
	if out.IdempotencyKey == "" {
		out.IdempotencyKey = req.IdempotencyKey
	}
	return out.receipt(), nil
}

func (g *HTTPGateway) AvailableSupply(ctx context.Context, cohortID, holder string) (int64, error) {
	var out balanceBody
	var failure errorBody
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"cohort": cohortID, "holder": holder}).
		SetResult(&out).
		SetError(&failure).
		Get("/balances/{cohort}/{holder}")
	if err != nil {
		return 0, transportFailure(err)
	}
	if !resp.IsSuccess() {
		return 0, &domain.SettlementError{Reason: failureReason(resp, failure)}
	}
	return out.Balance, nil
}

func (g *HTTPGateway) Lookup(ctx context.Context, key string) (Receipt, bool, error) {
	var out transferBody
	var failure errorBody
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetResult(&out).
		SetError(&failure).
		Get("/transfers/{key}")
	if err != nil {
		return Receipt{}, false, transportFailure(err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Receipt{}, false, nil
	}
	if !resp.IsSuccess() {
		return Receipt{}, false, &domain.SettlementError{Reason: failureReason(resp, failure)}
	}
	return out.receipt(), true, nil
}

func (g *HTTPGateway) Transfers(ctx context.Context, since time.Time) ([]Receipt, error) {
	var out []transferBody
	var failure errorBody
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339Nano)).
		SetResult(&out).
		SetError(&failure).
		Get("/transfers")
	if err != nil {
		return nil, transportFailure(err)
	}
	if !resp.IsSuccess() {
		return nil, &domain.SettlementError{Reason: failureReason(resp, failure)}
	}
	result := make([]Receipt, len(out))
	for i, b := range out {
		result[i] = b.receipt()
	}
	return result, nil
}

func transportFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &domain.SettlementError{Reason: "custody request timed out: " + err.Error()}
	}
	return &domain.SettlementError{Reason: "custody request failed: " + err.Error()}
}

func failureReason(resp *resty.Response, body errorBody) string {
	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	}
	return fmt.Sprintf("custody service returned %s", resp.Status())
}
