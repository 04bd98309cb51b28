package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/engine"
	"github.com/efreitasn/cohortex/internal/service"
)

// TradeHandler handles HTTP requests for trade endpoints.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

// submitTradeRequest is the JSON request body for POST /trades. Price
// accepts a JSON number or a numeric string.
type submitTradeRequest struct {
	TransactionID string      `json:"transaction_id"`
	WalletID      string      `json:"wallet_id"`
	CohortID      string      `json:"cohort_id"`
	Amount        int64       `json:"amount"`
	Price         json.Number `json:"price"`
	Side          string      `json:"side"`
}

type submitTradeResponse struct {
	TransactionID string `json:"transaction_id"`
	Fee           string `json:"fee"`
	Message       string `json:"message"`
	Replayed      bool   `json:"replayed"`
}

type tradeResponse struct {
	TransactionID string `json:"transaction_id"`
	WalletID      string `json:"wallet_id"`
	CohortID      string `json:"cohort_id"`
	Amount        int64  `json:"amount"`
	Price         string `json:"price"`
	Side          string `json:"side"`
	Fee           string `json:"fee"`
	SettledAt     string `json:"settled_at"`
}

type reconcileResponse struct {
	StartedAt string           `json:"started_at"`
	Checked   int              `json:"checked"`
	Replayed  []string         `json:"replayed"`
	Failed    []string         `json:"failed"`
	Orphans   []orphanTransfer `json:"orphans"`
}

type orphanTransfer struct {
	TransactionID string `json:"transaction_id"`
	CohortID      string `json:"cohort_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        int64  `json:"amount"`
	SettledAt     string `json:"settled_at"`
}

// Submit handles POST /trades. A fresh trade answers 201; a resubmitted
// transaction id answers 200 with the original result.
func (h *TradeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitTradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.tradeSvc.Submit(r.Context(), service.SubmitTradeRequest{
		TransactionID: req.TransactionID,
		WalletID:      req.WalletID,
		CohortID:      req.CohortID,
		Amount:        req.Amount,
		Price:         req.Price.String(),
		Side:          req.Side,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	WriteJSON(w, status, submitTradeResponse{
		TransactionID: res.TransactionID,
		Fee:           res.Fee.StringFixed(2),
		Message:       res.Message,
		Replayed:      res.Replayed,
	})
}

// Get handles GET /trades/{transaction_id}.
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tradeSvc.GetTrade(r.Context(), chi.URLParam(r, "transaction_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toTradeResponse(t))
}

// ListByWallet handles GET /wallets/{wallet_id}/trades.
func (h *TradeHandler) ListByWallet(w http.ResponseWriter, r *http.Request) {
	trades, err := h.tradeSvc.WalletTrades(r.Context(), chi.URLParam(r, "wallet_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades)})
}

// Replay handles POST /admin/trades/{transaction_id}/replay.
func (h *TradeHandler) Replay(w http.ResponseWriter, r *http.Request) {
	res, err := h.tradeSvc.ReplayCommit(r.Context(), chi.URLParam(r, "transaction_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toTradeResponse(res.Trade))
}

// Reconcile handles POST /admin/reconcile.
func (h *TradeHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.tradeSvc.Reconcile(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toReconcileResponse(report))
}

// ListPending handles GET /admin/pending.
func (h *TradeHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"pending": toTradeResponses(h.tradeSvc.Pending())})
}

func toTradeResponse(t domain.Trade) tradeResponse {
	return tradeResponse{
		TransactionID: t.TransactionID,
		WalletID:      t.WalletID,
		CohortID:      t.CohortID,
		Amount:        t.Amount,
		Price:         t.Price.String(),
		Side:          string(t.Side),
		Fee:           t.Fee.StringFixed(2),
		SettledAt:     t.SettledAt.UTC().Format(time.RFC3339Nano),
	}
}

func toTradeResponses(trades []domain.Trade) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = toTradeResponse(t)
	}
	return result
}

func toReconcileResponse(rep engine.Report) reconcileResponse {
	resp := reconcileResponse{
		StartedAt: rep.StartedAt.Format(time.RFC3339Nano),
		Checked:   rep.Checked,
		Replayed:  nonNil(rep.Replayed),
		Failed:    nonNil(rep.Failed),
		Orphans:   make([]orphanTransfer, len(rep.Orphans)),
	}
	for i, o := range rep.Orphans {
		resp.Orphans[i] = orphanTransfer{
			TransactionID: o.IdempotencyKey,
			CohortID:      o.CohortID,
			From:          o.From,
			To:            o.To,
			Amount:        o.Amount,
			SettledAt:     o.SettledAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
