package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/cohortex/internal/service"
)

// PortfolioHandler handles HTTP requests for wallet portfolios.
type PortfolioHandler struct {
	portfolioSvc *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioSvc *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioSvc: portfolioSvc}
}

type holdingResponse struct {
	CohortID    string `json:"cohort_id"`
	Amount      int64  `json:"amount"`
	LatestPrice string `json:"latest_price"`
	Value       string `json:"value"`
}

type portfolioResponse struct {
	WalletID   string            `json:"wallet_id"`
	Holdings   []holdingResponse `json:"holdings"`
	TotalValue string            `json:"total_value"`
}

// Get handles GET /wallets/{wallet_id}/portfolio.
func (h *PortfolioHandler) Get(w http.ResponseWriter, r *http.Request) {
	pf, err := h.portfolioSvc.Get(r.Context(), chi.URLParam(r, "wallet_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := portfolioResponse{
		WalletID:   pf.WalletID,
		Holdings:   make([]holdingResponse, len(pf.Holdings)),
		TotalValue: pf.TotalValue.StringFixed(2),
	}
	for i, hv := range pf.Holdings {
		resp.Holdings[i] = holdingResponse{
			CohortID:    hv.CohortID,
			Amount:      hv.Amount,
			LatestPrice: hv.LatestPrice.String(),
			Value:       hv.Value.StringFixed(2),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
