package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/service"
)

// CohortHandler handles HTTP requests for cohort endpoints.
type CohortHandler struct {
	cohortSvc *service.CohortService
}

// NewCohortHandler creates a new CohortHandler.
func NewCohortHandler(cohortSvc *service.CohortService) *CohortHandler {
	return &CohortHandler{cohortSvc: cohortSvc}
}

type cohortResponse struct {
	CohortID     string `json:"cohort_id"`
	Name         string `json:"name"`
	Sport        string `json:"sport"`
	TokenAddress string `json:"token_address"`
	CreatedAt    string `json:"created_at"`
}

// priceResponse has null price and observed_at when no fresh quote exists.
type priceResponse struct {
	CohortID   string  `json:"cohort_id"`
	Price      *string `json:"price"`
	ObservedAt *string `json:"observed_at"`
}

// List handles GET /cohorts.
func (h *CohortHandler) List(w http.ResponseWriter, r *http.Request) {
	cohorts := h.cohortSvc.List()
	resp := make([]cohortResponse, len(cohorts))
	for i, c := range cohorts {
		resp[i] = toCohortResponse(c)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"cohorts": resp})
}

// Get handles GET /cohorts/{cohort_id}.
func (h *CohortHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.cohortSvc.Get(chi.URLParam(r, "cohort_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCohortResponse(c))
}

// GetPrice handles GET /cohorts/{cohort_id}/price.
func (h *CohortHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.cohortSvc.Price(r.Context(), chi.URLParam(r, "cohort_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := priceResponse{CohortID: p.CohortID}
	if p.Price != nil {
		s := p.Price.String()
		resp.Price = &s
	}
	if p.ObservedAt != nil {
		s := p.ObservedAt.UTC().Format(time.RFC3339Nano)
		resp.ObservedAt = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /cohorts/{cohort_id}/trades?since=RFC3339.
func (h *CohortHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "since must be a valid RFC 3339 timestamp")
			return
		}
		since = parsed
	}

	trades, err := h.cohortSvc.Trades(r.Context(), chi.URLParam(r, "cohort_id"), since)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades)})
}

func toCohortResponse(c *domain.Cohort) cohortResponse {
	return cohortResponse{
		CohortID:     c.CohortID,
		Name:         c.Name,
		Sport:        c.Sport,
		TokenAddress: c.TokenAddress,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
