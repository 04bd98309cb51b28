package handler

import (
	"net/http"

	"github.com/efreitasn/cohortex/internal/broadcast"
	"github.com/efreitasn/cohortex/internal/service"
)

// StreamHandler upgrades clients to a websocket price stream.
type StreamHandler struct {
	hub       *broadcast.Hub
	cohortSvc *service.CohortService
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *broadcast.Hub, cohortSvc *service.CohortService) *StreamHandler {
	return &StreamHandler{hub: hub, cohortSvc: cohortSvc}
}

// Subscribe handles GET /stream?cohort_id=. Without cohort_id the client
// receives every cohort's prices.
func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("cohort_id")
	if filter != "" {
		if _, err := h.cohortSvc.Get(filter); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	h.hub.ServeWS(w, r, filter)
}
