package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/cohortex/internal/broadcast"
	"github.com/efreitasn/cohortex/internal/metrics"
	"github.com/efreitasn/cohortex/internal/service"
)

// Services bundles what the router dispatches to.
type Services struct {
	Trades    *service.TradeService
	Portfolio *service.PortfolioService
	Cohorts   *service.CohortService
	Hub       *broadcast.Hub
	Metrics   *metrics.Metrics
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(svcs Services, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger, svcs.Metrics))
	r.Use(contentTypeJSON)

	tradeH := NewTradeHandler(svcs.Trades)
	portfolioH := NewPortfolioHandler(svcs.Portfolio)
	cohortH := NewCohortHandler(svcs.Cohorts)
	streamH := NewStreamHandler(svcs.Hub, svcs.Cohorts)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", svcs.Metrics.Handler())

	// Trade routes.
	r.Post("/trades", tradeH.Submit)
	r.Get("/trades/{transaction_id}", tradeH.Get)

	// Wallet routes.
	r.Get("/wallets/{wallet_id}/portfolio", portfolioH.Get)
	r.Get("/wallets/{wallet_id}/trades", tradeH.ListByWallet)

	// Cohort routes.
	r.Get("/cohorts", cohortH.List)
	r.Get("/cohorts/{cohort_id}", cohortH.Get)
	r.Get("/cohorts/{cohort_id}/price", cohortH.GetPrice)
	r.Get("/cohorts/{cohort_id}/trades", cohortH.ListTrades)

	// Price stream.
	r.Get("/stream", streamH.Subscribe)

	// Recovery routes.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/trades/{transaction_id}/replay", tradeH.Replay)
		r.Post("/reconcile", tradeH.Reconcile)
		r.Get("/pending", tradeH.ListPending)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog, and records it in m.
func requestLogging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.HTTPRequest(r.Method, route, ww.status, elapsed)

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if !w.wroteHeader {
		w.status = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT and
// PATCH requests that carry a body. If the Content-Type header doesn't
// start with "application/json", it returns 400 Bad Request before the
// handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 &&
			(r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
