package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/broadcast"
	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/engine"
	"github.com/efreitasn/cohortex/internal/metrics"
	"github.com/efreitasn/cohortex/internal/service"
	"github.com/efreitasn/cohortex/internal/settlement"
	"github.com/efreitasn/cohortex/internal/store"
)

// switchableLedger fails appends while failing is set.
type switchableLedger struct {
	store.Ledger
	mu      sync.Mutex
	failing bool
}

func (l *switchableLedger) setFailing(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing = v
}

func (l *switchableLedger) Append(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	l.mu.Lock()
	failing := l.failing
	l.mu.Unlock()
	if failing {
		return domain.Trade{}, errors.New("connection reset")
	}
	return l.Ledger.Append(ctx, t)
}

type testEnv struct {
	server  *httptest.Server
	ledger  *switchableLedger
	gateway *settlement.PaperGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	ledger := &switchableLedger{Ledger: store.NewMemoryLedger()}
	prices := store.NewMemoryPriceCache(time.Hour, nil)
	cohorts := store.NewCohortStore()
	cohorts.Put(&domain.Cohort{CohortID: "qb-elite", Name: "QB Elite", Sport: "football", TokenAddress: "tok-qb", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	cohorts.Put(&domain.Cohort{CohortID: "nba-rookies", Name: "NBA Rookies", Sport: "basketball", TokenAddress: "tok-nba", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	gateway := settlement.NewPaperGateway()
	gateway.Mint("qb-elite", "treasury", 1_000)
	gateway.Mint("nba-rookies", "treasury", 1_000)

	hub := broadcast.NewHub(broadcast.DefaultBuffer, logger, m)
	exec := engine.NewExecutor(ledger, prices, cohorts, gateway, hub,
		engine.ExecutorConfig{Treasury: "treasury", SettleTimeout: time.Second}, logger, m)
	rec := engine.NewReconciler(time.Minute, time.Hour, exec, ledger, gateway, logger, m)

	router := NewRouter(Services{
		Trades:    service.NewTradeService(exec, rec, ledger),
		Portfolio: service.NewPortfolioService(exec.Projector()),
		Cohorts:   service.NewCohortService(cohorts, prices, ledger),
		Hub:       hub,
		Metrics:   m,
	}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{server: srv, ledger: ledger, gateway: gateway}
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) doRaw(t *testing.T, method, path, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func tradeBody(id, wallet, cohort string, amount int64, price any, side string) map[string]any {
	return map[string]any{
		"transaction_id": id,
		"wallet_id":      wallet,
		"cohort_id":      cohort,
		"amount":         amount,
		"price":          price,
		"side":           side,
	}
}

// --- Trades ---

func TestSubmitTrade_Buy(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 10, 12.5, "buy"))
	expectStatus(t, resp, http.StatusCreated)

	got := decodeJSON[submitTradeResponse](t, resp)
	if got.TransactionID != "tx-1" {
		t.Errorf("transaction_id = %q, want tx-1", got.TransactionID)
	}
	if got.Fee != "2.50" {
		t.Errorf("fee = %q, want 2.50", got.Fee)
	}
	if got.Message != "Buy executed successfully" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Replayed {
		t.Error("fresh trade reported as replayed")
	}
	if bal := env.gateway.Balance("qb-elite", "w1"); bal != 10 {
		t.Errorf("custody balance = %d, want 10", bal)
	}
}

func TestSubmitTrade_PriceAsString(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 600, "10.00", "buy"))
	expectStatus(t, resp, http.StatusCreated)

	// 600 × 10 × 3% with the surcharge.
	if got := decodeJSON[submitTradeResponse](t, resp); got.Fee != "180.00" {
		t.Errorf("fee = %q, want 180.00", got.Fee)
	}
}

func TestSubmitTrade_AssignsTransactionID(t *testing.T) {
	env := newTestEnv(t)

	body := tradeBody("", "w1", "qb-elite", 1, "1", "buy")
	delete(body, "transaction_id")
	resp := env.doJSON(t, http.MethodPost, "/trades", body)
	expectStatus(t, resp, http.StatusCreated)

	if got := decodeJSON[submitTradeResponse](t, resp); got.TransactionID == "" {
		t.Error("expected an assigned transaction_id")
	}
}

func TestSubmitTrade_Resubmission(t *testing.T) {
	env := newTestEnv(t)
	body := tradeBody("tx-1", "w1", "qb-elite", 10, "12.50", "buy")

	first := env.doJSON(t, http.MethodPost, "/trades", body)
	expectStatus(t, first, http.StatusCreated)

	second := env.doJSON(t, http.MethodPost, "/trades", body)
	expectStatus(t, second, http.StatusOK)
	got := decodeJSON[submitTradeResponse](t, second)
	if !got.Replayed || got.Message != "Transaction already executed" {
		t.Errorf("resubmission = %+v, want replayed", got)
	}
	if got.Fee != "2.50" {
		t.Errorf("replayed fee = %q, want original 2.50", got.Fee)
	}
	if n := env.gateway.TransferCount(); n != 1 {
		t.Errorf("transfers = %d, want 1", n)
	}
}

func TestSubmitTrade_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{"bad side", tradeBody("tx-1", "w1", "qb-elite", 1, "1", "hold"), http.StatusBadRequest, "validation_error"},
		{"zero amount", tradeBody("tx-1", "w1", "qb-elite", 0, "1", "buy"), http.StatusBadRequest, "validation_error"},
		{"negative price", tradeBody("tx-1", "w1", "qb-elite", 1, "-2", "buy"), http.StatusBadRequest, "validation_error"},
		{"bad wallet", tradeBody("tx-1", "w 1", "qb-elite", 1, "1", "buy"), http.StatusBadRequest, "validation_error"},
		{"unknown cohort", tradeBody("tx-1", "w1", "nope", 1, "1", "buy"), http.StatusNotFound, "cohort_not_found"},
		{"sell without holdings", tradeBody("tx-1", "w1", "qb-elite", 1, "1", "sell"), http.StatusConflict, "insufficient_holdings"},
		{"buy beyond supply", tradeBody("tx-1", "w1", "qb-elite", 5_000, "1", "buy"), http.StatusConflict, "insufficient_supply"},
		{"huge price exponent", tradeBody("tx-1", "w1", "qb-elite", 1, json.Number("1e5000000"), "buy"), http.StatusBadRequest, "validation_error"},
		{"tiny price exponent", tradeBody("tx-1", "w1", "qb-elite", 1, json.Number("1e-5000000"), "buy"), http.StatusBadRequest, "validation_error"},
		{"price with too many digits", tradeBody("tx-1", "w1", "qb-elite", 1, "12345678901234567890", "buy"), http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.doJSON(t, http.MethodPost, "/trades", tt.body)
			expectStatus(t, resp, tt.wantCode)

			got := decodeJSON[errorResponse](t, resp)
			if got.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", got.Error, tt.wantErr)
			}
			if n := env.gateway.TransferCount(); n != 0 {
				t.Errorf("rejected trade moved tokens: %d transfers", n)
			}
		})
	}
}

func TestSubmitTrade_MalformedBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"wrong content type", "text/plain", `{"wallet_id":"w1"}`},
		{"invalid json", "application/json", `{"wallet_id":`},
		{"unknown field", "application/json", `{"wallet_id":"w1","leverage":3}`},
		{"non-numeric price", "application/json", `{"wallet_id":"w1","cohort_id":"qb-elite","amount":1,"price":"abc","side":"buy"}`},
		{"trailing data", "application/json", `{"wallet_id":"w1"}{"wallet_id":"w2"}`},
		{"oversized body", "application/json", `{"wallet_id":"` + strings.Repeat("w", maxBodyBytes) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.doRaw(t, http.MethodPost, "/trades", tt.contentType, tt.body)
			expectStatus(t, resp, http.StatusBadRequest)
			if got := decodeJSON[errorResponse](t, resp); got.Error != "invalid_request" {
				t.Errorf("error = %q, want invalid_request", got.Error)
			}
		})
	}
}

func TestSubmitTrade_SettlementFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.SetFault(func(settlement.TransferRequest) error {
		return &domain.SettlementError{Reason: "custody offline"}
	})

	resp := env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 1, "1", "buy"))
	expectStatus(t, resp, http.StatusBadGateway)

	got := decodeJSON[errorResponse](t, resp)
	if got.Error != "settlement_failure" || !strings.Contains(got.Message, "custody offline") {
		t.Errorf("error = %+v", got)
	}

	missing := env.doJSON(t, http.MethodGet, "/trades/tx-1", nil)
	expectStatus(t, missing, http.StatusNotFound)
}

func TestSubmitTrade_LedgerFailureThenReplay(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setFailing(true)

	resp := env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 4, "2", "buy"))
	expectStatus(t, resp, http.StatusInternalServerError)
	if got := decodeJSON[errorResponse](t, resp); got.Error != "ledger_write_failure" {
		t.Errorf("error = %q, want ledger_write_failure", got.Error)
	}

	pending := env.doJSON(t, http.MethodGet, "/admin/pending", nil)
	expectStatus(t, pending, http.StatusOK)
	list := decodeJSON[map[string][]tradeResponse](t, pending)
	if len(list["pending"]) != 1 || list["pending"][0].TransactionID != "tx-1" {
		t.Fatalf("pending = %+v, want [tx-1]", list["pending"])
	}

	env.ledger.setFailing(false)
	replay := env.doJSON(t, http.MethodPost, "/admin/trades/tx-1/replay", nil)
	expectStatus(t, replay, http.StatusOK)
	if got := decodeJSON[tradeResponse](t, replay); got.Amount != 4 || got.Side != "buy" {
		t.Errorf("replayed trade = %+v", got)
	}

	stored := env.doJSON(t, http.MethodGet, "/trades/tx-1", nil)
	expectStatus(t, stored, http.StatusOK)
	if n := env.gateway.TransferCount(); n != 1 {
		t.Errorf("transfers = %d, want 1", n)
	}
}

func TestReplay_Unknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodPost, "/admin/trades/ghost/replay", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestReconcile(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 3, "1", "buy")), http.StatusCreated)

	// A transfer the ledger never heard of.
	_, err := env.gateway.Transfer(context.Background(), settlement.TransferRequest{
		CohortID: "qb-elite", TokenAddress: "tok-qb", From: "treasury", To: "w9", Amount: 2, IdempotencyKey: "stray",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	resp := env.doJSON(t, http.MethodPost, "/admin/reconcile", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[reconcileResponse](t, resp)
	if got.Checked != 2 {
		t.Errorf("checked = %d, want 2", got.Checked)
	}
	if len(got.Orphans) != 1 || got.Orphans[0].TransactionID != "stray" {
		t.Errorf("orphans = %+v, want [stray]", got.Orphans)
	}
	if len(got.Replayed) != 0 || len(got.Failed) != 0 {
		t.Errorf("replayed=%v failed=%v, want empty", got.Replayed, got.Failed)
	}
}

func TestGetTrade(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 10, "12.50", "buy")), http.StatusCreated)

	resp := env.doJSON(t, http.MethodGet, "/trades/tx-1", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[tradeResponse](t, resp)
	if got.WalletID != "w1" || got.CohortID != "qb-elite" || got.Amount != 10 {
		t.Errorf("trade = %+v", got)
	}
	if !decimal.RequireFromString(got.Price).Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("price = %q, want 12.5", got.Price)
	}
	if got.Fee != "2.50" {
		t.Errorf("fee = %q, want 2.50", got.Fee)
	}
	if _, err := time.Parse(time.RFC3339Nano, got.SettledAt); err != nil {
		t.Errorf("settled_at %q: %v", got.SettledAt, err)
	}
}

// --- Wallets ---

func TestWalletPortfolio(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 10, "5", "buy")), http.StatusCreated)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-2", "w1", "nba-rookies", 4, "2", "buy")), http.StatusCreated)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-3", "w1", "qb-elite", 3, "6", "sell")), http.StatusCreated)

	resp := env.doJSON(t, http.MethodGet, "/wallets/w1/portfolio", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[portfolioResponse](t, resp)

	if len(got.Holdings) != 2 {
		t.Fatalf("holdings = %+v, want 2", got.Holdings)
	}
	// Sorted by cohort id.
	if got.Holdings[0].CohortID != "nba-rookies" || got.Holdings[0].Amount != 4 || got.Holdings[0].Value != "8.00" {
		t.Errorf("holding[0] = %+v", got.Holdings[0])
	}
	if got.Holdings[1].CohortID != "qb-elite" || got.Holdings[1].Amount != 7 || got.Holdings[1].Value != "42.00" {
		t.Errorf("holding[1] = %+v", got.Holdings[1])
	}
	if got.TotalValue != "50.00" {
		t.Errorf("total_value = %q, want 50.00", got.TotalValue)
	}
}

func TestWalletPortfolio_Empty(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/wallets/nobody/portfolio", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[portfolioResponse](t, resp)
	if len(got.Holdings) != 0 || got.TotalValue != "0.00" {
		t.Errorf("portfolio = %+v, want empty", got)
	}
}

func TestWalletTrades(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 2, "1", "buy")), http.StatusCreated)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-2", "w2", "qb-elite", 2, "1", "buy")), http.StatusCreated)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-3", "w1", "nba-rookies", 2, "1", "buy")), http.StatusCreated)

	resp := env.doJSON(t, http.MethodGet, "/wallets/w1/trades", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[map[string][]tradeResponse](t, resp)["trades"]
	if len(got) != 2 || got[0].TransactionID != "tx-1" || got[1].TransactionID != "tx-3" {
		t.Errorf("trades = %+v, want [tx-1 tx-3]", got)
	}
}

// --- Cohorts ---

func TestListCohorts(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/cohorts", nil)
	expectStatus(t, resp, http.StatusOK)

	got := decodeJSON[map[string][]cohortResponse](t, resp)["cohorts"]
	if len(got) != 2 || got[0].CohortID != "nba-rookies" || got[1].CohortID != "qb-elite" {
		t.Fatalf("cohorts = %+v", got)
	}
	if got[1].TokenAddress != "tok-qb" || got[1].Sport != "football" {
		t.Errorf("qb-elite = %+v", got[1])
	}
}

func TestGetCohort(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[cohortResponse](t, resp); got.Name != "QB Elite" {
		t.Errorf("name = %q", got.Name)
	}

	missing := env.doJSON(t, http.MethodGet, "/cohorts/nope", nil)
	expectStatus(t, missing, http.StatusNotFound)
	if got := decodeJSON[errorResponse](t, missing); got.Error != "cohort_not_found" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestGetCohortPrice(t *testing.T) {
	env := newTestEnv(t)

	before := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite/price", nil)
	expectStatus(t, before, http.StatusOK)
	if got := decodeJSON[priceResponse](t, before); got.Price != nil || got.ObservedAt != nil {
		t.Errorf("price before any trade = %+v, want nulls", got)
	}

	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 1, "9.75", "buy")), http.StatusCreated)

	after := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite/price", nil)
	expectStatus(t, after, http.StatusOK)
	got := decodeJSON[priceResponse](t, after)
	if got.Price == nil || *got.Price != "9.75" {
		t.Errorf("price = %v, want 9.75", got.Price)
	}
	if got.ObservedAt == nil {
		t.Error("observed_at should be set")
	}
}

func TestListCohortTrades(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 1, "1", "buy")), http.StatusCreated)

	resp := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite/trades", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[map[string][]tradeResponse](t, resp)["trades"]; len(got) != 1 {
		t.Errorf("trades = %+v, want 1", got)
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	later := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite/trades?since="+future, nil)
	expectStatus(t, later, http.StatusOK)
	if got := decodeJSON[map[string][]tradeResponse](t, later)["trades"]; len(got) != 0 {
		t.Errorf("trades since future = %+v, want none", got)
	}

	bad := env.doJSON(t, http.MethodGet, "/cohorts/qb-elite/trades?since=yesterday", nil)
	expectStatus(t, bad, http.StatusBadRequest)

	unknown := env.doJSON(t, http.MethodGet, "/cohorts/nope/trades", nil)
	expectStatus(t, unknown, http.StatusNotFound)
}

// --- Stream ---

func TestStream_ReceivesSettledPrices(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/stream?cohort_id=qb-elite"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-0", "w1", "nba-rookies", 1, "3", "buy")), http.StatusCreated)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 1, "4.20", "buy")), http.StatusCreated)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev struct {
		CohortID string          `json:"cohort_id"`
		Price    decimal.Decimal `json:"price"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.CohortID != "qb-elite" || !ev.Price.Equal(decimal.RequireFromString("4.2")) {
		t.Errorf("event = %+v, want qb-elite at 4.2", ev)
	}
}

func TestStream_UnknownCohort(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/stream?cohort_id=nope", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

// --- Operational ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[map[string]string](t, resp); got["status"] != "ok" {
		t.Errorf("status = %q", got["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.doJSON(t, http.MethodPost, "/trades", tradeBody("tx-1", "w1", "qb-elite", 1, "1", "buy")), http.StatusCreated)

	resp := env.doJSON(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`cohortex_trades_total{outcome="settled",side="buy"} 1`,
		`route="/trades"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/orders", nil)
	expectStatus(t, resp, http.StatusNotFound)
}
