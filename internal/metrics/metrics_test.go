package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.TradeOutcome("buy", OutcomeSettled)
	m.SettlementObserved(time.Millisecond, true)
	m.LedgerWriteFailed()
	m.SetPendingCommits(3)
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.EventPublished()
	m.EventDropped()
	m.OrphanTransfers(2)
	m.ReconcileRun(false)
	m.HTTPRequest("GET", "/healthz", 200, time.Millisecond)
	if m.Registry() != nil {
		t.Error("nil Metrics should have no registry")
	}
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := New()
	m.TradeOutcome("sell", OutcomeRejected)
	m.LedgerWriteFailed()
	m.SubscriberAdded()
	m.OrphanTransfers(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`cohortex_trades_total{outcome="rejected",side="sell"} 1`,
		`cohortex_ledger_write_failures_total 1`,
		`cohortex_broadcast_subscribers 1`,
		`cohortex_reconcile_orphan_transfers_total 2`,
		`go_goroutines`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
