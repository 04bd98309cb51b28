// Package metrics holds the Prometheus collectors the service exports.
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cohortex"

// Trade outcomes recorded on the trades counter.
const (
	OutcomeSettled          = "settled"
	OutcomeReplayed         = "replayed"
	OutcomeRejected         = "rejected"
	OutcomeSettlementFailed = "settlement_failed"
	OutcomeLedgerFailed     = "ledger_failed"
)

type Metrics struct {
	registry *prometheus.Registry

	trades              *prometheus.CounterVec
	settlementDuration  *prometheus.HistogramVec
	ledgerWriteFailures prometheus.Counter
	pendingCommits      prometheus.Gauge
	subscribers         prometheus.Gauge
	droppedEvents       prometheus.Counter
	publishedEvents     prometheus.Counter
	orphanTransfers     prometheus.Counter
	reconcileRuns       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New registers every collector on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Trade submissions by side and outcome",
		}, []string{"side", "outcome"}),
		settlementDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Duration of settlement gateway transfers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		ledgerWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_failures_total",
			Help:      "Ledger appends that failed after a successful settlement",
		}),
		pendingCommits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pending_commits",
			Help:      "Settled trades waiting for a ledger commit",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently connected price subscribers",
		}),
		droppedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_events_total",
			Help:      "Price events dropped because a subscriber buffer was full",
		}),
		publishedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "published_events_total",
			Help:      "Price events published to the hub",
		}),
		orphanTransfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "orphan_transfers_total",
			Help:      "Settled transfers found with no ledger entry",
		}),
		reconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation passes by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TradeOutcome(side, outcome string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, outcome).Inc()
}

func (m *Metrics) SettlementObserved(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.settlementDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) LedgerWriteFailed() {
	if m == nil {
		return
	}
	m.ledgerWriteFailures.Inc()
}

func (m *Metrics) SetPendingCommits(n int) {
	if m == nil {
		return
	}
	m.pendingCommits.Set(float64(n))
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.publishedEvents.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) OrphanTransfers(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphanTransfers.Add(float64(n))
}

func (m *Metrics) ReconcileRun(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
