package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/metrics"
	"github.com/efreitasn/cohortex/internal/settlement"
	"github.com/efreitasn/cohortex/internal/store"
)

// Report summarises one reconciliation pass.
type Report struct {
	StartedAt time.Time
	Checked   int                  // gateway transfers examined
	Replayed  []string             // pending commits written to the ledger
	Failed    []string             // pending commits that failed again
	Orphans   []settlement.Receipt // settled transfers with no ledger entry and no pending trade
}

// Reconciler periodically compares gateway-confirmed transfers against
// the ledger and replays commits the executor could not write.
type Reconciler struct {
	interval time.Duration
	lookback time.Duration
	executor *Executor
	ledger   store.Ledger
	gateway  settlement.Gateway
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewReconciler creates a Reconciler that runs every interval and looks at
// transfers settled within lookback.
func NewReconciler(
	interval, lookback time.Duration,
	executor *Executor,
	ledger store.Ledger,
	gateway settlement.Gateway,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		interval: interval,
		lookback: lookback,
		executor: executor,
		ledger:   ledger,
		gateway:  gateway,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Start launches a background goroutine that runs a pass every interval.
// It stops when ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
					r.logger.Error("reconciliation pass failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce replays every pending commit, then checks each transfer the
// gateway settled within the lookback window against the ledger.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	report := Report{StartedAt: r.now().UTC()}

	for _, t := range r.executor.Pending() {
		if _, err := r.executor.ReplayCommit(ctx, t.TransactionID); err != nil {
			report.Failed = append(report.Failed, t.TransactionID)
			continue
		}
		report.Replayed = append(report.Replayed, t.TransactionID)
	}

	receipts, err := r.gateway.Transfers(ctx, report.StartedAt.Add(-r.lookback))
	if err != nil {
		r.metrics.ReconcileRun(false)
		return report, err
	}

	for _, rc := range receipts {
		report.Checked++
		_, err := r.ledger.Get(ctx, rc.IdempotencyKey)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			r.metrics.ReconcileRun(false)
			return report, err
		}
		if _, pending := r.executor.pendingTrade(rc.IdempotencyKey); pending {
			continue
		}
		// The transfer may belong to a trade that is still committing.
		known, err := r.executor.recorded(ctx, rc)
		if err != nil {
			r.metrics.ReconcileRun(false)
			return report, err
		}
		if known {
			continue
		}
		report.Orphans = append(report.Orphans, rc)
		r.logger.Error("settled transfer has no ledger entry",
			"transaction_id", rc.IdempotencyKey,
			"cohort_id", rc.CohortID,
			"from", rc.From,
			"to", rc.To,
			"amount", rc.Amount,
			"settled_at", rc.SettledAt,
		)
	}

	r.metrics.OrphanTransfers(len(report.Orphans))
	r.metrics.ReconcileRun(len(report.Failed) == 0)
	if len(report.Replayed) > 0 || len(report.Failed) > 0 || len(report.Orphans) > 0 {
		r.logger.Info("reconciliation pass",
			"checked", report.Checked,
			"replayed", len(report.Replayed),
			"failed", len(report.Failed),
			"orphans", len(report.Orphans),
		)
	}
	return report, nil
}
