package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/metrics"
	"github.com/efreitasn/cohortex/internal/settlement"
	"github.com/efreitasn/cohortex/internal/store"
)

// DefaultSettleTimeout bounds a single gateway transfer.
const DefaultSettleTimeout = 10 * time.Second

// Publisher receives the price of every freshly settled trade. It must
// not block.
type Publisher interface {
	Publish(cohortID string, price decimal.Decimal)
}

// State is a trade request's position in the execution state machine.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateLocked
	StateSettling
	StateCommitted
	StateBroadcast
	StateRejected
	StateSettlementFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateLocked:
		return "locked"
	case StateSettling:
		return "settling"
	case StateCommitted:
		return "committed"
	case StateBroadcast:
		return "broadcast"
	case StateRejected:
		return "rejected"
	case StateSettlementFailed:
		return "settlement_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is what a caller gets back for a trade. Replayed is set when the
// transaction id had already been committed and nothing new happened.
type Result struct {
	TransactionID string
	Fee           decimal.Decimal
	Trade         domain.Trade
	State         State
	Replayed      bool
}

// ExecutorConfig holds the executor's tunables.
type ExecutorConfig struct {
	// Treasury is the custody account buys draw from and sells pay into.
	Treasury      string
	SettleTimeout time.Duration
	Fees          domain.FeePolicy
}

// Executor runs trade requests through validation, the per-pair critical
// section, settlement and the ledger commit.
type Executor struct {
	ledger    store.Ledger
	prices    store.PriceCache
	cohorts   *store.CohortStore
	gateway   settlement.Gateway
	publisher Publisher
	projector *Projector
	locks     *KeyLocker
	cfg       ExecutorConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	pendingMu sync.Mutex
	pending   map[string]domain.Trade // settled, not yet in the ledger
}

// NewExecutor wires an Executor. publisher and m may be nil.
func NewExecutor(
	ledger store.Ledger,
	prices store.PriceCache,
	cohorts *store.CohortStore,
	gateway settlement.Gateway,
	publisher Publisher,
	cfg ExecutorConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Executor {
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.Fees.BaseRate.IsZero() && cfg.Fees.SurchargeRate.IsZero() && cfg.Fees.SurchargeThreshold == 0 {
		cfg.Fees = domain.DefaultFeePolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		ledger:    ledger,
		prices:    prices,
		cohorts:   cohorts,
		gateway:   gateway,
		publisher: publisher,
		projector: NewProjector(ledger, prices),
		locks:     NewKeyLocker(),
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		pending:   make(map[string]domain.Trade),
	}
}

// Projector returns the holdings projector over the executor's ledger.
func (e *Executor) Projector() *Projector {
	return e.projector
}

// Execute runs a trade request to a terminal state. An empty
// TransactionID is replaced with a fresh one. Resubmitting a committed
// TransactionID returns the original result without settling again.
//
// Cancelling ctx only has an effect before the transfer starts. Once the
// gateway has been called, the request runs to completion.
func (e *Executor) Execute(ctx context.Context, req domain.TradeRequest) (res Result, err error) {
	state := StateReceived
	defer func() { e.observe(req, res, state, err) }()

	if err = req.Validate(); err != nil {
		state = StateRejected
		return Result{}, err
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}

	if res, ok, rerr := e.committed(ctx, req); rerr != nil || ok {
		if rerr != nil {
			state = StateRejected
		}
		return res, rerr
	}

	cohort, err := e.cohorts.Get(req.CohortID)
	if err != nil {
		state = StateRejected
		return Result{}, err
	}
	state = StateValidated

	unlock, err := e.locks.Lock(ctx, pairKey(req.WalletID, req.CohortID))
	if err != nil {
		state = StateRejected
		return Result{}, fmt.Errorf("waiting for %s/%s: %w", req.WalletID, req.CohortID, err)
	}
	state = StateLocked

	res, state, err = e.settleLocked(ctx, req, cohort)
	unlock()
	if err != nil {
		return res, err
	}

	if !res.Replayed && e.publisher != nil {
		e.publisher.Publish(res.Trade.CohortID, res.Trade.Price)
		state = StateBroadcast
	}
	res.State = state
	return res, nil
}

// committed returns the ledger's result for an already committed
// transaction id.
func (e *Executor) committed(ctx context.Context, req domain.TradeRequest) (Result, bool, error) {
	t, err := e.ledger.Get(ctx, req.TransactionID)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	if !t.SamePair(req) {
		return Result{}, false, &domain.ValidationError{
			Message: fmt.Sprintf("transaction_id %s is already used by a different wallet or cohort", req.TransactionID),
		}
	}
	return Result{
		TransactionID: t.TransactionID,
		Fee:           t.Fee,
		Trade:         t,
		State:         StateCommitted,
		Replayed:      true,
	}, true, nil
}

// settleLocked runs everything that must happen inside the pair's
// critical section. It returns the last state reached.
func (e *Executor) settleLocked(ctx context.Context, req domain.TradeRequest, cohort *domain.Cohort) (Result, State, error) {
	// A request that waited on the lock may have been beaten by a retry
	// of itself.
	if res, ok, err := e.committed(ctx, req); err != nil || ok {
		if err != nil {
			return Result{}, StateRejected, err
		}
		return res, StateCommitted, nil
	}
	if t, ok := e.pendingTrade(req.TransactionID); ok {
		res, err := e.commit(ctx, t, false)
		if err != nil {
			return Result{}, StateSettling, err
		}
		return res, StateCommitted, nil
	}

	// The transfer may have settled on an earlier attempt whose commit
	// was lost. Finish that commit instead of checking balances again.
	receipt, settled, err := e.gateway.Lookup(ctx, req.TransactionID)
	if err != nil {
		return Result{}, StateSettlementFailed, asSettlementError(err)
	}
	if settled {
		if !e.receiptMatches(receipt, req) {
			return Result{}, StateRejected, &domain.ValidationError{
				Message: fmt.Sprintf("transaction_id %s already settled a different transfer", req.TransactionID),
			}
		}
		t := e.newTrade(req, e.cfg.Fees.Compute(req.Amount, req.Price), receipt.SettledAt)
		e.logger.Warn("completing commit for previously settled transfer",
			"transaction_id", req.TransactionID,
			"wallet_id", req.WalletID,
			"cohort_id", req.CohortID,
		)
		res, err := e.commit(ctx, t, false)
		if err != nil {
			return Result{}, StateSettling, err
		}
		return res, StateCommitted, nil
	}

	if err := e.checkBalance(ctx, req); err != nil {
		return Result{}, StateRejected, err
	}
	fee := e.cfg.Fees.Compute(req.Amount, req.Price)

	if err := ctx.Err(); err != nil {
		return Result{}, StateRejected, err
	}

	transfer := settlement.TransferRequest{
		CohortID:       req.CohortID,
		TokenAddress:   cohort.TokenAddress,
		Amount:         req.Amount,
		IdempotencyKey: req.TransactionID,
	}
	if req.Side == domain.SideBuy {
		transfer.From, transfer.To = e.cfg.Treasury, req.WalletID
	} else {
		transfer.From, transfer.To = req.WalletID, e.cfg.Treasury
	}

	// From here on the caller can no longer cancel.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SettleTimeout)
	start := time.Now()
	receipt, err = e.gateway.Transfer(settleCtx, transfer)
	timedOut := errors.Is(settleCtx.Err(), context.DeadlineExceeded)
	cancel()
	e.metrics.SettlementObserved(time.Since(start), err == nil)
	if err != nil {
		if timedOut {
			err = &domain.SettlementError{Reason: "settlement timed out after " + e.cfg.SettleTimeout.String()}
		}
		e.logger.Warn("settlement failed",
			"transaction_id", req.TransactionID,
			"wallet_id", req.WalletID,
			"cohort_id", req.CohortID,
			"error", err,
		)
		return Result{}, StateSettlementFailed, asSettlementError(err)
	}

	settledAt := receipt.SettledAt
	if settledAt.IsZero() {
		settledAt = e.now().UTC()
	}
	res, err := e.commit(ctx, e.newTrade(req, fee, settledAt), true)
	if err != nil {
		return Result{}, StateSettling, err
	}
	return res, StateCommitted, nil
}

// checkBalance rejects sells beyond the wallet's position and buys beyond
// the treasury's custody balance.
func (e *Executor) checkBalance(ctx context.Context, req domain.TradeRequest) error {
	if req.Side == domain.SideSell {
		position, err := e.projector.PositionOf(ctx, req.WalletID, req.CohortID)
		if err != nil {
			return err
		}
		if position < req.Amount {
			return fmt.Errorf("%w: wallet %s holds %d of %s, sell needs %d",
				domain.ErrInsufficientHoldings, req.WalletID, position, req.CohortID, req.Amount)
		}
		return nil
	}

	supply, err := e.gateway.AvailableSupply(ctx, req.CohortID, e.cfg.Treasury)
	if err != nil {
		return asSettlementError(err)
	}
	if supply < req.Amount {
		return fmt.Errorf("%w: %d of %s available, buy needs %d",
			domain.ErrInsufficientSupply, supply, req.CohortID, req.Amount)
	}
	return nil
}

// commit appends t to the ledger. Once a transfer has settled the append
// must not be abandoned because the caller went away, so ctx only
// contributes its values. A failed append parks t for ReplayCommit.
func (e *Executor) commit(ctx context.Context, t domain.Trade, fresh bool) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	stored, err := e.ledger.Append(ctx, t)
	if errors.Is(err, domain.ErrDuplicateTransaction) {
		e.clearPending(t.TransactionID)
		return Result{
			TransactionID: stored.TransactionID,
			Fee:           stored.Fee,
			Trade:         stored,
			State:         StateCommitted,
			Replayed:      true,
		}, nil
	}
	if err != nil {
		n := e.park(t)
		e.metrics.LedgerWriteFailed()
		e.logger.Error("ledger write failed after settlement",
			"transaction_id", t.TransactionID,
			"wallet_id", t.WalletID,
			"cohort_id", t.CohortID,
			"side", t.Side,
			"amount", t.Amount,
			"pending_commits", n,
			"error", err,
		)
		return Result{}, &domain.LedgerWriteError{TransactionID: t.TransactionID, Err: err}
	}
	e.clearPending(t.TransactionID)

	// Only a trade that settled in this call may move the last price.
	if fresh {
		if err := e.prices.Set(ctx, t.CohortID, t.Price, e.now()); err != nil {
			e.logger.Warn("price cache update failed",
				"cohort_id", t.CohortID,
				"transaction_id", t.TransactionID,
				"error", err,
			)
		}
	}

	e.logger.Info("trade committed",
		"transaction_id", stored.TransactionID,
		"wallet_id", stored.WalletID,
		"cohort_id", stored.CohortID,
		"side", stored.Side,
		"amount", stored.Amount,
		"price", stored.Price.String(),
		"fee", stored.Fee.String(),
	)
	return Result{
		TransactionID: stored.TransactionID,
		Fee:           stored.Fee,
		Trade:         stored,
		State:         StateCommitted,
		Replayed:      !fresh,
	}, nil
}

// ReplayCommit retries the ledger append of a settled trade whose commit
// failed. It is idempotent: replaying an already committed transaction
// returns it unchanged. The price cache and subscribers are left alone
// because the trade is no longer the latest price signal.
func (e *Executor) ReplayCommit(ctx context.Context, transactionID string) (Result, error) {
	t, ok := e.pendingTrade(transactionID)
	if !ok {
		stored, err := e.ledger.Get(ctx, transactionID)
		if err != nil {
			return Result{}, err
		}
		return Result{
			TransactionID: stored.TransactionID,
			Fee:           stored.Fee,
			Trade:         stored,
			State:         StateCommitted,
			Replayed:      true,
		}, nil
	}

	unlock, err := e.locks.Lock(ctx, pairKey(t.WalletID, t.CohortID))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	res, err := e.commit(ctx, t, false)
	if err != nil {
		return Result{}, err
	}
	e.logger.Info("replayed commit", "transaction_id", transactionID)
	return res, nil
}

// Pending returns the settled trades still waiting for a ledger commit,
// in no particular order.
func (e *Executor) Pending() []domain.Trade {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	result := make([]domain.Trade, 0, len(e.pending))
	for _, t := range e.pending {
		result = append(result, t)
	}
	return result
}

// recorded reports whether the transfer behind rc is in the ledger or
// parked, checked inside its pair's critical section so an in-flight
// commit has finished first.
func (e *Executor) recorded(ctx context.Context, rc settlement.Receipt) (bool, error) {
	wallet := rc.To
	if rc.To == e.cfg.Treasury {
		wallet = rc.From
	}
	unlock, err := e.locks.Lock(ctx, pairKey(wallet, rc.CohortID))
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = e.ledger.Get(ctx, rc.IdempotencyKey)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		return false, err
	}
	_, pending := e.pendingTrade(rc.IdempotencyKey)
	return pending, nil
}

func (e *Executor) pendingTrade(id string) (domain.Trade, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	t, ok := e.pending[id]
	return t, ok
}

func (e *Executor) park(t domain.Trade) int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending[t.TransactionID] = t
	e.metrics.SetPendingCommits(len(e.pending))
	return len(e.pending)
}

func (e *Executor) clearPending(id string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if _, ok := e.pending[id]; ok {
		delete(e.pending, id)
		e.metrics.SetPendingCommits(len(e.pending))
	}
}

func (e *Executor) newTrade(req domain.TradeRequest, fee decimal.Decimal, settledAt time.Time) domain.Trade {
	return domain.Trade{
		TransactionID: req.TransactionID,
		WalletID:      req.WalletID,
		CohortID:      req.CohortID,
		Amount:        req.Amount,
		Price:         req.Price,
		Side:          req.Side,
		Fee:           fee,
		SettledAt:     settledAt.UTC(),
	}
}

func (e *Executor) receiptMatches(r settlement.Receipt, req domain.TradeRequest) bool {
	if r.CohortID != req.CohortID || r.Amount != req.Amount {
		return false
	}
	if req.Side == domain.SideBuy {
		return r.From == e.cfg.Treasury && r.To == req.WalletID
	}
	return r.From == req.WalletID && r.To == e.cfg.Treasury
}

func (e *Executor) observe(req domain.TradeRequest, res Result, state State, err error) {
	side := string(req.Side)
	if side == "" {
		side = "unknown"
	}
	switch {
	case err == nil && res.Replayed:
		e.metrics.TradeOutcome(side, metrics.OutcomeReplayed)
	case err == nil:
		e.metrics.TradeOutcome(side, metrics.OutcomeSettled)
	case errors.Is(err, domain.ErrLedgerWrite):
		e.metrics.TradeOutcome(side, metrics.OutcomeLedgerFailed)
	case state == StateSettlementFailed:
		e.metrics.TradeOutcome(side, metrics.OutcomeSettlementFailed)
	default:
		e.metrics.TradeOutcome(side, metrics.OutcomeRejected)
		e.logger.Debug("trade rejected",
			"transaction_id", req.TransactionID,
			"wallet_id", req.WalletID,
			"cohort_id", req.CohortID,
			"state", state.String(),
			"error", err,
		)
	}
}

func asSettlementError(err error) error {
	var se *domain.SettlementError
	if errors.As(err, &se) {
		return err
	}
	return &domain.SettlementError{Reason: err.Error()}
}
