package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/engine"
	"github.com/efreitasn/cohortex/internal/store"
)

// SubmitTradeRequest is a trade submission as it arrives from a client.
// Price and Side are raw strings and are parsed here.
type SubmitTradeRequest struct {
	TransactionID string
	WalletID      string
	CohortID      string
	Amount        int64
	Price         string
	Side          string
}

// TradeResult is returned for every accepted submission, fresh or replayed.
type TradeResult struct {
	TransactionID string
	Fee           decimal.Decimal
	Message       string
	Replayed      bool
	Trade         domain.Trade
}

// TradeService is the entry point for trade submission and recovery.
type TradeService struct {
	executor   *engine.Executor
	reconciler *engine.Reconciler
	ledger     store.Ledger
}

// NewTradeService creates a new TradeService with the given dependencies.
func NewTradeService(executor *engine.Executor, reconciler *engine.Reconciler, ledger store.Ledger) *TradeService {
	return &TradeService{
		executor:   executor,
		reconciler: reconciler,
		ledger:     ledger,
	}
}

// Submit parses the request into a closed buy/sell trade and executes it.
func (s *TradeService) Submit(ctx context.Context, req SubmitTradeRequest) (*TradeResult, error) {
	tr, err := parseTradeRequest(req)
	if err != nil {
		return nil, err
	}

	res, err := s.executor.Execute(ctx, tr)
	if err != nil {
		return nil, err
	}
	return toTradeResult(res), nil
}

// ReplayCommit retries the ledger commit of a settled trade.
func (s *TradeService) ReplayCommit(ctx context.Context, transactionID string) (*TradeResult, error) {
	res, err := s.executor.ReplayCommit(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return toTradeResult(res), nil
}

// Reconcile runs one reconciliation pass immediately.
func (s *TradeService) Reconcile(ctx context.Context) (engine.Report, error) {
	return s.reconciler.RunOnce(ctx)
}

// Pending lists settled trades whose ledger commit has not succeeded yet.
func (s *TradeService) Pending() []domain.Trade {
	return s.executor.Pending()
}

// WalletTrades returns the wallet's trades in the order they were committed.
func (s *TradeService) WalletTrades(ctx context.Context, walletID string) ([]domain.Trade, error) {
	if err := validateWalletID(walletID); err != nil {
		return nil, err
	}
	return s.ledger.ListByWallet(ctx, walletID)
}

// GetTrade returns a committed trade by transaction id.
func (s *TradeService) GetTrade(ctx context.Context, transactionID string) (domain.Trade, error) {
	return s.ledger.Get(ctx, transactionID)
}

func parseTradeRequest(req SubmitTradeRequest) (domain.TradeRequest, error) {
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return domain.TradeRequest{}, err
	}
	if strings.TrimSpace(req.Price) == "" {
		return domain.TradeRequest{}, &domain.ValidationError{Message: "price is required"}
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		return domain.TradeRequest{}, &domain.ValidationError{Message: "price must be a decimal number"}
	}

	tr := domain.TradeRequest{
		TransactionID: strings.TrimSpace(req.TransactionID),
		WalletID:      req.WalletID,
		CohortID:      req.CohortID,
		Amount:        req.Amount,
		Price:         price,
		Side:          side,
	}
	if err := tr.Validate(); err != nil {
		return domain.TradeRequest{}, err
	}
	return tr, nil
}

func toTradeResult(res engine.Result) *TradeResult {
	side := string(res.Trade.Side)
	msg := strings.ToUpper(side[:1]) + side[1:] + " executed successfully"
	if res.Replayed {
		msg = "Transaction already executed"
	}
	return &TradeResult{
		TransactionID: res.TransactionID,
		Fee:           res.Fee,
		Message:       msg,
		Replayed:      res.Replayed,
		Trade:         res.Trade,
	}
}
