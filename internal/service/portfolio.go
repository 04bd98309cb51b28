package service

import (
	"context"
	"regexp"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/efreitasn/cohortex/internal/engine"
)

var walletIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// PortfolioService values wallets at the latest fresh prices.
type PortfolioService struct {
	projector *engine.Projector
}

// NewPortfolioService creates a new PortfolioService.
func NewPortfolioService(projector *engine.Projector) *PortfolioService {
	return &PortfolioService{projector: projector}
}

// Get returns the wallet's positive holdings and their total value. An
// unknown wallet has an empty portfolio.
func (s *PortfolioService) Get(ctx context.Context, walletID string) (engine.Portfolio, error) {
	if err := validateWalletID(walletID); err != nil {
		return engine.Portfolio{}, err
	}
	return s.projector.PortfolioOf(ctx, walletID)
}

func validateWalletID(walletID string) error {
	if !walletIDRegex.MatchString(walletID) {
		return &domain.ValidationError{Message: "wallet_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}
