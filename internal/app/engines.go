package service

import (
	"context"
	"fmt"
	"math"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Rating bounds accepted from users.
const (
	minRating = 1.0
	maxRating = 5.0
)

// RankEngines ranks active engines for the required data and budget.
// A negative budget ranks without an affordability limit.
func (s *Service) RankEngines(_ context.Context, required model.DataTypes, budget int) ([]catalog.RankedEngine, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if budget < 0 {
		budget = math.MaxInt
	}
	return s.catalog.Rank(required, budget), nil
}

// RateEngine folds a user rating into the engine's history.
func (s *Service) RateEngine(_ context.Context, engineID string, rating float64) (model.EngineUsage, error) {
	if err := s.ready(); err != nil {
		return model.EngineUsage{}, err
	}
	if rating < minRating || rating > maxRating || math.IsNaN(rating) {
		return model.EngineUsage{}, fmt.Errorf("%w: rating must be within [%.0f,%.0f]", ErrInvalidArgument, minRating, maxRating)
	}
	if !s.catalog.Rate(engineID, rating) {
		return model.EngineUsage{}, fmt.Errorf("%w: engine %s", ErrEngineNotFound, engineID)
	}
	return s.catalog.Usage(engineID), nil
}

// TopUp adds credits to an account.
func (s *Service) TopUp(ctx context.Context, accountID string, amount int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if accountID == "" || amount <= 0 {
		return 0, fmt.Errorf("%w: account and a positive amount are required", ErrInvalidArgument)
	}
	return s.ledger.TopUp(ctx, accountID, amount)
}

// Balance returns an account's spendable credits.
func (s *Service) Balance(ctx context.Context, accountID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, accountID)
}
