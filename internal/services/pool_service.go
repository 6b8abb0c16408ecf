package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/events"
	"github.com/aeroshield/backend/internal/flare"
	"github.com/aeroshield/backend/internal/models"
	"github.com/aeroshield/backend/internal/repositories"
)

var hundred = decimal.NewFromInt(100)

// PoolService exposes the liquidity pool: read-only stats and health, premium
// credits, and the transaction history. Payout debits go through the claims
// engine's payout transaction, never through this service.
type PoolService struct {
	poolRepo  *repositories.PoolRepo
	ftso      *flare.FTSOClient
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewPoolService(poolRepo *repositories.PoolRepo, ftso *flare.FTSOClient, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *PoolService {
	return &PoolService{
		poolRepo:  poolRepo,
		ftso:      ftso,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Bootstrap ensures the configured pool exists and returns it.
func (s *PoolService) Bootstrap(ctx context.Context) (*models.InsurancePool, error) {
	pool, err := s.poolRepo.GetOrCreate(ctx, s.cfg.PoolName, s.cfg.PoolSymbol, s.cfg.MinCollateralization)
	if err != nil {
		return nil, fmt.Errorf("bootstrap insurance pool: %w", err)
	}
	return pool, nil
}

// GetStats returns the read-only pool snapshot. Utilization is
// (premiums - payouts) / TVL; available liquidity is TVL - payouts.
func (s *PoolService) GetStats(ctx context.Context, poolID uuid.UUID) (*models.PoolStats, error) {
	pool, err := s.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return buildStats(pool), nil
}

func buildStats(pool *models.InsurancePool) *models.PoolStats {
	return &models.PoolStats{
		PoolID:                 pool.ID,
		Name:                   pool.Name,
		Symbol:                 pool.Symbol,
		TotalValueLocked:       pool.TotalValueLocked,
		TotalPremiumsCollected: pool.TotalPremiumsCollected,
		TotalPayoutsMade:       pool.TotalPayoutsMade,
		StablecoinReserve:      pool.StablecoinReserve,
		FAssetReserve:          pool.FAssetReserve,
		CollateralizationRatio: pool.CollateralizationRatio,
		TotalPoliciesIssued:    pool.TotalPoliciesIssued,
		TotalClaimsPaid:        pool.TotalClaimsPaid,
		UtilizationRate:        utilizationRate(pool),
		AvailableForClaims:     pool.TotalValueLocked.Sub(pool.TotalPayoutsMade),
		IsActive:               pool.IsActive,
	}
}

func utilizationRate(pool *models.InsurancePool) decimal.Decimal {
	if pool.TotalValueLocked.IsZero() {
		return decimal.Zero
	}
	return pool.TotalPremiumsCollected.
		Sub(pool.TotalPayoutsMade).
		Div(pool.TotalValueLocked).
		Mul(hundred).
		Round(2)
}

// CheckHealth derives the pool risk level from three warning thresholds:
// collateralization below the minimum, utilization above the warn level, and
// reserve below the floor. Two or more warnings is high risk, one is medium.
func (s *PoolService) CheckHealth(ctx context.Context, poolID uuid.UUID) (*models.PoolHealth, error) {
	pool, err := s.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return assessHealth(pool, s.cfg), nil
}

func assessHealth(pool *models.InsurancePool, cfg *config.Config) *models.PoolHealth {
	utilization := utilizationRate(pool)
	warnings := []string{}

	if pool.CollateralizationRatio.LessThan(cfg.MinCollateralization) {
		warnings = append(warnings, fmt.Sprintf("collateralization %s%% is below the %s%% minimum",
			pool.CollateralizationRatio.StringFixed(0), cfg.MinCollateralization.StringFixed(0)))
	}
	if utilization.GreaterThan(cfg.UtilizationWarnPercent) {
		warnings = append(warnings, fmt.Sprintf("utilization %s%% exceeds %s%%",
			utilization.StringFixed(1), cfg.UtilizationWarnPercent.StringFixed(0)))
	}
	if pool.StablecoinReserve.LessThan(cfg.ReserveFloor) {
		warnings = append(warnings, fmt.Sprintf("stablecoin reserve %s is below the %s floor",
			pool.StablecoinReserve.StringFixed(2), cfg.ReserveFloor.StringFixed(2)))
	}

	riskLevel := models.RiskLevelLow
	switch {
	case len(warnings) >= 2:
		riskLevel = models.RiskLevelHigh
	case len(warnings) == 1:
		riskLevel = models.RiskLevelMedium
	}

	return &models.PoolHealth{
		IsHealthy:              len(warnings) == 0,
		CollateralizationRatio: pool.CollateralizationRatio,
		MinimumRatio:           cfg.MinCollateralization,
		AvailableForClaims:     pool.TotalValueLocked.Sub(pool.TotalPayoutsMade),
		UtilizationRate:        utilization,
		RiskLevel:              riskLevel,
		Warnings:               warnings,
	}
}

// CreditPremium books a collected premium into the pool and publishes the
// pool update event.
func (s *PoolService) CreditPremium(ctx context.Context, poolID uuid.UUID, amount decimal.Decimal, policyID, userID uuid.UUID) (*models.PoolTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("premium amount must be positive, got %s", amount)
	}

	tx, err := s.poolRepo.CreditPremium(ctx, poolID, amount, policyID, userID)
	if err != nil {
		return nil, err
	}

	_ = s.publisher.Publish(ctx, events.StreamPool, events.Event{
		Type: events.EventPoolUpdated,
		Payload: map[string]any{
			"pool_id":   poolID.String(),
			"tx_type":   models.PoolTxPremiumDeposit,
			"amount":    amount.StringFixed(2),
			"policy_id": policyID.String(),
		},
	})
	return tx, nil
}

// ListTransactions returns the pool ledger history, newest first.
func (s *PoolService) ListTransactions(ctx context.Context, poolID uuid.UUID, limit, offset int) ([]models.PoolTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.poolRepo.ListTransactions(ctx, poolID, limit, offset)
}

// TVLInUSD converts the pool's TVL to USD using the FTSO stablecoin feed.
func (s *PoolService) TVLInUSD(ctx context.Context, poolID uuid.UUID) (decimal.Decimal, error) {
	pool, err := s.poolRepo.GetByID(ctx, poolID)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := s.ftso.GetStablecoinPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return pool.TotalValueLocked.Mul(price).Round(2), nil
}
