package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/models"
)

func healthTestConfig() *config.Config {
	return &config.Config{
		MinCollateralization:   decimal.NewFromInt(150),
		ReserveFloor:           decimal.NewFromInt(10000),
		UtilizationWarnPercent: decimal.NewFromInt(80),
	}
}

func testPool(reserve, tvl, premiums, payouts, ratio int64) *models.InsurancePool {
	return &models.InsurancePool{
		ID:                     uuid.New(),
		Name:                   "Main Pool",
		Symbol:                 "asUSDT",
		IsActive:               true,
		StablecoinReserve:      decimal.NewFromInt(reserve),
		TotalValueLocked:       decimal.NewFromInt(tvl),
		TotalPremiumsCollected: decimal.NewFromInt(premiums),
		TotalPayoutsMade:       decimal.NewFromInt(payouts),
		CollateralizationRatio: decimal.NewFromInt(ratio),
	}
}

func TestBuildStats(t *testing.T) {
	pool := testPool(50000, 100000, 60000, 20000, 200)
	stats := buildStats(pool)

	// utilization = (premiums - payouts) / TVL = 40000/100000 = 40%
	if want := decimal.NewFromInt(40); !stats.UtilizationRate.Equal(want) {
		t.Errorf("utilization = %s, want %s", stats.UtilizationRate, want)
	}
	// available = TVL - payouts
	if want := decimal.NewFromInt(80000); !stats.AvailableForClaims.Equal(want) {
		t.Errorf("available = %s, want %s", stats.AvailableForClaims, want)
	}
}

func TestBuildStats_EmptyPool(t *testing.T) {
	stats := buildStats(testPool(0, 0, 0, 0, 0))
	if !stats.UtilizationRate.IsZero() {
		t.Errorf("utilization on empty pool = %s, want 0", stats.UtilizationRate)
	}
}

func TestAssessHealth(t *testing.T) {
	cfg := healthTestConfig()

	tests := []struct {
		name         string
		pool         *models.InsurancePool
		wantRisk     string
		wantHealthy  bool
		wantWarnings int
	}{
		{
			name:         "healthy pool",
			pool:         testPool(50000, 100000, 60000, 20000, 200),
			wantRisk:     models.RiskLevelLow,
			wantHealthy:  true,
			wantWarnings: 0,
		},
		{
			name:         "low collateralization only",
			pool:         testPool(50000, 100000, 60000, 20000, 120),
			wantRisk:     models.RiskLevelMedium,
			wantWarnings: 1,
		},
		{
			name:         "reserve below floor only",
			pool:         testPool(5000, 100000, 60000, 20000, 200),
			wantRisk:     models.RiskLevelMedium,
			wantWarnings: 1,
		},
		{
			name: "high utilization only",
			// (90000-0)/100000 = 90% > 80%
			pool:         testPool(95000, 100000, 90000, 0, 200),
			wantRisk:     models.RiskLevelMedium,
			wantWarnings: 1,
		},
		{
			name:         "two warnings is high risk",
			pool:         testPool(5000, 100000, 60000, 20000, 120),
			wantRisk:     models.RiskLevelHigh,
			wantWarnings: 2,
		},
		{
			name:         "all three warnings",
			pool:         testPool(5000, 100000, 90000, 0, 120),
			wantRisk:     models.RiskLevelHigh,
			wantWarnings: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := assessHealth(tt.pool, cfg)
			if health.RiskLevel != tt.wantRisk {
				t.Errorf("risk level = %q, want %q (warnings: %v)", health.RiskLevel, tt.wantRisk, health.Warnings)
			}
			if len(health.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %d (%v), want %d", len(health.Warnings), health.Warnings, tt.wantWarnings)
			}
			if health.IsHealthy != tt.wantHealthy {
				t.Errorf("is_healthy = %v, want %v", health.IsHealthy, tt.wantHealthy)
			}
		})
	}
}
