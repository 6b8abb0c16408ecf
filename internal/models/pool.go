package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pool transaction types
const (
	PoolTxPremiumDeposit = "premium_deposit"
	PoolTxPayout         = "payout"
	PoolTxLPStake        = "lp_stake"
	PoolTxLPUnstake      = "lp_unstake"
)

type InsurancePool struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	IsActive bool      `json:"is_active"`

	TotalValueLocked       decimal.Decimal `json:"total_value_locked"`
	TotalPremiumsCollected decimal.Decimal `json:"total_premiums_collected"`
	TotalPayoutsMade       decimal.Decimal `json:"total_payouts_made"`

	// Reserve split. StablecoinReserve backs claim payouts and is never
	// allowed to go negative.
	StablecoinReserve      decimal.Decimal `json:"stablecoin_reserve"`
	FAssetReserve          decimal.Decimal `json:"fasset_reserve"`
	CollateralizationRatio decimal.Decimal `json:"collateralization_ratio"`

	TotalPoliciesIssued int `json:"total_policies_issued"`
	TotalClaimsPaid     int `json:"total_claims_paid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PoolTransaction struct {
	ID              uuid.UUID       `json:"id"`
	PoolID          uuid.UUID       `json:"pool_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	UserID          *uuid.UUID      `json:"user_id,omitempty"`
	PolicyID        *uuid.UUID      `json:"policy_id,omitempty"`
	ClaimID         *uuid.UUID      `json:"claim_id,omitempty"`
	ToAddress       *string         `json:"to_address,omitempty"`
	Description     *string         `json:"description,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PoolStats is the read-only snapshot served to clients.
type PoolStats struct {
	PoolID                 uuid.UUID       `json:"pool_id"`
	Name                   string          `json:"name"`
	Symbol                 string          `json:"symbol"`
	TotalValueLocked       decimal.Decimal `json:"total_value_locked"`
	TotalPremiumsCollected decimal.Decimal `json:"total_premiums_collected"`
	TotalPayoutsMade       decimal.Decimal `json:"total_payouts_made"`
	StablecoinReserve      decimal.Decimal `json:"stablecoin_reserve"`
	FAssetReserve          decimal.Decimal `json:"fasset_reserve"`
	CollateralizationRatio decimal.Decimal `json:"collateralization_ratio"`
	TotalPoliciesIssued    int             `json:"total_policies_issued"`
	TotalClaimsPaid        int             `json:"total_claims_paid"`
	UtilizationRate        decimal.Decimal `json:"utilization_rate"`
	AvailableForClaims     decimal.Decimal `json:"available_for_claims"`
	IsActive               bool            `json:"is_active"`
}

// Pool health risk levels
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

type PoolHealth struct {
	IsHealthy              bool            `json:"is_healthy"`
	CollateralizationRatio decimal.Decimal `json:"collateralization_ratio"`
	MinimumRatio           decimal.Decimal `json:"minimum_ratio"`
	AvailableForClaims     decimal.Decimal `json:"available_for_claims"`
	UtilizationRate        decimal.Decimal `json:"utilization_rate"`
	RiskLevel              string          `json:"risk_level"`
	Warnings               []string        `json:"warnings"`
}
