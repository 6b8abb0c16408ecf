package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Policy statuses
const (
	PolicyStatusPending       = "pending"
	PolicyStatusActive        = "active"
	PolicyStatusExpired       = "expired"
	PolicyStatusClaimed       = "claimed"
	PolicyStatusCancelled     = "cancelled"
	PolicyStatusPayoutPending = "payout_pending"
	PolicyStatusPaid          = "paid"
)

// Policy types
const (
	PolicyTypeFlightDelay  = "flight_delay"
	PolicyTypeFlightCancel = "flight_cancel"
)

// Valid policy state transitions: from -> []to.
// PayoutPending is reachable only from Active; Paid only from PayoutPending.
// PayoutPending -> Active releases the claim hold after a rejected claim so
// another claim attempt can be made while the policy is unpaid.
var ValidPolicyTransitions = map[string][]string{
	PolicyStatusPending:       {PolicyStatusActive, PolicyStatusCancelled},
	PolicyStatusActive:        {PolicyStatusPayoutPending, PolicyStatusExpired, PolicyStatusCancelled},
	PolicyStatusPayoutPending: {PolicyStatusPaid, PolicyStatusActive},
	PolicyStatusExpired:       {},
	PolicyStatusClaimed:       {},
	PolicyStatusPaid:          {},
	PolicyStatusCancelled:     {},
}

func IsValidPolicyTransition(from, to string) bool {
	allowed, ok := ValidPolicyTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Policy struct {
	ID           uuid.UUID `json:"id"`
	PolicyNumber string    `json:"policy_number"`
	UserID       uuid.UUID `json:"user_id"`
	PolicyType   string    `json:"policy_type"`
	Status       string    `json:"status"`

	// Flight identifiers used by the attestation request
	FlightNumber       string    `json:"flight_number"`
	AirlineCode        string    `json:"airline_code"`
	DepartureAirport   string    `json:"departure_airport"`
	ArrivalAirport     string    `json:"arrival_airport"`
	ScheduledDeparture time.Time `json:"scheduled_departure"`
	ScheduledArrival   time.Time `json:"scheduled_arrival"`

	CoverageAmount decimal.Decimal `json:"coverage_amount"`
	PremiumAmount  decimal.Decimal `json:"premium_amount"`
	Currency       string          `json:"currency"`

	// Claim trigger: inclusive threshold, measured in whole minutes
	DelayThresholdMinutes int `json:"delay_threshold_minutes"`

	// Risk assessment recorded at quote time
	RiskScore        *float64 `json:"risk_score,omitempty"`
	DelayProbability *float64 `json:"delay_probability,omitempty"`
	RiskTier         *string  `json:"risk_tier,omitempty"`

	// Filled by verification / payout
	ActualDelayMinutes *int             `json:"actual_delay_minutes,omitempty"`
	FlightStatus       *string          `json:"flight_status,omitempty"`
	PayoutAmount       *decimal.Decimal `json:"payout_amount,omitempty"`
	PayoutAddress      *string          `json:"payout_address,omitempty"`
	PaidAt             *time.Time       `json:"paid_at,omitempty"`

	CoverageStart time.Time  `json:"coverage_start"`
	CoverageEnd   time.Time  `json:"coverage_end"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
}

// IsClaimable reports whether a claim can be initiated against the policy.
func (p *Policy) IsClaimable() bool {
	return p.Status == PolicyStatusActive
}

func (p *Policy) IsExpired(now time.Time) bool {
	return now.After(p.CoverageEnd)
}
