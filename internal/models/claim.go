package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Claim statuses
const (
	ClaimStatusInitiated  = "initiated"
	ClaimStatusVerifying  = "verifying"
	ClaimStatusApproved   = "approved"
	ClaimStatusRejected   = "rejected"
	ClaimStatusProcessing = "processing"
	ClaimStatusPaid       = "paid"
	ClaimStatusFailed     = "failed"
)

// Claim types
const (
	ClaimTypeAutomatic = "automatic"
	ClaimTypeManual    = "manual"
)

// Valid claim state transitions: from -> []to.
// Rejected and Failed are terminal; nothing moves out of them automatically.
var ValidClaimTransitions = map[string][]string{
	ClaimStatusInitiated:  {ClaimStatusVerifying, ClaimStatusFailed},
	ClaimStatusVerifying:  {ClaimStatusApproved, ClaimStatusRejected, ClaimStatusFailed},
	ClaimStatusApproved:   {ClaimStatusProcessing},
	ClaimStatusProcessing: {ClaimStatusPaid, ClaimStatusFailed},
	ClaimStatusRejected:   {},
	ClaimStatusPaid:       {},
	ClaimStatusFailed:     {},
}

func IsValidClaimTransition(from, to string) bool {
	allowed, ok := ValidClaimTransitions[from]
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

type Claim struct {
	ID          uuid.UUID `json:"id"`
	ClaimNumber string    `json:"claim_number"`
	UserID      uuid.UUID `json:"user_id"`
	PolicyID    uuid.UUID `json:"policy_id"`
	ClaimType   string    `json:"claim_type"`
	Status      string    `json:"status"`

	TriggerEvent     string    `json:"trigger_event"`
	TriggerValue     *string   `json:"trigger_value,omitempty"`
	TriggerTimestamp time.Time `json:"trigger_timestamp"`

	// Oracle verification. RequestID is persisted immediately after submission
	// so an interrupted verification can be resumed by an operator.
	OracleRequestID       *string    `json:"oracle_request_id,omitempty"`
	OracleAttestationType *string    `json:"oracle_attestation_type,omitempty"`
	OracleMerkleRoot      *string    `json:"oracle_merkle_root,omitempty"`
	OracleProofData       []byte     `json:"oracle_proof_data,omitempty"` // opaque JSON blob
	OracleVerified        bool       `json:"oracle_verified"`
	OracleVerifiedAt      *time.Time `json:"oracle_verified_at,omitempty"`

	// Price feed snapshot taken at payout time
	PriceUSD       *decimal.Decimal `json:"price_usd,omitempty"`
	PriceTimestamp *time.Time       `json:"price_timestamp,omitempty"`

	// Fixed at creation from the policy coverage; never changes afterwards.
	PayoutAmount   decimal.Decimal `json:"payout_amount"`
	PayoutCurrency string          `json:"payout_currency"`
	PayoutAddress  string          `json:"payout_address"`

	RejectionReason *string `json:"rejection_reason,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

func (c *Claim) IsTerminal() bool {
	return len(ValidClaimTransitions[c.Status]) == 0
}

// ProgressPercentage derives claim progress from the four milestone steps:
// initiated, verifying (oracle request submitted), approved, paid.
func (c *Claim) ProgressPercentage() int {
	completed := 1 // initiated is always done for an existing claim
	if c.OracleRequestID != nil {
		completed++
	}
	if c.ApprovedAt != nil {
		completed++
	}
	if c.PaidAt != nil {
		completed++
	}
	return completed * 100 / 4
}
