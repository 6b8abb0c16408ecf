package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced to the API layer. NotFound and Conflict map to 404
// and 409; the policy/claim errors are terminal user errors (400).
var (
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrClaimNotFound        = errors.New("claim not found")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPolicyNotActive      = errors.New("policy is not active")
	ErrPolicyAlreadyClaimed = errors.New("policy has already been claimed")
	ErrClaimNotApproved     = errors.New("claim is not approved for payout")
	ErrConflict             = errors.New("status conflict")
	ErrProofNotAvailable    = errors.New("proof not available before finalization")
)

// InsufficientFundsError is returned by the pool ledger when a payout would
// overdraw the stablecoin reserve. No mutation happens when it is returned.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient pool funds: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// Oracle error kinds
const (
	OracleErrSubmission = "submission"
	OracleErrTimeout    = "timeout"
	OracleErrFailed     = "failed"
)

// OracleError is a tagged failure from the attestation gateway. Kind tells the
// claims engine which terminal state and remediation path applies.
type OracleError struct {
	Kind      string
	RequestID string
	Err       error
}

func (e *OracleError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("oracle %s error (request %s): %v", e.Kind, e.RequestID, e.Err)
	}
	return fmt.Sprintf("oracle %s error: %v", e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }
