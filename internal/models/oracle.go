package models

import (
	"time"

	"github.com/google/uuid"
)

// Oracle request statuses, mirroring the FDC attestation round lifecycle.
const (
	OracleStatusPending   = "pending"
	OracleStatusSubmitted = "submitted"
	OracleStatusVoting    = "voting"
	OracleStatusFinalized = "finalized"
	OracleStatusVerified  = "verified"
	OracleStatusFailed    = "failed"
	OracleStatusExpired   = "expired"
)

// Attestation types
const (
	AttestationWeb2JSON       = "Web2Json"
	AttestationEVMTransaction = "EVMTransaction"
	AttestationPayment        = "Payment"
)

type OracleRequest struct {
	ID              uuid.UUID  `json:"id"`
	RequestID       string     `json:"request_id"`
	AttestationType string     `json:"attestation_type"`
	SourceID        string     `json:"source_id"`
	Status          string     `json:"status"`
	ClaimID         *uuid.UUID `json:"claim_id,omitempty"`
	RequestBody     []byte     `json:"request_body,omitempty"` // opaque JSON
	MerkleRoot      *string    `json:"merkle_root,omitempty"`
	Proof           []string   `json:"proof,omitempty"`
	ResponseBody    []byte     `json:"response_body,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	FinalizedAt     *time.Time `json:"finalized_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
