package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/events"
	"github.com/aeroshield/backend/internal/flare"
	"github.com/aeroshield/backend/internal/models"
	"github.com/aeroshield/backend/internal/repositories"
)

// PolicyStore is the policy registry surface the claims engine needs: reads
// plus compare-and-set status transitions.
type PolicyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next string) error
	SetFlightOutcome(ctx context.Context, id uuid.UUID, delayMinutes int, flightStatus string) error
}

// ClaimStore persists claims and executes the payout transaction.
type ClaimStore interface {
	CreateWithPolicyHold(ctx context.Context, c *models.Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error)
	ClaimNumberExists(ctx context.Context, claimNumber string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string) error
	SetOracleRequest(ctx context.Context, id uuid.UUID, requestID, attestationType string) error
	MarkApproved(ctx context.Context, id uuid.UUID, merkleRoot string, proofData []byte, triggerValue string) error
	MarkRejected(ctx context.Context, id uuid.UUID, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	ExecutePayout(ctx context.Context, p repositories.ExecutePayoutParams) (*models.PoolTransaction, error)
}

// OracleGateway is the attestation surface: submit, wait, fetch proof, verify.
type OracleGateway interface {
	SubmitRequest(ctx context.Context, claimID uuid.UUID, req flare.AttestationRequest) (string, error)
	AwaitFinalization(ctx context.Context, requestID string) (*flare.FinalizedResult, error)
	GetProof(ctx context.Context, requestID string) (*flare.ProofBundle, error)
	VerifyProof(bundle *flare.ProofBundle) bool
}

// PriceSource supplies the USD price snapshot recorded at payout time.
type PriceSource interface {
	GetStablecoinPrice(ctx context.Context) (decimal.Decimal, error)
}

// AuditSink records state transitions for the audit trail.
type AuditSink interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// ClaimsEngine owns the claim lifecycle: initiate, verify against the oracle,
// approve or reject, and pay out from the pool.
type ClaimsEngine struct {
	policies  PolicyStore
	claims    ClaimStore
	oracle    OracleGateway
	prices    PriceSource
	audit     AuditSink
	publisher events.Publisher
	poolID    uuid.UUID
	cfg       *config.Config
	log       *zap.Logger
}

func NewClaimsEngine(
	policies PolicyStore,
	claims ClaimStore,
	oracle OracleGateway,
	prices PriceSource,
	audit AuditSink,
	publisher events.Publisher,
	poolID uuid.UUID,
	cfg *config.Config,
	log *zap.Logger,
) *ClaimsEngine {
	return &ClaimsEngine{
		policies:  policies,
		claims:    claims,
		oracle:    oracle,
		prices:    prices,
		audit:     audit,
		publisher: publisher,
		poolID:    poolID,
		cfg:       cfg,
		log:       log,
	}
}

// recordTransition writes the audit entry and publishes the status event.
// Both are best-effort; money movement never depends on them.
func (e *ClaimsEngine) recordTransition(ctx context.Context, claim *models.Claim, oldStatus, newStatus, actorType string) {
	_ = e.audit.Log(ctx, models.AuditLog{
		ActorUserID: &claim.UserID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("claim_status_%s_to_%s", oldStatus, newStatus),
		EntityType:  "claim",
		EntityID:    &claim.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": newStatus, "claim_number": claim.ClaimNumber},
	})
	_ = e.publisher.Publish(ctx, events.StreamClaims, events.Event{
		Type: events.EventClaimStatusChanged,
		Payload: map[string]any{
			"claim_id":     claim.ID.String(),
			"claim_number": claim.ClaimNumber,
			"policy_id":    claim.PolicyID.String(),
			"old_status":   oldStatus,
			"new_status":   newStatus,
		},
	})
}

// generateClaimNumber produces CLM-YYMMDD-XXXXXX with a uniqueness check
// against existing claims.
func (e *ClaimsEngine) generateClaimNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		suffix := strings.ToUpper(uuid.NewString()[:6])
		number := fmt.Sprintf("CLM-%s-%s", time.Now().UTC().Format("060102"), suffix)
		exists, err := e.claims.ClaimNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not generate unique claim number")
}

// InitiateClaim validates ownership and policy state, then creates the claim
// and moves the policy Active -> PayoutPending in one transaction. The payout
// amount is fixed here from the policy coverage and never changes afterwards.
func (e *ClaimsEngine) InitiateClaim(ctx context.Context, userID, policyID uuid.UUID, payoutAddress, claimType string) (*models.Claim, error) {
	policy, err := e.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.UserID != userID {
		// Not-found rather than forbidden: non-owners must not learn the
		// policy exists.
		return nil, models.ErrPolicyNotFound
	}

	switch policy.Status {
	case models.PolicyStatusActive:
		// claimable
	case models.PolicyStatusPayoutPending, models.PolicyStatusPaid, models.PolicyStatusClaimed:
		return nil, models.ErrPolicyAlreadyClaimed
	default:
		return nil, models.ErrPolicyNotActive
	}

	number, err := e.generateClaimNumber(ctx)
	if err != nil {
		return nil, err
	}

	if payoutAddress == "" && policy.PayoutAddress != nil {
		payoutAddress = *policy.PayoutAddress
	}

	claim := &models.Claim{
		ClaimNumber:      number,
		UserID:           userID,
		PolicyID:         policy.ID,
		ClaimType:        claimType,
		Status:           models.ClaimStatusInitiated,
		TriggerEvent:     fmt.Sprintf("flight %s%s delayed beyond %d minutes", policy.AirlineCode, policy.FlightNumber, policy.DelayThresholdMinutes),
		TriggerTimestamp: time.Now().UTC(),
		PayoutAmount:     policy.CoverageAmount,
		PayoutCurrency:   policy.Currency,
		PayoutAddress:    payoutAddress,
	}

	if err := e.claims.CreateWithPolicyHold(ctx, claim); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another claim won the Active -> PayoutPending race.
			return nil, models.ErrPolicyAlreadyClaimed
		}
		return nil, err
	}

	e.log.Info("claim initiated",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("policy_number", policy.PolicyNumber),
		zap.String("payout_amount", claim.PayoutAmount.StringFixed(2)))
	e.recordTransition(ctx, claim, "", models.ClaimStatusInitiated, "user")

	return claim, nil
}

// VerifyWithOracle drives a claim through attestation: submit the request,
// wait for finalization, fetch and structurally verify the proof, then compare
// the measured delay against the policy threshold (inclusive >=).
//
// A claim already in Verifying with a stored oracle request id skips
// submission and resumes waiting on the existing request.
func (e *ClaimsEngine) VerifyWithOracle(ctx context.Context, claimID uuid.UUID) (*models.Claim, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	policy, err := e.policies.GetByID(ctx, claim.PolicyID)
	if err != nil {
		return nil, err
	}

	var requestID string
	switch {
	case claim.Status == models.ClaimStatusVerifying && claim.OracleRequestID != nil:
		requestID = *claim.OracleRequestID
		e.log.Info("resuming oracle verification",
			zap.String("claim_number", claim.ClaimNumber),
			zap.String("request_id", requestID))
	case claim.Status == models.ClaimStatusInitiated:
		if err := e.claims.UpdateStatus(ctx, claim.ID, models.ClaimStatusInitiated, models.ClaimStatusVerifying); err != nil {
			return nil, err
		}
		claim.Status = models.ClaimStatusVerifying
		e.recordTransition(ctx, claim, models.ClaimStatusInitiated, models.ClaimStatusVerifying, "system")

		attReq := flare.PrepareFlightStatusRequest(policy.AirlineCode, policy.FlightNumber, policy.ScheduledDeparture)
		requestID, err = e.oracle.SubmitRequest(ctx, claim.ID, attReq)
		if err != nil {
			return e.failClaim(ctx, claim, fmt.Sprintf("oracle submission failed: %v", err))
		}
		// Persisted before waiting so an interrupted verification can be
		// resumed against the same attestation round.
		if err := e.claims.SetOracleRequest(ctx, claim.ID, requestID, attReq.AttestationType); err != nil {
			return nil, err
		}
		claim.OracleRequestID = &requestID
	default:
		return nil, fmt.Errorf("claim %s is not awaiting verification (status %s)", claim.ClaimNumber, claim.Status)
	}

	if _, err := e.oracle.AwaitFinalization(ctx, requestID); err != nil {
		return e.failClaim(ctx, claim, fmt.Sprintf("oracle verification failed: %v", err))
	}

	bundle, err := e.oracle.GetProof(ctx, requestID)
	if err != nil {
		return e.failClaim(ctx, claim, fmt.Sprintf("proof retrieval failed: %v", err))
	}

	if !e.oracle.VerifyProof(bundle) {
		return e.rejectClaim(ctx, claim, policy, "proof verification failed")
	}

	outcome, err := flare.ParseFlightOutcome(bundle.ResponseBody)
	if err != nil {
		return e.failClaim(ctx, claim, fmt.Sprintf("attested response unreadable: %v", err))
	}

	if err := e.policies.SetFlightOutcome(ctx, policy.ID, outcome.DelayMinutes, outcome.Status); err != nil {
		e.log.Warn("failed to record flight outcome on policy",
			zap.String("policy_number", policy.PolicyNumber), zap.Error(err))
	}

	if outcome.DelayMinutes < policy.DelayThresholdMinutes {
		reason := fmt.Sprintf("measured delay %d minutes is below the %d minute threshold",
			outcome.DelayMinutes, policy.DelayThresholdMinutes)
		return e.rejectClaim(ctx, claim, policy, reason)
	}

	triggerValue := strconv.Itoa(outcome.DelayMinutes)
	if err := e.claims.MarkApproved(ctx, claim.ID, bundle.MerkleRoot, bundle.ResponseBody, triggerValue); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	claim.Status = models.ClaimStatusApproved
	claim.OracleVerified = true
	claim.OracleMerkleRoot = &bundle.MerkleRoot
	claim.OracleProofData = bundle.ResponseBody
	claim.TriggerValue = &triggerValue
	claim.ApprovedAt = &now
	e.recordTransition(ctx, claim, models.ClaimStatusVerifying, models.ClaimStatusApproved, "system")

	e.log.Info("claim approved",
		zap.String("claim_number", claim.ClaimNumber),
		zap.Int("delay_minutes", outcome.DelayMinutes),
		zap.Int("threshold_minutes", policy.DelayThresholdMinutes))
	return claim, nil
}

// failClaim moves a claim to Failed and releases the policy hold so the user
// can try again. The stored oracle request id is kept for inspection.
func (e *ClaimsEngine) failClaim(ctx context.Context, claim *models.Claim, reason string) (*models.Claim, error) {
	oldStatus := claim.Status
	if err := e.claims.MarkFailed(ctx, claim.ID, reason); err != nil {
		return nil, err
	}
	claim.Status = models.ClaimStatusFailed
	claim.ErrorMessage = &reason
	e.recordTransition(ctx, claim, oldStatus, models.ClaimStatusFailed, "system")
	e.releaseHold(ctx, claim.PolicyID)

	e.log.Warn("claim failed",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("reason", reason))
	return claim, fmt.Errorf("claim %s failed: %s", claim.ClaimNumber, reason)
}

// rejectClaim moves a claim to Rejected (terminal) and releases the policy
// hold for a later claim attempt.
func (e *ClaimsEngine) rejectClaim(ctx context.Context, claim *models.Claim, policy *models.Policy, reason string) (*models.Claim, error) {
	if err := e.claims.MarkRejected(ctx, claim.ID, reason); err != nil {
		return nil, err
	}
	oldStatus := claim.Status
	claim.Status = models.ClaimStatusRejected
	claim.RejectionReason = &reason
	e.recordTransition(ctx, claim, oldStatus, models.ClaimStatusRejected, "system")
	e.releaseHold(ctx, policy.ID)

	e.log.Info("claim rejected",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("reason", reason))
	return claim, nil
}

func (e *ClaimsEngine) releaseHold(ctx context.Context, policyID uuid.UUID) {
	err := e.policies.TransitionStatus(ctx, policyID, models.PolicyStatusPayoutPending, models.PolicyStatusActive)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		e.log.Warn("failed to release policy hold",
			zap.String("policy_id", policyID.String()), zap.Error(err))
	}
}

// ProcessPayout executes the payout for an Approved claim. It is idempotent:
// a claim already Paid returns unchanged with no second debit. On
// InsufficientFunds the claim moves to Failed while the policy stays
// PayoutPending for manual reconciliation.
func (e *ClaimsEngine) ProcessPayout(ctx context.Context, claimID uuid.UUID) (*models.Claim, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	switch claim.Status {
	case models.ClaimStatusPaid:
		// Already settled, return the stored result.
		return claim, nil
	case models.ClaimStatusApproved:
		if err := e.claims.UpdateStatus(ctx, claim.ID, models.ClaimStatusApproved, models.ClaimStatusProcessing); err != nil {
			if errors.Is(err, models.ErrConflict) {
				// Concurrent payout call won the transition; re-read and let
				// the idempotence path answer.
				return e.claims.GetByID(ctx, claimID)
			}
			return nil, err
		}
		e.recordTransition(ctx, claim, models.ClaimStatusApproved, models.ClaimStatusProcessing, "system")
		claim.Status = models.ClaimStatusProcessing
	case models.ClaimStatusProcessing:
		// Crash between the status flip and the payout tx; retry the payout.
	default:
		return nil, models.ErrClaimNotApproved
	}

	var priceUSD *decimal.Decimal
	if price, err := e.prices.GetStablecoinPrice(ctx); err == nil {
		priceUSD = &price
	} else {
		e.log.Warn("price snapshot unavailable at payout", zap.Error(err))
	}

	poolTx, err := e.claims.ExecutePayout(ctx, repositories.ExecutePayoutParams{
		ClaimID:   claim.ID,
		PolicyID:  claim.PolicyID,
		PoolID:    e.poolID,
		UserID:    claim.UserID,
		Amount:    claim.PayoutAmount,
		Currency:  claim.PayoutCurrency,
		ToAddress: claim.PayoutAddress,
		PriceUSD:  priceUSD,
	})
	if err != nil {
		var insufficient *models.InsufficientFundsError
		if errors.As(err, &insufficient) {
			// Policy stays PayoutPending; no numbers moved.
			if markErr := e.claims.MarkFailed(ctx, claim.ID, insufficient.Error()); markErr != nil {
				return nil, markErr
			}
			oldStatus := claim.Status
			claim.Status = models.ClaimStatusFailed
			msg := insufficient.Error()
			claim.ErrorMessage = &msg
			e.recordTransition(ctx, claim, oldStatus, models.ClaimStatusFailed, "system")
			e.log.Error("payout failed on insufficient pool funds",
				zap.String("claim_number", claim.ClaimNumber),
				zap.String("required", insufficient.Required.StringFixed(2)),
				zap.String("available", insufficient.Available.StringFixed(2)))
			return claim, insufficient
		}
		if errors.Is(err, models.ErrConflict) {
			// Another processor paid this claim inside the race window.
			return e.claims.GetByID(ctx, claimID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	oldStatus := claim.Status
	claim.Status = models.ClaimStatusPaid
	claim.PaidAt = &now
	claim.PriceUSD = priceUSD
	e.recordTransition(ctx, claim, oldStatus, models.ClaimStatusPaid, "system")
	_ = e.publisher.Publish(ctx, events.StreamPool, events.Event{
		Type: events.EventPayoutExecuted,
		Payload: map[string]any{
			"claim_id":  claim.ID.String(),
			"pool_tx":   poolTx.ID.String(),
			"amount":    claim.PayoutAmount.StringFixed(2),
			"currency":  claim.PayoutCurrency,
			"recipient": claim.PayoutAddress,
		},
	})

	e.log.Info("claim paid",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("amount", claim.PayoutAmount.StringFixed(2)),
		zap.String("to", claim.PayoutAddress))
	return claim, nil
}

// AutoProcessClaim runs the whole lifecycle in one call: initiate, verify,
// and pay out. It fails fast, returning the claim in whatever state the
// failing step left it.
func (e *ClaimsEngine) AutoProcessClaim(ctx context.Context, userID, policyID uuid.UUID, payoutAddress string) (*models.Claim, error) {
	claim, err := e.InitiateClaim(ctx, userID, policyID, payoutAddress, models.ClaimTypeAutomatic)
	if err != nil {
		return nil, err
	}

	claim, err = e.VerifyWithOracle(ctx, claim.ID)
	if err != nil {
		return claim, err
	}
	if claim.Status != models.ClaimStatusApproved {
		return claim, nil
	}

	return e.ProcessPayout(ctx, claim.ID)
}

// ClaimStatusView is the progress snapshot served to clients.
type ClaimStatusView struct {
	ClaimID      uuid.UUID       `json:"claim_id"`
	ClaimNumber  string          `json:"claim_number"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	FDCVerified  bool            `json:"fdc_verified"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	Error        *string         `json:"error,omitempty"`
}

// GetClaimStatus returns the claim's status with progress derived from the
// four lifecycle milestones.
func (e *ClaimsEngine) GetClaimStatus(ctx context.Context, userID, claimID uuid.UUID) (*ClaimStatusView, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != userID {
		return nil, models.ErrClaimNotFound
	}

	view := &ClaimStatusView{
		ClaimID:      claim.ID,
		ClaimNumber:  claim.ClaimNumber,
		Status:       claim.Status,
		Progress:     claim.ProgressPercentage(),
		FDCVerified:  claim.OracleVerified,
		PayoutAmount: claim.PayoutAmount,
	}
	if claim.RejectionReason != nil {
		view.Error = claim.RejectionReason
	} else if claim.ErrorMessage != nil {
		view.Error = claim.ErrorMessage
	}
	return view, nil
}

// GetClaim returns a claim after an ownership check.
func (e *ClaimsEngine) GetClaim(ctx context.Context, userID, claimID uuid.UUID) (*models.Claim, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != userID {
		return nil, models.ErrClaimNotFound
	}
	return claim, nil
}
