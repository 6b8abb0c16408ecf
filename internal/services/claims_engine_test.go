package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
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

// fakeBackend is an in-memory policy registry, claim store, and pool ledger
// with the same compare-and-set semantics as the SQL repositories.
type fakeBackend struct {
	mu       sync.Mutex
	policies map[uuid.UUID]*models.Policy
	claims   map[uuid.UUID]*models.Claim
	reserve  decimal.Decimal
	payouts  int
}

func newFakeBackend(reserve string) *fakeBackend {
	r, _ := decimal.NewFromString(reserve)
	return &fakeBackend{
		policies: make(map[uuid.UUID]*models.Policy),
		claims:   make(map[uuid.UUID]*models.Claim),
		reserve:  r,
	}
}

func (b *fakeBackend) addPolicy(status string, coverage string, threshold int) *models.Policy {
	b.mu.Lock()
	defer b.mu.Unlock()
	cov, _ := decimal.NewFromString(coverage)
	p := &models.Policy{
		ID:                    uuid.New(),
		PolicyNumber:          "POL-260301-TEST01",
		UserID:                uuid.New(),
		PolicyType:            models.PolicyTypeFlightDelay,
		Status:                status,
		FlightNumber:          "1234",
		AirlineCode:           "UA",
		DepartureAirport:      "SFO",
		ArrivalAirport:        "JFK",
		ScheduledDeparture:    time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC),
		ScheduledArrival:      time.Date(2026, 3, 16, 2, 30, 0, 0, time.UTC),
		CoverageAmount:        cov,
		PremiumAmount:         decimal.NewFromInt(12),
		Currency:              "USDT",
		DelayThresholdMinutes: threshold,
	}
	b.policies[p.ID] = p
	return p
}

func (b *fakeBackend) GetByID(_ context.Context, id uuid.UUID) (*models.Policy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return nil, models.ErrPolicyNotFound
	}
	cp := *p
	return &cp, nil
}

func (b *fakeBackend) TransitionStatus(_ context.Context, id uuid.UUID, expected, next string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return models.ErrPolicyNotFound
	}
	if p.Status != expected {
		return models.ErrConflict
	}
	p.Status = next
	return nil
}

func (b *fakeBackend) SetFlightOutcome(_ context.Context, id uuid.UUID, delayMinutes int, flightStatus string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return models.ErrPolicyNotFound
	}
	p.ActualDelayMinutes = &delayMinutes
	p.FlightStatus = &flightStatus
	return nil
}

func (b *fakeBackend) CreateWithPolicyHold(_ context.Context, c *models.Claim) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[c.PolicyID]
	if !ok {
		return models.ErrPolicyNotFound
	}
	if p.Status != models.PolicyStatusActive {
		return models.ErrConflict
	}
	p.Status = models.PolicyStatusPayoutPending
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	b.claims[c.ID] = c
	return nil
}

func (b *fakeBackend) claimByID(id uuid.UUID) (*models.Claim, error) {
	c, ok := b.claims[id]
	if !ok {
		return nil, models.ErrClaimNotFound
	}
	return c, nil
}

func (b *fakeBackend) GetByIDClaim(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (b *fakeBackend) ClaimNumberExists(_ context.Context, number string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.claims {
		if c.ClaimNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (b *fakeBackend) UpdateStatus(_ context.Context, id uuid.UUID, expected, next string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return err
	}
	if c.Status != expected {
		return models.ErrConflict
	}
	c.Status = next
	return nil
}

func (b *fakeBackend) SetOracleRequest(_ context.Context, id uuid.UUID, requestID, attestationType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return err
	}
	c.OracleRequestID = &requestID
	c.OracleAttestationType = &attestationType
	return nil
}

func (b *fakeBackend) MarkApproved(_ context.Context, id uuid.UUID, merkleRoot string, proofData []byte, triggerValue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return err
	}
	if c.Status != models.ClaimStatusVerifying {
		return models.ErrConflict
	}
	now := time.Now()
	c.Status = models.ClaimStatusApproved
	c.OracleVerified = true
	c.OracleMerkleRoot = &merkleRoot
	c.OracleProofData = proofData
	c.TriggerValue = &triggerValue
	c.ApprovedAt = &now
	return nil
}

func (b *fakeBackend) MarkRejected(_ context.Context, id uuid.UUID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return err
	}
	c.Status = models.ClaimStatusRejected
	c.RejectionReason = &reason
	return nil
}

func (b *fakeBackend) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.claimByID(id)
	if err != nil {
		return err
	}
	c.Status = models.ClaimStatusFailed
	c.ErrorMessage = &errMsg
	return nil
}

func (b *fakeBackend) ExecutePayout(_ context.Context, p repositories.ExecutePayoutParams) (*models.PoolTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reserve.LessThan(p.Amount) {
		return nil, &models.InsufficientFundsError{Required: p.Amount, Available: b.reserve}
	}
	c, err := b.claimByID(p.ClaimID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ClaimStatusProcessing {
		return nil, models.ErrConflict
	}
	pol, ok := b.policies[p.PolicyID]
	if !ok {
		return nil, models.ErrPolicyNotFound
	}
	if pol.Status != models.PolicyStatusPayoutPending {
		return nil, models.ErrConflict
	}

	b.reserve = b.reserve.Sub(p.Amount)
	b.payouts++
	now := time.Now()
	c.Status = models.ClaimStatusPaid
	c.PaidAt = &now
	c.PriceUSD = p.PriceUSD
	pol.Status = models.PolicyStatusPaid
	pol.PayoutAmount = &p.Amount
	pol.PayoutAddress = &p.ToAddress

	return &models.PoolTransaction{
		ID:              uuid.New(),
		PoolID:          p.PoolID,
		TransactionType: models.PoolTxPayout,
		Amount:          p.Amount,
		Currency:        p.Currency,
		CreatedAt:       now,
	}, nil
}

// claimStoreAdapter renames GetByIDClaim to the interface method so one fake
// can satisfy both stores.
type claimStoreAdapter struct{ *fakeBackend }

func (a claimStoreAdapter) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	return a.fakeBackend.GetByIDClaim(ctx, id)
}

// fakeOracle plays back a scripted attestation round.
type fakeOracle struct {
	requestID  string
	submitErr  error
	awaitErr   error
	proofErr   error
	bundle     *flare.ProofBundle
	verifyFail bool
	submits    int
}

func (o *fakeOracle) SubmitRequest(context.Context, uuid.UUID, flare.AttestationRequest) (string, error) {
	o.submits++
	if o.submitErr != nil {
		return "", o.submitErr
	}
	return o.requestID, nil
}

func (o *fakeOracle) AwaitFinalization(_ context.Context, requestID string) (*flare.FinalizedResult, error) {
	if o.awaitErr != nil {
		return nil, o.awaitErr
	}
	return &flare.FinalizedResult{RequestID: requestID, Status: models.OracleStatusFinalized}, nil
}

func (o *fakeOracle) GetProof(context.Context, string) (*flare.ProofBundle, error) {
	if o.proofErr != nil {
		return nil, o.proofErr
	}
	return o.bundle, nil
}

func (o *fakeOracle) VerifyProof(bundle *flare.ProofBundle) bool {
	if o.verifyFail {
		return false
	}
	return bundle != nil && bundle.MerkleRoot != "" && len(bundle.Proof) > 0
}

type fakePrices struct{}

func (fakePrices) GetStablecoinPrice(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *fakeAudit) Log(_ context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(context.Context, string, events.Event) error { return nil }

func delayedFlightBundle(delayMinutes int) *flare.ProofBundle {
	return &flare.ProofBundle{
		RequestID:  "req-1",
		MerkleRoot: "0xabc",
		Proof:      []string{"0x01"},
		ResponseBody: []byte(fmt.Sprintf(
			`{"flightStatuses":[{"status":"L","delays":{"departureGateDelayMinutes":%d}}]}`, delayMinutes)),
	}
}

func newTestEngine(backend *fakeBackend, oracle OracleGateway) *ClaimsEngine {
	cfg := &config.Config{
		DefaultDelayThresholdMinutes: 120,
	}
	return NewClaimsEngine(
		backend,
		claimStoreAdapter{backend},
		oracle,
		fakePrices{},
		&fakeAudit{},
		fakePublisher{},
		uuid.New(),
		cfg,
		zap.NewNop(),
	)
}

func TestInitiateClaim(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	engine := newTestEngine(backend, &fakeOracle{})

	claim, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	if err != nil {
		t.Fatalf("InitiateClaim: %v", err)
	}

	if !claim.PayoutAmount.Equal(policy.CoverageAmount) {
		t.Errorf("payout amount = %s, want coverage %s", claim.PayoutAmount, policy.CoverageAmount)
	}
	if claim.Status != models.ClaimStatusInitiated {
		t.Errorf("status = %q, want %q", claim.Status, models.ClaimStatusInitiated)
	}
	if !strings.HasPrefix(claim.ClaimNumber, "CLM-") || len(claim.ClaimNumber) != 17 {
		t.Errorf("claim number %q does not match CLM-YYMMDD-XXXXXX", claim.ClaimNumber)
	}

	held, _ := backend.GetByID(context.Background(), policy.ID)
	if held.Status != models.PolicyStatusPayoutPending {
		t.Errorf("policy status = %q, want %q", held.Status, models.PolicyStatusPayoutPending)
	}
}

func TestInitiateClaim_PendingPolicy(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusPending, "500.00", 120)
	engine := newTestEngine(backend, &fakeOracle{})

	_, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	if !errors.Is(err, models.ErrPolicyNotActive) {
		t.Fatalf("err = %v, want ErrPolicyNotActive", err)
	}
	if len(backend.claims) != 0 {
		t.Errorf("claim record was created for a pending policy")
	}
}

func TestInitiateClaim_AlreadyClaimed(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	engine := newTestEngine(backend, &fakeOracle{})

	if _, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual); err != nil {
		t.Fatalf("first InitiateClaim: %v", err)
	}
	_, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	if !errors.Is(err, models.ErrPolicyAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrPolicyAlreadyClaimed", err)
	}
}

func TestInitiateClaim_WrongOwner(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	engine := newTestEngine(backend, &fakeOracle{})

	_, err := engine.InitiateClaim(context.Background(), uuid.New(), policy.ID, "0xrecipient", models.ClaimTypeManual)
	if !errors.Is(err, models.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound for foreign policy, got %v", err)
	}
}

func TestVerifyWithOracle_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		delay      int
		threshold  int
		wantStatus string
	}{
		{"delay equals threshold", 120, 120, models.ClaimStatusApproved},
		{"one minute below", 119, 120, models.ClaimStatusRejected},
		{"well above", 240, 120, models.ClaimStatusApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend("10000")
			policy := backend.addPolicy(models.PolicyStatusActive, "500.00", tt.threshold)
			oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(tt.delay)}
			engine := newTestEngine(backend, oracle)

			claim, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
			if err != nil {
				t.Fatalf("InitiateClaim: %v", err)
			}
			claim, err = engine.VerifyWithOracle(context.Background(), claim.ID)
			if err != nil {
				t.Fatalf("VerifyWithOracle: %v", err)
			}
			if claim.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", claim.Status, tt.wantStatus)
			}
		})
	}
}

func TestVerifyWithOracle_RejectionCitesValues(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(95)}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	claim, err := engine.VerifyWithOracle(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("VerifyWithOracle: %v", err)
	}

	if claim.Status != models.ClaimStatusRejected {
		t.Fatalf("status = %q, want rejected", claim.Status)
	}
	if claim.RejectionReason == nil {
		t.Fatal("rejection reason missing")
	}
	reason := *claim.RejectionReason
	if !strings.Contains(reason, "95") || !strings.Contains(reason, "120") {
		t.Errorf("rejection reason %q does not cite measured value and threshold", reason)
	}

	// Rejection releases the hold so the user can try again while unpaid.
	p, _ := backend.GetByID(context.Background(), policy.ID)
	if p.Status != models.PolicyStatusActive {
		t.Errorf("policy status = %q, want active after rejection", p.Status)
	}
}

func TestVerifyWithOracle_ProofVerificationFailed(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(300), verifyFail: true}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	claim, err := engine.VerifyWithOracle(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("VerifyWithOracle: %v", err)
	}
	if claim.Status != models.ClaimStatusRejected {
		t.Fatalf("status = %q, want rejected", claim.Status)
	}
	if claim.RejectionReason == nil || *claim.RejectionReason != "proof verification failed" {
		t.Errorf("rejection reason = %v, want \"proof verification failed\"", claim.RejectionReason)
	}
}

func TestVerifyWithOracle_TimeoutKeepsRequestID(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{
		requestID: "req-slow",
		awaitErr: &models.OracleError{
			Kind:      models.OracleErrTimeout,
			RequestID: "req-slow",
			Err:       errors.New("attestation not finalized within 3m0s"),
		},
	}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	claim, err := engine.VerifyWithOracle(context.Background(), claim.ID)
	if err == nil {
		t.Fatal("expected error on oracle timeout")
	}
	if claim.Status != models.ClaimStatusFailed {
		t.Errorf("status = %q, want failed", claim.Status)
	}

	stored, _ := backend.GetByIDClaim(context.Background(), claim.ID)
	if stored.OracleRequestID == nil || *stored.OracleRequestID != "req-slow" {
		t.Errorf("oracle request id = %v, want req-slow kept for inspection", stored.OracleRequestID)
	}
}

func TestVerifyWithOracle_ResumeSkipsSubmission(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(150)}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)

	// Simulate a crash after submission: claim stuck in Verifying with the
	// request id persisted.
	_ = backend.UpdateStatus(context.Background(), claim.ID, models.ClaimStatusInitiated, models.ClaimStatusVerifying)
	_ = backend.SetOracleRequest(context.Background(), claim.ID, "req-1", models.AttestationWeb2JSON)

	resumed, err := engine.VerifyWithOracle(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("VerifyWithOracle resume: %v", err)
	}
	if oracle.submits != 0 {
		t.Errorf("resume submitted %d new requests, want 0", oracle.submits)
	}
	if resumed.Status != models.ClaimStatusApproved {
		t.Errorf("status = %q, want approved", resumed.Status)
	}
}

func TestProcessPayout(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(150)}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	claim, err := engine.VerifyWithOracle(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("VerifyWithOracle: %v", err)
	}

	paid, err := engine.ProcessPayout(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("ProcessPayout: %v", err)
	}
	if paid.Status != models.ClaimStatusPaid {
		t.Errorf("status = %q, want paid", paid.Status)
	}
	if want := decimal.NewFromInt(9500); !backend.reserve.Equal(want) {
		t.Errorf("reserve = %s, want %s", backend.reserve, want)
	}

	p, _ := backend.GetByID(context.Background(), policy.ID)
	if p.Status != models.PolicyStatusPaid {
		t.Errorf("policy status = %q, want paid", p.Status)
	}
}

func TestProcessPayout_Idempotent(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(150)}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	claim, _ = engine.VerifyWithOracle(context.Background(), claim.ID)

	first, err := engine.ProcessPayout(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("first ProcessPayout: %v", err)
	}
	second, err := engine.ProcessPayout(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("second ProcessPayout: %v", err)
	}
	if second.Status != models.ClaimStatusPaid {
		t.Errorf("second call status = %q, want paid", second.Status)
	}
	if !second.PayoutAmount.Equal(first.PayoutAmount) {
		t.Errorf("second call payout = %s, want %s", second.PayoutAmount, first.PayoutAmount)
	}
	if backend.payouts != 1 {
		t.Errorf("pool was debited %d times, want 1", backend.payouts)
	}
}

func TestProcessPayout_NotApproved(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	engine := newTestEngine(backend, &fakeOracle{})

	claim, _ := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
	_, err := engine.ProcessPayout(context.Background(), claim.ID)
	if !errors.Is(err, models.ErrClaimNotApproved) {
		t.Fatalf("err = %v, want ErrClaimNotApproved", err)
	}
}

func TestProcessPayout_InsufficientFunds(t *testing.T) {
	backend := newFakeBackend("1000.00")
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(150)}
	engine := newTestEngine(backend, oracle)

	// First claim drains the reserve to exactly zero.
	first := backend.addPolicy(models.PolicyStatusActive, "1000.00", 120)
	claim, _ := engine.InitiateClaim(context.Background(), first.UserID, first.ID, "0xone", models.ClaimTypeManual)
	claim, _ = engine.VerifyWithOracle(context.Background(), claim.ID)
	if _, err := engine.ProcessPayout(context.Background(), claim.ID); err != nil {
		t.Fatalf("draining payout: %v", err)
	}
	if !backend.reserve.IsZero() {
		t.Fatalf("reserve = %s, want 0", backend.reserve)
	}

	// Second claim for 1.00 must fail without any mutation.
	second := backend.addPolicy(models.PolicyStatusActive, "1.00", 120)
	claim2, _ := engine.InitiateClaim(context.Background(), second.UserID, second.ID, "0xtwo", models.ClaimTypeManual)
	claim2, _ = engine.VerifyWithOracle(context.Background(), claim2.ID)

	_, err := engine.ProcessPayout(context.Background(), claim2.ID)
	var insufficient *models.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if insufficient.Required.StringFixed(2) != "1.00" || insufficient.Available.StringFixed(2) != "0.00" {
		t.Errorf("got required=%s available=%s, want 1.00 and 0.00",
			insufficient.Required.StringFixed(2), insufficient.Available.StringFixed(2))
	}

	failed, _ := backend.GetByIDClaim(context.Background(), claim2.ID)
	if failed.Status != models.ClaimStatusFailed {
		t.Errorf("claim status = %q, want failed", failed.Status)
	}
	// Policy stays PayoutPending for manual reconciliation.
	p, _ := backend.GetByID(context.Background(), second.ID)
	if p.Status != models.PolicyStatusPayoutPending {
		t.Errorf("policy status = %q, want payout_pending", p.Status)
	}
	if !backend.reserve.IsZero() {
		t.Errorf("reserve changed to %s on a failed payout", backend.reserve)
	}
}

// Eight approved 500 claims race against a 2000 reserve; exactly four payouts
// can succeed and the reserve must never be overdrawn.
func TestProcessPayout_ConcurrentDebitsBounded(t *testing.T) {
	backend := newFakeBackend("2000.00")
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(150)}
	engine := newTestEngine(backend, oracle)

	const claimants = 8
	claimIDs := make([]uuid.UUID, 0, claimants)
	for i := 0; i < claimants; i++ {
		policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
		claim, err := engine.InitiateClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient", models.ClaimTypeManual)
		if err != nil {
			t.Fatalf("InitiateClaim: %v", err)
		}
		if _, err := engine.VerifyWithOracle(context.Background(), claim.ID); err != nil {
			t.Fatalf("VerifyWithOracle: %v", err)
		}
		claimIDs = append(claimIDs, claim.ID)
	}

	results := make([]error, claimants)
	var wg sync.WaitGroup
	for i, id := range claimIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, err := engine.ProcessPayout(context.Background(), id)
			results[i] = err
		}(i, id)
	}
	wg.Wait()

	paid := 0
	for _, err := range results {
		if err == nil {
			paid++
			continue
		}
		var insufficient *models.InsufficientFundsError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected payout error: %v", err)
		}
	}

	if paid != 4 {
		t.Errorf("paid %d claims, want 4 (2000 reserve / 500 payouts)", paid)
	}
	if backend.reserve.IsNegative() {
		t.Errorf("reserve overdrawn to %s", backend.reserve)
	}
	want := decimal.NewFromInt(2000).Sub(decimal.NewFromInt(500).Mul(decimal.NewFromInt(int64(paid))))
	if !backend.reserve.Equal(want) {
		t.Errorf("reserve = %s, want %s", backend.reserve, want)
	}
	if backend.payouts != paid {
		t.Errorf("recorded %d pool payouts, want %d", backend.payouts, paid)
	}
}

func TestAutoProcessClaim(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(180)}
	engine := newTestEngine(backend, oracle)

	claim, err := engine.AutoProcessClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient")
	if err != nil {
		t.Fatalf("AutoProcessClaim: %v", err)
	}
	if claim.Status != models.ClaimStatusPaid {
		t.Errorf("status = %q, want paid", claim.Status)
	}
}

func TestAutoProcessClaim_RejectedStopsBeforePayout(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(30)}
	engine := newTestEngine(backend, oracle)

	claim, err := engine.AutoProcessClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient")
	if err != nil {
		t.Fatalf("AutoProcessClaim: %v", err)
	}
	if claim.Status != models.ClaimStatusRejected {
		t.Errorf("status = %q, want rejected", claim.Status)
	}
	if backend.payouts != 0 {
		t.Errorf("pool was debited %d times for a rejected claim", backend.payouts)
	}
}

func TestGetClaimStatus(t *testing.T) {
	backend := newFakeBackend("10000")
	policy := backend.addPolicy(models.PolicyStatusActive, "500.00", 120)
	oracle := &fakeOracle{requestID: "req-1", bundle: delayedFlightBundle(180)}
	engine := newTestEngine(backend, oracle)

	claim, _ := engine.AutoProcessClaim(context.Background(), policy.UserID, policy.ID, "0xrecipient")

	view, err := engine.GetClaimStatus(context.Background(), policy.UserID, claim.ID)
	if err != nil {
		t.Fatalf("GetClaimStatus: %v", err)
	}
	if view.Status != models.ClaimStatusPaid || view.Progress != 100 {
		t.Errorf("view = %+v, want paid at 100%%", view)
	}
	if !view.FDCVerified {
		t.Error("fdc_verified = false, want true")
	}

	if _, err := engine.GetClaimStatus(context.Background(), uuid.New(), claim.ID); !errors.Is(err, models.ErrClaimNotFound) {
		t.Errorf("foreign user err = %v, want ErrClaimNotFound", err)
	}
}
