package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aeroshield/backend/internal/config"
	"github.com/aeroshield/backend/internal/events"
	"github.com/aeroshield/backend/internal/models"
	"github.com/aeroshield/backend/internal/repositories"
)

// PolicyService handles quoting, purchase, activation, and expiry of
// policies. Premiums are credited into the pool when a policy activates.
type PolicyService struct {
	policyRepo  *repositories.PolicyRepo
	poolService *PoolService
	riskScorer  *RiskScorer
	auditRepo   *repositories.AuditRepo
	publisher   events.Publisher
	redis       *redis.Client
	poolID      uuid.UUID
	cfg         *config.Config
	log         *zap.Logger
}

func NewPolicyService(
	policyRepo *repositories.PolicyRepo,
	poolService *PoolService,
	riskScorer *RiskScorer,
	auditRepo *repositories.AuditRepo,
	publisher events.Publisher,
	redisClient *redis.Client,
	poolID uuid.UUID,
	cfg *config.Config,
	log *zap.Logger,
) *PolicyService {
	return &PolicyService{
		policyRepo:  policyRepo,
		poolService: poolService,
		riskScorer:  riskScorer,
		auditRepo:   auditRepo,
		publisher:   publisher,
		redis:       redisClient,
		poolID:      poolID,
		cfg:         cfg,
		log:         log,
	}
}

type QuoteInput struct {
	AirlineCode           string          `json:"airline_code"`
	FlightNumber          string          `json:"flight_number"`
	DepartureAirport      string          `json:"departure_airport"`
	ArrivalAirport        string          `json:"arrival_airport"`
	ScheduledDeparture    time.Time       `json:"scheduled_departure"`
	ScheduledArrival      time.Time       `json:"scheduled_arrival"`
	CoverageAmount        decimal.Decimal `json:"coverage_amount"`
	DelayThresholdMinutes int             `json:"delay_threshold_minutes"`
}

type Quote struct {
	PremiumAmount         decimal.Decimal `json:"premium_amount"`
	CoverageAmount        decimal.Decimal `json:"coverage_amount"`
	Currency              string          `json:"currency"`
	DelayThresholdMinutes int             `json:"delay_threshold_minutes"`
	RiskScore             float64         `json:"risk_score"`
	DelayProbability      float64         `json:"delay_probability"`
	RiskTier              string          `json:"risk_tier"`
	QuotedAt              time.Time       `json:"quoted_at"`
	ValidUntil            time.Time       `json:"valid_until"`
}

func (s *PolicyService) quoteCacheKey(in QuoteInput) string {
	return fmt.Sprintf("quote:%s:%s:%s:%s:%d",
		strings.ToUpper(in.AirlineCode), in.FlightNumber,
		in.ScheduledDeparture.UTC().Format("2006-01-02"),
		in.CoverageAmount.StringFixed(2), in.DelayThresholdMinutes)
}

// QuotePremium prices coverage for a flight. Scoring is deterministic, so
// quotes are cached in Redis for the configured TTL.
func (s *PolicyService) QuotePremium(ctx context.Context, in QuoteInput) (*Quote, error) {
	if err := validateQuoteInput(in); err != nil {
		return nil, err
	}
	if in.DelayThresholdMinutes == 0 {
		in.DelayThresholdMinutes = s.cfg.DefaultDelayThresholdMinutes
	}

	key := s.quoteCacheKey(in)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			var quote Quote
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				return &quote, nil
			}
		}
	}

	assessment := s.riskScorer.Score(FlightRiskInput{
		AirlineCode:        in.AirlineCode,
		FlightNumber:       in.FlightNumber,
		DepartureAirport:   in.DepartureAirport,
		ArrivalAirport:     in.ArrivalAirport,
		ScheduledDeparture: in.ScheduledDeparture,
	})

	premium := s.calculatePremium(in.CoverageAmount, assessment.DelayProbability)

	now := time.Now().UTC()
	quote := &Quote{
		PremiumAmount:         premium,
		CoverageAmount:        in.CoverageAmount,
		Currency:              "USDT",
		DelayThresholdMinutes: in.DelayThresholdMinutes,
		RiskScore:             assessment.Score,
		DelayProbability:      assessment.DelayProbability,
		RiskTier:              assessment.Tier,
		QuotedAt:              now,
		ValidUntil:            now.Add(s.cfg.QuoteCacheTTL),
	}

	if s.redis != nil {
		if data, err := json.Marshal(quote); err == nil {
			if err := s.redis.Set(ctx, key, data, s.cfg.QuoteCacheTTL).Err(); err != nil {
				s.log.Warn("quote cache write failed", zap.Error(err))
			}
		}
	}
	return quote, nil
}

// calculatePremium prices coverage as base rate scaled by delay probability,
// clamped between the minimum premium and a fraction of coverage.
func (s *PolicyService) calculatePremium(coverage decimal.Decimal, delayProbability float64) decimal.Decimal {
	premium := coverage.
		Mul(s.cfg.BasePremiumRate).
		Mul(decimal.NewFromFloat(1 + delayProbability)).
		Round(2)

	if premium.LessThan(s.cfg.MinPremium) {
		premium = s.cfg.MinPremium
	}
	if ceiling := coverage.Mul(s.cfg.MaxPremiumRate).Round(2); premium.GreaterThan(ceiling) {
		premium = ceiling
	}
	return premium
}

func validateQuoteInput(in QuoteInput) error {
	if in.AirlineCode == "" || in.FlightNumber == "" {
		return fmt.Errorf("airline code and flight number are required")
	}
	if !in.CoverageAmount.IsPositive() {
		return fmt.Errorf("coverage amount must be positive")
	}
	if in.ScheduledDeparture.IsZero() {
		return fmt.Errorf("scheduled departure is required")
	}
	if in.DelayThresholdMinutes < 0 {
		return fmt.Errorf("delay threshold must not be negative")
	}
	return nil
}

func (s *PolicyService) generatePolicyNumber() string {
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return fmt.Sprintf("POL-%s-%s", time.Now().UTC().Format("060102"), suffix)
}

// PurchasePolicy prices the flight and creates a Pending policy. The policy
// stays Pending until the premium payment is confirmed and ActivatePolicy
// runs.
func (s *PolicyService) PurchasePolicy(ctx context.Context, userID uuid.UUID, in QuoteInput) (*models.Policy, error) {
	quote, err := s.QuotePremium(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.ScheduledDeparture.Before(time.Now()) {
		return nil, fmt.Errorf("cannot insure a flight that has already departed")
	}

	coverageEnd := in.ScheduledArrival.Add(24 * time.Hour)
	if in.ScheduledArrival.IsZero() {
		coverageEnd = in.ScheduledDeparture.Add(48 * time.Hour)
	}

	policy := &models.Policy{
		PolicyNumber:          s.generatePolicyNumber(),
		UserID:                userID,
		PolicyType:            models.PolicyTypeFlightDelay,
		Status:                models.PolicyStatusPending,
		FlightNumber:          in.FlightNumber,
		AirlineCode:           strings.ToUpper(in.AirlineCode),
		DepartureAirport:      strings.ToUpper(in.DepartureAirport),
		ArrivalAirport:        strings.ToUpper(in.ArrivalAirport),
		ScheduledDeparture:    in.ScheduledDeparture,
		ScheduledArrival:      in.ScheduledArrival,
		CoverageAmount:        quote.CoverageAmount,
		PremiumAmount:         quote.PremiumAmount,
		Currency:              quote.Currency,
		DelayThresholdMinutes: quote.DelayThresholdMinutes,
		RiskScore:             &quote.RiskScore,
		DelayProbability:      &quote.DelayProbability,
		RiskTier:              &quote.RiskTier,
		CoverageStart:         time.Now().UTC(),
		CoverageEnd:           coverageEnd,
	}

	if err := s.policyRepo.Create(ctx, policy); err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "policy_purchased",
		EntityType:  "policy",
		EntityID:    &policy.ID,
		Meta: map[string]any{
			"policy_number": policy.PolicyNumber,
			"premium":       policy.PremiumAmount.StringFixed(2),
			"coverage":      policy.CoverageAmount.StringFixed(2),
			"risk_tier":     quote.RiskTier,
		},
	})

	s.log.Info("policy purchased",
		zap.String("policy_number", policy.PolicyNumber),
		zap.String("flight", policy.AirlineCode+policy.FlightNumber),
		zap.String("premium", policy.PremiumAmount.StringFixed(2)))
	return policy, nil
}

// ActivatePolicy confirms premium payment: the policy goes Pending -> Active
// and the premium is credited into the pool.
func (s *PolicyService) ActivatePolicy(ctx context.Context, userID, policyID uuid.UUID) (*models.Policy, error) {
	policy, err := s.policyRepo.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.UserID != userID {
		return nil, models.ErrPolicyNotFound
	}
	if policy.Status != models.PolicyStatusPending {
		return nil, models.ErrConflict
	}

	if err := s.policyRepo.Activate(ctx, policyID); err != nil {
		return nil, err
	}

	if _, err := s.poolService.CreditPremium(ctx, s.poolID, policy.PremiumAmount, policy.ID, userID); err != nil {
		// Policy is active but the premium credit failed; surface loudly so
		// reconciliation can fix the ledger.
		s.log.Error("premium credit failed after activation",
			zap.String("policy_number", policy.PolicyNumber), zap.Error(err))
		return nil, fmt.Errorf("credit premium for policy %s: %w", policy.PolicyNumber, err)
	}

	now := time.Now().UTC()
	policy.Status = models.PolicyStatusActive
	policy.ActivatedAt = &now

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "policy_activated",
		EntityType:  "policy",
		EntityID:    &policy.ID,
		Meta:        map[string]any{"policy_number": policy.PolicyNumber},
	})
	_ = s.publisher.Publish(ctx, events.StreamPolicies, events.Event{
		Type: events.EventPolicyStatusChanged,
		Payload: map[string]any{
			"policy_id":  policy.ID.String(),
			"old_status": models.PolicyStatusPending,
			"new_status": models.PolicyStatusActive,
		},
	})
	return policy, nil
}

// CancelPolicy cancels a Pending or Active policy. Premiums already credited
// are not refunded here.
func (s *PolicyService) CancelPolicy(ctx context.Context, userID, policyID uuid.UUID) error {
	policy, err := s.policyRepo.GetByID(ctx, policyID)
	if err != nil {
		return err
	}
	if policy.UserID != userID {
		return models.ErrPolicyNotFound
	}
	if !models.IsValidPolicyTransition(policy.Status, models.PolicyStatusCancelled) {
		return models.ErrConflict
	}
	if err := s.policyRepo.TransitionStatus(ctx, policyID, policy.Status, models.PolicyStatusCancelled); err != nil {
		return err
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "policy_cancelled",
		EntityType:  "policy",
		EntityID:    &policy.ID,
		Meta:        map[string]any{"policy_number": policy.PolicyNumber, "from_status": policy.Status},
	})
	return nil
}

func (s *PolicyService) GetPolicy(ctx context.Context, userID, policyID uuid.UUID) (*models.Policy, error) {
	policy, err := s.policyRepo.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.UserID != userID {
		return nil, models.ErrPolicyNotFound
	}
	return policy, nil
}

func (s *PolicyService) ListPolicies(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Policy, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.policyRepo.ListByUser(ctx, userID, limit, offset)
}

// ExpireOverduePolicies moves Active policies past their coverage end to
// Expired. Called by the background worker.
func (s *PolicyService) ExpireOverduePolicies(ctx context.Context) (int64, error) {
	n, err := s.policyRepo.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired overdue policies", zap.Int64("count", n))
	}
	return n, nil
}
