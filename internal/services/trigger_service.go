package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aeroshield/backend/internal/repositories"
)

// TriggerService reacts to flight-status webhook events: it records the
// outcome on matching active policies and auto-files claims for flights whose
// delay crossed the policy threshold.
type TriggerService struct {
	policyRepo *repositories.PolicyRepo
	userRepo   *repositories.UserRepo
	engine     *ClaimsEngine
	log        *zap.Logger
}

func NewTriggerService(policyRepo *repositories.PolicyRepo, userRepo *repositories.UserRepo, engine *ClaimsEngine, log *zap.Logger) *TriggerService {
	return &TriggerService{
		policyRepo: policyRepo,
		userRepo:   userRepo,
		engine:     engine,
		log:        log,
	}
}

type FlightEvent struct {
	AirlineCode   string    `json:"airline_code"`
	FlightNumber  string    `json:"flight_number"`
	DepartureDate time.Time `json:"departure_date"`
	FlightStatus  string    `json:"flight_status"`
	DelayMinutes  int       `json:"delay_minutes"`
}

type FlightEventResult struct {
	PoliciesMatched int `json:"policies_matched"`
	ClaimsFiled     int `json:"claims_filed"`
}

// ProcessFlightEvent records the reported outcome on every active policy for
// this flight and auto-files a claim where the delay meets the policy
// threshold. The claim still goes through full oracle verification; the
// webhook is only a trigger, never a source of truth for payouts.
func (s *TriggerService) ProcessFlightEvent(ctx context.Context, event FlightEvent) (*FlightEventResult, error) {
	policies, err := s.policyRepo.ListActiveByFlight(ctx, event.AirlineCode, event.FlightNumber, event.DepartureDate)
	if err != nil {
		return nil, err
	}

	result := &FlightEventResult{PoliciesMatched: len(policies)}
	for i := range policies {
		policy := &policies[i]

		if err := s.policyRepo.SetFlightOutcome(ctx, policy.ID, event.DelayMinutes, event.FlightStatus); err != nil {
			s.log.Warn("failed to record flight outcome",
				zap.String("policy_number", policy.PolicyNumber), zap.Error(err))
			continue
		}

		if event.DelayMinutes < policy.DelayThresholdMinutes {
			continue
		}

		payoutAddress := ""
		if user, err := s.userRepo.GetByID(ctx, policy.UserID); err == nil && user.FlareAddress != nil {
			payoutAddress = *user.FlareAddress
		}
		if payoutAddress == "" {
			s.log.Info("delay threshold met but user has no payout address, skipping auto-claim",
				zap.String("policy_number", policy.PolicyNumber))
			continue
		}

		claim, err := s.engine.AutoProcessClaim(ctx, policy.UserID, policy.ID, payoutAddress)
		if err != nil {
			claimNumber := ""
			if claim != nil {
				claimNumber = claim.ClaimNumber
			}
			s.log.Warn("auto-claim did not complete",
				zap.String("policy_number", policy.PolicyNumber),
				zap.String("claim_number", claimNumber),
				zap.Error(err))
			continue
		}
		result.ClaimsFiled++
	}

	s.log.Info("flight event processed",
		zap.String("flight", event.AirlineCode+event.FlightNumber),
		zap.Int("policies_matched", result.PoliciesMatched),
		zap.Int("claims_filed", result.ClaimsFiled))
	return result, nil
}
