package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/aeroshield/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

const policyColumns = `
	id, policy_number, user_id, policy_type, status,
	flight_number, airline_code, departure_airport, arrival_airport,
	scheduled_departure, scheduled_arrival,
	coverage_amount, premium_amount, currency, delay_threshold_minutes,
	risk_score, delay_probability, risk_tier,
	actual_delay_minutes, flight_status,
	payout_amount, payout_address, paid_at,
	coverage_start, coverage_end, created_at, updated_at, activated_at`

func scanPolicy(row pgx.Row) (*models.Policy, error) {
	var p models.Policy
	err := row.Scan(
		&p.ID, &p.PolicyNumber, &p.UserID, &p.PolicyType, &p.Status,
		&p.FlightNumber, &p.AirlineCode, &p.DepartureAirport, &p.ArrivalAirport,
		&p.ScheduledDeparture, &p.ScheduledArrival,
		&p.CoverageAmount, &p.PremiumAmount, &p.Currency, &p.DelayThresholdMinutes,
		&p.RiskScore, &p.DelayProbability, &p.RiskTier,
		&p.ActualDelayMinutes, &p.FlightStatus,
		&p.PayoutAmount, &p.PayoutAddress, &p.PaidAt,
		&p.CoverageStart, &p.CoverageEnd, &p.CreatedAt, &p.UpdatedAt, &p.ActivatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PolicyRepo) Create(ctx context.Context, p *models.Policy) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO policies (
			policy_number, user_id, policy_type, status,
			flight_number, airline_code, departure_airport, arrival_airport,
			scheduled_departure, scheduled_arrival,
			coverage_amount, premium_amount, currency, delay_threshold_minutes,
			risk_score, delay_probability, risk_tier,
			coverage_start, coverage_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`, p.PolicyNumber, p.UserID, p.PolicyType, p.Status,
		p.FlightNumber, p.AirlineCode, p.DepartureAirport, p.ArrivalAirport,
		p.ScheduledDeparture, p.ScheduledArrival,
		p.CoverageAmount, p.PremiumAmount, p.Currency, p.DelayThresholdMinutes,
		p.RiskScore, p.DelayProbability, p.RiskTier,
		p.CoverageStart, p.CoverageEnd,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PolicyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	return scanPolicy(r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id))
}

func (r *PolicyRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Policy, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// TransitionStatus is a compare-and-set status change. It fails with
// ErrConflict when the policy's current status no longer matches expected,
// which is how concurrent claim attempts against one policy lose the race.
func (r *PolicyRepo) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE policies SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, next, id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM policies WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrPolicyNotFound
		}
		return models.ErrConflict
	}
	return nil
}

// Activate moves a pending policy to active once its premium deposit is
// confirmed, stamping activated_at.
func (r *PolicyRepo) Activate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE policies SET status = $1, activated_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PolicyStatusActive, id, models.PolicyStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// ExpireOverdue marks active policies whose coverage window has closed.
// Returns the number of policies expired.
func (r *PolicyRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE policies SET status = $1, updated_at = now()
		WHERE status = $2 AND coverage_end < $3
	`, models.PolicyStatusExpired, models.PolicyStatusActive, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListActiveByFlight finds active policies covering a given flight on a given
// departure date, used by the flight-status trigger webhook.
func (r *PolicyRepo) ListActiveByFlight(ctx context.Context, airlineCode, flightNumber string, departureDate time.Time) ([]models.Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE status = $1 AND airline_code = $2 AND flight_number = $3
		  AND scheduled_departure::date = $4::date
	`, models.PolicyStatusActive, airlineCode, flightNumber, departureDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// SetFlightOutcome records the attested flight result on the policy.
func (r *PolicyRepo) SetFlightOutcome(ctx context.Context, id uuid.UUID, delayMinutes int, flightStatus string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE policies SET actual_delay_minutes = $1, flight_status = $2, updated_at = now()
		WHERE id = $3
	`, delayMinutes, flightStatus, id)
	return err
}
