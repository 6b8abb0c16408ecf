package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aeroshield/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ClaimRepo struct {
	pool *pgxpool.Pool
}

func NewClaimRepo(pool *pgxpool.Pool) *ClaimRepo {
	return &ClaimRepo{pool: pool}
}

const claimColumns = `
	id, claim_number, user_id, policy_id, claim_type, status,
	trigger_event, trigger_value, trigger_timestamp,
	oracle_request_id, oracle_attestation_type, oracle_merkle_root,
	oracle_proof_data, oracle_verified, oracle_verified_at,
	price_usd, price_timestamp,
	payout_amount, payout_currency, payout_address,
	rejection_reason, error_message,
	created_at, updated_at, verified_at, approved_at, paid_at`

func scanClaim(row pgx.Row) (*models.Claim, error) {
	var c models.Claim
	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.UserID, &c.PolicyID, &c.ClaimType, &c.Status,
		&c.TriggerEvent, &c.TriggerValue, &c.TriggerTimestamp,
		&c.OracleRequestID, &c.OracleAttestationType, &c.OracleMerkleRoot,
		&c.OracleProofData, &c.OracleVerified, &c.OracleVerifiedAt,
		&c.PriceUSD, &c.PriceTimestamp,
		&c.PayoutAmount, &c.PayoutCurrency, &c.PayoutAddress,
		&c.RejectionReason, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt, &c.VerifiedAt, &c.ApprovedAt, &c.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrClaimNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateWithPolicyHold inserts the claim and moves the policy from active to
// payout_pending in one transaction: either both happen or neither does. The
// policy update is compare-and-set, so the second of two concurrent claim
// attempts gets ErrConflict and no claim row.
func (r *ClaimRepo) CreateWithPolicyHold(ctx context.Context, c *models.Claim) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE policies SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PolicyStatusPayoutPending, c.PolicyID, models.PolicyStatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO claims (
			claim_number, user_id, policy_id, claim_type, status,
			trigger_event, trigger_value, trigger_timestamp,
			payout_amount, payout_currency, payout_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, c.ClaimNumber, c.UserID, c.PolicyID, c.ClaimType, c.Status,
		c.TriggerEvent, c.TriggerValue, c.TriggerTimestamp,
		c.PayoutAmount, c.PayoutCurrency, c.PayoutAddress,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ClaimRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	return scanClaim(r.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
}

func (r *ClaimRepo) ClaimNumberExists(ctx context.Context, claimNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE claim_number = $1)`, claimNumber).Scan(&exists)
	return exists, err
}

func (r *ClaimRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Claim, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// ListStuckVerifying returns claims that have sat in verifying longer than the
// oracle timeout window; the worker fails them so nothing stays in verifying
// indefinitely.
func (r *ClaimRepo) ListStuckVerifying(ctx context.Context, olderThan time.Duration) ([]models.Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE status = $1 AND updated_at < now() - $2::interval
	`, models.ClaimStatusVerifying, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// UpdateStatus is a compare-and-set status change on the claim row.
func (r *ClaimRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE claims SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, next, id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// SetOracleRequest persists the oracle request id as soon as submission
// succeeds, so a crashed verification can be resumed later.
func (r *ClaimRepo) SetOracleRequest(ctx context.Context, id uuid.UUID, requestID, attestationType string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE claims SET oracle_request_id = $1, oracle_attestation_type = $2, updated_at = now()
		WHERE id = $3
	`, requestID, attestationType, id)
	return err
}

func (r *ClaimRepo) MarkApproved(ctx context.Context, id uuid.UUID, merkleRoot string, proofData []byte, triggerValue string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE claims SET
			status = $1, trigger_value = $2,
			oracle_merkle_root = $3, oracle_proof_data = $4,
			oracle_verified = true, oracle_verified_at = now(),
			verified_at = now(), approved_at = now(), updated_at = now()
		WHERE id = $5 AND status = $6
	`, models.ClaimStatusApproved, triggerValue, merkleRoot, proofData, id, models.ClaimStatusVerifying)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *ClaimRepo) MarkRejected(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE claims SET status = $1, rejection_reason = $2, verified_at = now(), updated_at = now()
		WHERE id = $3
	`, models.ClaimStatusRejected, reason, id)
	return err
}

func (r *ClaimRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE claims SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3
	`, models.ClaimStatusFailed, errMsg, id)
	return err
}

// ExecutePayoutParams carries everything the payout transaction touches.
type ExecutePayoutParams struct {
	ClaimID   uuid.UUID
	PolicyID  uuid.UUID
	PoolID    uuid.UUID
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	ToAddress string
	PriceUSD  *decimal.Decimal
}

// ExecutePayout performs the money movement as one database transaction:
// debit the pool reserve (guarded so the reserve can never go negative),
// record the pool transaction, mark the claim paid, and mark the policy paid.
// If the reserve guard fails it returns InsufficientFundsError and nothing is
// mutated.
func (r *ClaimRepo) ExecutePayout(ctx context.Context, p ExecutePayoutParams) (*models.PoolTransaction, error) {
	// The reserve guard below only catches overdrafts; a non-positive amount
	// would pass it and credit the pool.
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive, got %s", p.Amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Guarded debit: the sufficiency check and the subtraction are one
	// statement, so concurrent payouts cannot both pass against a reserve
	// that only covers one.
	tag, err := tx.Exec(ctx, `
		UPDATE insurance_pools SET
			stablecoin_reserve = stablecoin_reserve - $1,
			total_value_locked = total_value_locked - $1,
			total_payouts_made = total_payouts_made + $1,
			total_claims_paid = total_claims_paid + 1,
			updated_at = now()
		WHERE id = $2 AND stablecoin_reserve >= $1
	`, p.Amount, p.PoolID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var available decimal.Decimal
		err := tx.QueryRow(ctx, `SELECT stablecoin_reserve FROM insurance_pools WHERE id = $1`, p.PoolID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, models.ErrPoolNotFound
			}
			return nil, err
		}
		return nil, &models.InsufficientFundsError{Required: p.Amount, Available: available}
	}

	desc := "Claim payout for claim " + p.ClaimID.String()
	ptx := &models.PoolTransaction{
		PoolID:          p.PoolID,
		TransactionType: models.PoolTxPayout,
		Amount:          p.Amount,
		Currency:        p.Currency,
		UserID:          &p.UserID,
		ClaimID:         &p.ClaimID,
		ToAddress:       &p.ToAddress,
		Description:     &desc,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO pool_transactions (pool_id, transaction_type, amount, currency, user_id, claim_id, to_address, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, ptx.PoolID, ptx.TransactionType, ptx.Amount, ptx.Currency, ptx.UserID, ptx.ClaimID, ptx.ToAddress, ptx.Description,
	).Scan(&ptx.ID, &ptx.CreatedAt)
	if err != nil {
		return nil, err
	}

	tag, err = tx.Exec(ctx, `
		UPDATE claims SET status = $1, price_usd = $2, price_timestamp = now(), paid_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.ClaimStatusPaid, p.PriceUSD, p.ClaimID, models.ClaimStatusProcessing)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE policies SET status = $1, payout_amount = $2, payout_address = $3, paid_at = now(), updated_at = now()
		WHERE id = $4 AND status = $5
	`, models.PolicyStatusPaid, p.Amount, p.ToAddress, p.PolicyID, models.PolicyStatusPayoutPending)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ptx, nil
}
