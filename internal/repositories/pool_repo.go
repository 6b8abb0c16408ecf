package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/aeroshield/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PoolRepo struct {
	pool *pgxpool.Pool
}

func NewPoolRepo(pool *pgxpool.Pool) *PoolRepo {
	return &PoolRepo{pool: pool}
}

const poolColumns = `
	id, name, symbol, is_active,
	total_value_locked, total_premiums_collected, total_payouts_made,
	stablecoin_reserve, fasset_reserve, collateralization_ratio,
	total_policies_issued, total_claims_paid, created_at, updated_at`

func scanPool(row pgx.Row) (*models.InsurancePool, error) {
	var p models.InsurancePool
	err := row.Scan(
		&p.ID, &p.Name, &p.Symbol, &p.IsActive,
		&p.TotalValueLocked, &p.TotalPremiumsCollected, &p.TotalPayoutsMade,
		&p.StablecoinReserve, &p.FAssetReserve, &p.CollateralizationRatio,
		&p.TotalPoliciesIssued, &p.TotalClaimsPaid, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPoolNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PoolRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InsurancePool, error) {
	return scanPool(r.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM insurance_pools WHERE id = $1`, id))
}

// GetOrCreate returns the pool with the given symbol, creating it on first use.
func (r *PoolRepo) GetOrCreate(ctx context.Context, name, symbol string, minRatio decimal.Decimal) (*models.InsurancePool, error) {
	p, err := scanPool(r.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM insurance_pools WHERE symbol = $1`, symbol))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, models.ErrPoolNotFound) {
		return nil, err
	}

	return scanPool(r.pool.QueryRow(ctx, `
		INSERT INTO insurance_pools (name, symbol, is_active, collateralization_ratio)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (symbol) DO UPDATE SET updated_at = now()
		RETURNING `+poolColumns+`
	`, name, symbol, minRatio))
}

// CreditPremium adds a premium deposit to the pool totals and records the
// transaction, atomically.
func (r *PoolRepo) CreditPremium(ctx context.Context, poolID uuid.UUID, amount decimal.Decimal, policyID, userID uuid.UUID) (*models.PoolTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE insurance_pools SET
			total_value_locked = total_value_locked + $1,
			total_premiums_collected = total_premiums_collected + $1,
			stablecoin_reserve = stablecoin_reserve + $1,
			total_policies_issued = total_policies_issued + 1,
			updated_at = now()
		WHERE id = $2
	`, amount, poolID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrPoolNotFound
	}

	desc := "Premium payment for policy " + policyID.String()
	ptx := &models.PoolTransaction{
		PoolID:          poolID,
		TransactionType: models.PoolTxPremiumDeposit,
		Amount:          amount,
		Currency:        "USDT",
		UserID:          &userID,
		PolicyID:        &policyID,
		Description:     &desc,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO pool_transactions (pool_id, transaction_type, amount, currency, user_id, policy_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, ptx.PoolID, ptx.TransactionType, ptx.Amount, ptx.Currency, ptx.UserID, ptx.PolicyID, ptx.Description,
	).Scan(&ptx.ID, &ptx.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ptx, nil
}

// DebitPayout is the standalone ledger debit, guarded so the reserve cannot go
// negative. Claim payouts go through ClaimRepo.ExecutePayout instead so the
// claim and policy rows move in the same transaction.
func (r *PoolRepo) DebitPayout(ctx context.Context, poolID uuid.UUID, amount decimal.Decimal, claimID, userID uuid.UUID, toAddress string) (*models.PoolTransaction, error) {
	// The reserve guard below only catches overdrafts; a non-positive amount
	// would pass it and credit the pool.
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive, got %s", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE insurance_pools SET
			stablecoin_reserve = stablecoin_reserve - $1,
			total_value_locked = total_value_locked - $1,
			total_payouts_made = total_payouts_made + $1,
			total_claims_paid = total_claims_paid + 1,
			updated_at = now()
		WHERE id = $2 AND stablecoin_reserve >= $1
	`, amount, poolID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var available decimal.Decimal
		err := tx.QueryRow(ctx, `SELECT stablecoin_reserve FROM insurance_pools WHERE id = $1`, poolID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, models.ErrPoolNotFound
			}
			return nil, err
		}
		return nil, &models.InsufficientFundsError{Required: amount, Available: available}
	}

	desc := "Claim payout for claim " + claimID.String()
	ptx := &models.PoolTransaction{
		PoolID:          poolID,
		TransactionType: models.PoolTxPayout,
		Amount:          amount,
		Currency:        "USDT",
		UserID:          &userID,
		ClaimID:         &claimID,
		ToAddress:       &toAddress,
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

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ptx, nil
}

func (r *PoolRepo) ListTransactions(ctx context.Context, poolID uuid.UUID, limit, offset int) ([]models.PoolTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, pool_id, transaction_type, amount, currency, user_id, policy_id, claim_id, to_address, description, created_at
		FROM pool_transactions WHERE pool_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, poolID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.PoolTransaction
	for rows.Next() {
		var t models.PoolTransaction
		if err := rows.Scan(&t.ID, &t.PoolID, &t.TransactionType, &t.Amount, &t.Currency,
			&t.UserID, &t.PolicyID, &t.ClaimID, &t.ToAddress, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
