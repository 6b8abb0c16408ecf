package repositories

import (
	"context"

	"github.com/aeroshield/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OracleRepo struct {
	pool *pgxpool.Pool
}

func NewOracleRepo(pool *pgxpool.Pool) *OracleRepo {
	return &OracleRepo{pool: pool}
}

func (r *OracleRepo) Create(ctx context.Context, req *models.OracleRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO oracle_requests (request_id, attestation_type, source_id, status, claim_id, request_body, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, req.RequestID, req.AttestationType, req.SourceID, req.Status, req.ClaimID, req.RequestBody,
	).Scan(&req.ID, &req.CreatedAt)
}

func (r *OracleRepo) GetByRequestID(ctx context.Context, requestID string) (*models.OracleRequest, error) {
	var req models.OracleRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, request_id, attestation_type, source_id, status, claim_id,
		       request_body, merkle_root, proof, response_body, error_message,
		       submitted_at, finalized_at, created_at
		FROM oracle_requests WHERE request_id = $1
	`, requestID).Scan(
		&req.ID, &req.RequestID, &req.AttestationType, &req.SourceID, &req.Status, &req.ClaimID,
		&req.RequestBody, &req.MerkleRoot, &req.Proof, &req.ResponseBody, &req.ErrorMessage,
		&req.SubmittedAt, &req.FinalizedAt, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *OracleRepo) UpdateStatus(ctx context.Context, requestID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE oracle_requests SET status = $1 WHERE request_id = $2
	`, status, requestID)
	return err
}

func (r *OracleRepo) MarkFinalized(ctx context.Context, requestID, merkleRoot string, proof []string, responseBody []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE oracle_requests SET
			status = $1, merkle_root = $2, proof = $3, response_body = $4, finalized_at = now()
		WHERE request_id = $5
	`, models.OracleStatusFinalized, merkleRoot, proof, responseBody, requestID)
	return err
}

func (r *OracleRepo) MarkFailed(ctx context.Context, requestID, status, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE oracle_requests SET status = $1, error_message = $2 WHERE request_id = $3
	`, status, errMsg, requestID)
	return err
}
