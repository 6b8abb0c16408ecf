package flare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aeroshield/backend/internal/models"
)

// OracleStore persists the lifecycle of attestation requests.
type OracleStore interface {
	Create(ctx context.Context, req *models.OracleRequest) error
	UpdateStatus(ctx context.Context, requestID, status string) error
	MarkFinalized(ctx context.Context, requestID, merkleRoot string, proof []string, responseBody []byte) error
	MarkFailed(ctx context.Context, requestID, status, errMsg string) error
}

// FDCClient talks to the Flare Data Connector verifier API.
type FDCClient struct {
	verifierURL  string
	httpClient   *http.Client
	store        OracleStore
	timeout      time.Duration
	pollInterval time.Duration
	log          *zap.Logger
}

func NewFDCClient(verifierURL string, store OracleStore, timeout, pollInterval time.Duration, log *zap.Logger) *FDCClient {
	return &FDCClient{
		verifierURL: strings.TrimRight(verifierURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		store:        store,
		timeout:      timeout,
		pollInterval: pollInterval,
		log:          log,
	}
}

// PrepareFlightStatusRequest builds a Web2Json attestation request for a
// flight's departure status on the given date.
func PrepareFlightStatusRequest(airlineCode, flightNumber string, departureDate time.Time) AttestationRequest {
	url := fmt.Sprintf(
		"https://api.flightstats.com/flex/flightstatus/rest/v2/json/flight/status/%s/%s/dep/%d/%d/%d",
		airlineCode, flightNumber,
		departureDate.Year(), int(departureDate.Month()), departureDate.Day(),
	)
	return AttestationRequest{
		AttestationType: models.AttestationWeb2JSON,
		SourceID:        "PublicWeb2",
		RequestBody: map[string]any{
			"url":        url,
			"httpMethod": "GET",
			"postProcessJq": `{status: .flightStatuses[0].status,` +
				` delayMinutes: (.flightStatuses[0].delays.departureGateDelayMinutes // 0)}`,
			"abiSignature": `{"components":[{"name":"status","type":"string"},{"name":"delayMinutes","type":"uint256"}],"type":"tuple"}`,
		},
	}
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// SubmitRequest prepares and submits an attestation request, persists a
// pending oracle request row for claimID, and returns the verifier-assigned
// request id.
func (c *FDCClient) SubmitRequest(ctx context.Context, claimID uuid.UUID, attReq AttestationRequest) (string, error) {
	prepared, err := c.post(ctx, "/api/prepare", attReq)
	if err != nil {
		return "", &models.OracleError{Kind: models.OracleErrSubmission, Err: err}
	}

	var submitBody json.RawMessage = prepared
	submitted, err := c.post(ctx, "/api/submit", submitBody)
	if err != nil {
		return "", &models.OracleError{Kind: models.OracleErrSubmission, Err: err}
	}

	var result submitResponse
	if err := json.Unmarshal(submitted, &result); err != nil {
		return "", &models.OracleError{Kind: models.OracleErrSubmission, Err: fmt.Errorf("decode submit response: %w", err)}
	}
	if result.RequestID == "" {
		return "", &models.OracleError{Kind: models.OracleErrSubmission, Err: fmt.Errorf("verifier returned no request id")}
	}

	now := time.Now()
	row := &models.OracleRequest{
		ID:              uuid.New(),
		ClaimID:         &claimID,
		RequestID:       result.RequestID,
		AttestationType: attReq.AttestationType,
		SourceID:        attReq.SourceID,
		Status:          models.OracleStatusSubmitted,
		RequestBody:     prepared,
		SubmittedAt:     &now,
	}
	if err := c.store.Create(ctx, row); err != nil {
		return "", fmt.Errorf("persist oracle request: %w", err)
	}

	c.log.Info("attestation request submitted",
		zap.String("request_id", result.RequestID),
		zap.String("claim_id", claimID.String()))
	return result.RequestID, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// GetRequestStatus returns the verifier's current status for a request.
func (c *FDCClient) GetRequestStatus(ctx context.Context, requestID string) (string, error) {
	body, err := c.get(ctx, "/api/status/"+requestID)
	if err != nil {
		return "", err
	}
	var result statusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return result.Status, nil
}

// AwaitFinalization polls the verifier until the request finalizes, fails, or
// the configured timeout elapses. Status transitions are persisted as they are
// observed.
func (c *FDCClient) AwaitFinalization(ctx context.Context, requestID string) (*FinalizedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	lastStatus := models.OracleStatusSubmitted
	for {
		select {
		case <-ctx.Done():
			if err := c.store.MarkFailed(context.WithoutCancel(ctx), requestID, models.OracleStatusExpired, "finalization timeout"); err != nil {
				c.log.Warn("failed to persist oracle status", zap.String("request_id", requestID), zap.Error(err))
			}
			return nil, &models.OracleError{
				Kind:      models.OracleErrTimeout,
				RequestID: requestID,
				Err:       fmt.Errorf("attestation not finalized within %s", c.timeout),
			}
		case <-ticker.C:
			status, err := c.GetRequestStatus(ctx, requestID)
			if err != nil {
				c.log.Warn("oracle status poll failed", zap.String("request_id", requestID), zap.Error(err))
				continue
			}

			switch status {
			case models.OracleStatusFinalized:
				if err := c.store.UpdateStatus(ctx, requestID, models.OracleStatusFinalized); err != nil {
					return nil, fmt.Errorf("persist oracle status: %w", err)
				}
				return &FinalizedResult{RequestID: requestID, Status: status}, nil
			case models.OracleStatusFailed:
				if err := c.store.MarkFailed(ctx, requestID, models.OracleStatusFailed, "attestation rejected by data providers"); err != nil {
					c.log.Warn("failed to persist oracle status", zap.String("request_id", requestID), zap.Error(err))
				}
				return nil, &models.OracleError{
					Kind:      models.OracleErrFailed,
					RequestID: requestID,
					Err:       fmt.Errorf("attestation failed"),
				}
			default:
				if status != lastStatus {
					if err := c.store.UpdateStatus(ctx, requestID, status); err != nil {
						c.log.Warn("failed to persist oracle status", zap.String("request_id", requestID), zap.Error(err))
					}
					lastStatus = status
				}
			}
		}
	}
}

type proofResponse struct {
	MerkleRoot string   `json:"merkle_root"`
	Proof      []string `json:"proof"`
}

// GetProof fetches the Merkle proof and attested response body for a
// finalized request and persists them.
func (c *FDCClient) GetProof(ctx context.Context, requestID string) (*ProofBundle, error) {
	proofBody, err := c.get(ctx, "/api/proof/"+requestID)
	if err != nil {
		if isNotFound(err) {
			return nil, models.ErrProofNotAvailable
		}
		return nil, err
	}
	var proof proofResponse
	if err := json.Unmarshal(proofBody, &proof); err != nil {
		return nil, fmt.Errorf("decode proof response: %w", err)
	}

	responseBody, err := c.get(ctx, "/api/response/"+requestID)
	if err != nil {
		if isNotFound(err) {
			return nil, models.ErrProofNotAvailable
		}
		return nil, err
	}

	if err := c.store.MarkFinalized(ctx, requestID, proof.MerkleRoot, proof.Proof, responseBody); err != nil {
		return nil, fmt.Errorf("persist oracle proof: %w", err)
	}

	return &ProofBundle{
		RequestID:    requestID,
		MerkleRoot:   proof.MerkleRoot,
		Proof:        proof.Proof,
		ResponseBody: responseBody,
	}, nil
}

// VerifyProof checks that a proof bundle carries a Merkle root and a
// non-empty inclusion proof.
func (c *FDCClient) VerifyProof(bundle *ProofBundle) bool {
	if bundle == nil || bundle.MerkleRoot == "" || len(bundle.Proof) == 0 {
		return false
	}
	for _, node := range bundle.Proof {
		if node == "" {
			return false
		}
	}
	return true
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("verifier returned %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.code == http.StatusNotFound
}

func (c *FDCClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifierURL+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifier unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{code: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

func (c *FDCClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.verifierURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifier unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{code: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}
