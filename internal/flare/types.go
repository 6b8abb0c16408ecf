package flare

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// AttestationRequest is the prepared body submitted to the FDC verifier.
type AttestationRequest struct {
	AttestationType string         `json:"attestationType"`
	SourceID        string         `json:"sourceId"`
	RequestBody     map[string]any `json:"requestBody"`
}

// FinalizedResult reports a finalized attestation round.
type FinalizedResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// ProofBundle holds the Merkle proof and the attested response for a
// finalized request. ResponseBody is the raw attested JSON.
type ProofBundle struct {
	RequestID    string   `json:"request_id"`
	MerkleRoot   string   `json:"merkle_root"`
	Proof        []string `json:"proof"`
	ResponseBody []byte   `json:"response_body"`
}

// FlightOutcome is the domain result extracted from an attested flight-status
// response.
type FlightOutcome struct {
	Status       string
	DelayMinutes int
}

// ParseFlightOutcome pulls the flight status and departure delay out of the
// attested response payload.
func ParseFlightOutcome(responseBody []byte) (*FlightOutcome, error) {
	if len(responseBody) == 0 {
		return nil, fmt.Errorf("empty oracle response body")
	}

	root := gjson.GetBytes(responseBody, "flightStatuses.0")
	if !root.Exists() {
		return nil, fmt.Errorf("oracle response has no flight status entry")
	}

	status := root.Get("status").String()
	if status == "" {
		return nil, fmt.Errorf("oracle response missing flight status")
	}

	delay := root.Get("delays.departureGateDelayMinutes")
	if !delay.Exists() {
		// On-time flights omit the delays block entirely.
		return &FlightOutcome{Status: status, DelayMinutes: 0}, nil
	}
	return &FlightOutcome{Status: status, DelayMinutes: int(delay.Int())}, nil
}
