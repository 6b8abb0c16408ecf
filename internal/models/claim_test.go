package models

import (
	"testing"
	"time"
)

func TestIsValidClaimTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{ClaimStatusInitiated, ClaimStatusVerifying, true},
		{ClaimStatusVerifying, ClaimStatusApproved, true},
		{ClaimStatusVerifying, ClaimStatusRejected, true},
		{ClaimStatusApproved, ClaimStatusProcessing, true},
		{ClaimStatusProcessing, ClaimStatusPaid, true},

		// Failure paths
		{ClaimStatusInitiated, ClaimStatusFailed, true},
		{ClaimStatusVerifying, ClaimStatusFailed, true},
		{ClaimStatusProcessing, ClaimStatusFailed, true},

		// Invalid transitions
		{ClaimStatusInitiated, ClaimStatusApproved, false},
		{ClaimStatusInitiated, ClaimStatusPaid, false},
		{ClaimStatusApproved, ClaimStatusPaid, false},
		{ClaimStatusApproved, ClaimStatusRejected, false},
		{ClaimStatusRejected, ClaimStatusVerifying, false},
		{ClaimStatusPaid, ClaimStatusProcessing, false},
		{ClaimStatusFailed, ClaimStatusVerifying, false},
		{ClaimStatusPaid, ClaimStatusFailed, false},
		{"nonexistent", ClaimStatusVerifying, false},
		{ClaimStatusInitiated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidClaimTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidClaimTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalClaimStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{ClaimStatusRejected, ClaimStatusPaid, ClaimStatusFailed}
	for _, status := range terminal {
		transitions := ValidClaimTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestClaimProgressPercentage(t *testing.T) {
	now := time.Now()
	reqID := "0xabc"

	tests := []struct {
		name     string
		claim    Claim
		expected int
	}{
		{"initiated only", Claim{Status: ClaimStatusInitiated}, 25},
		{"oracle submitted", Claim{Status: ClaimStatusVerifying, OracleRequestID: &reqID}, 50},
		{"approved", Claim{Status: ClaimStatusApproved, OracleRequestID: &reqID, ApprovedAt: &now}, 75},
		{"paid", Claim{Status: ClaimStatusPaid, OracleRequestID: &reqID, ApprovedAt: &now, PaidAt: &now}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claim.ProgressPercentage(); got != tt.expected {
				t.Errorf("ProgressPercentage() = %d, want %d", got, tt.expected)
			}
		})
	}
}
