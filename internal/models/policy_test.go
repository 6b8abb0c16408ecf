package models

import "testing"

func TestIsValidPolicyTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{PolicyStatusPending, PolicyStatusActive, true},
		{PolicyStatusPending, PolicyStatusCancelled, true},
		{PolicyStatusActive, PolicyStatusPayoutPending, true},
		{PolicyStatusActive, PolicyStatusExpired, true},
		{PolicyStatusActive, PolicyStatusCancelled, true},
		{PolicyStatusPayoutPending, PolicyStatusPaid, true},
		{PolicyStatusPayoutPending, PolicyStatusActive, true},

		// PayoutPending only from Active, Paid only from PayoutPending
		{PolicyStatusPending, PolicyStatusPayoutPending, false},
		{PolicyStatusExpired, PolicyStatusPayoutPending, false},
		{PolicyStatusActive, PolicyStatusPaid, false},
		{PolicyStatusPending, PolicyStatusPaid, false},

		// Terminal statuses
		{PolicyStatusPaid, PolicyStatusActive, false},
		{PolicyStatusExpired, PolicyStatusActive, false},
		{PolicyStatusCancelled, PolicyStatusActive, false},
		{"nonexistent", PolicyStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidPolicyTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidPolicyTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllPolicyStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		PolicyStatusPending, PolicyStatusActive, PolicyStatusExpired,
		PolicyStatusClaimed, PolicyStatusCancelled, PolicyStatusPayoutPending,
		PolicyStatusPaid,
	}

	for _, status := range allStatuses {
		if _, ok := ValidPolicyTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidPolicyTransitions map", status)
		}
	}
}
