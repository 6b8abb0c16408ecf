package events

import "context"

// Event types
const (
	EventClaimStatusChanged  = "claim_status_changed"
	EventPolicyStatusChanged = "policy_status_changed"
	EventPoolUpdated         = "pool_updated"
	EventPayoutExecuted      = "payout_executed"
)

// Channels
const (
	StreamClaims   = "events:claims"
	StreamPolicies = "events:policies"
	StreamPool     = "events:pool"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
