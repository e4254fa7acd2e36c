package models

import "time"

const (
	IdempotencyStateInFlight  = "in_flight"
	IdempotencyStateCompleted = "completed"
)

// IdempotencyKey records that an external event was seen, and whether its
// effects were fully applied.
type IdempotencyKey struct {
	Scope       string     `json:"scope"`
	Key         string     `json:"key"`
	State       string     `json:"state"`
	Hits        int        `json:"hits"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
