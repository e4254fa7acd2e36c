package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamNotify carries per-user notifications to the notify bridge.
const StreamNotify = "events:notify"

// Notification types
const (
	SwapReceived  = "swap.received"
	SwapAccepted  = "swap.accepted"
	SwapRejected  = "swap.rejected"
	SwapExpired   = "swap.expired"
	SwapCompleted = "swap.completed"
)

type Event struct {
	Type       string         `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// Notifier publishes a notification for one user onto StreamNotify.
// Delivery happens elsewhere.
type Notifier struct {
	pub Publisher
	now func() time.Time
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	return n.pub.Publish(ctx, StreamNotify, Event{
		Type:       event,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: n.now().UTC(),
	})
}
