package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	stream string
	event  Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, stream string, event Event) error {
	c.stream, c.event = stream, event
	return c.err
}

func TestNotifier_PublishesToNotifyStream(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNotifier(pub)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	n.now = func() time.Time { return at }

	user := uuid.New()
	require.NoError(t, n.Notify(context.Background(), user, SwapAccepted, map[string]any{"swap_id": "s1"}))

	assert.Equal(t, StreamNotify, pub.stream)
	assert.Equal(t, SwapAccepted, pub.event.Type)
	assert.Equal(t, user, pub.event.UserID)
	assert.Equal(t, "s1", pub.event.Payload["swap_id"])
	assert.Equal(t, time.UTC, pub.event.OccurredAt.Location())
}

func TestNotifier_ReturnsPublishError(t *testing.T) {
	n := NewNotifier(&capturePublisher{err: errors.New("redis down")})
	err := n.Notify(context.Background(), uuid.New(), SwapExpired, nil)
	assert.ErrorContains(t, err, "redis down")
}
