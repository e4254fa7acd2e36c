// Package idempotency records which external events have been seen and
// which have been fully applied, so redelivered events skip finished work
// and resume unfinished work.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/swap-market/backend/internal/models"
)

// Outcome tells the caller what to do with an event.
type Outcome int

const (
	// OutcomeFresh: first sighting, apply everything.
	OutcomeFresh Outcome = iota
	// OutcomeResume: seen before but never completed. Re-apply; every step
	// must tolerate running twice.
	OutcomeResume
	// OutcomeDone: already applied, skip.
	OutcomeDone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeResume:
		return "resume"
	case OutcomeDone:
		return "done"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var ErrEmptyKey = errors.New("idempotency key is empty")

type Store interface {
	Claim(ctx context.Context, scope, key string, at time.Time) (*models.IdempotencyKey, bool, error)
	Complete(ctx context.Context, scope, key string, at time.Time) error
}

type Guard struct {
	store Store
	scope string
	now   func() time.Time
}

func NewGuard(store Store, scope string) *Guard {
	return &Guard{store: store, scope: scope, now: time.Now}
}

// WithClock replaces the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) Scope() string { return g.scope }

func (g *Guard) Begin(ctx context.Context, key string) (Outcome, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	k, inserted, err := g.store.Claim(ctx, g.scope, key, g.now())
	if err != nil {
		return 0, fmt.Errorf("claim idempotency key: %w", err)
	}
	switch {
	case inserted:
		return OutcomeFresh, nil
	case k.State == models.IdempotencyStateCompleted:
		return OutcomeDone, nil
	default:
		return OutcomeResume, nil
	}
}

func (g *Guard) Complete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := g.store.Complete(ctx, g.scope, key, g.now()); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}
