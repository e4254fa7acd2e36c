package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swap-market/backend/internal/models"
)

type IdempotencyRepo struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Claim registers a sighting of (scope, key). The first sighting inserts an
// in_flight row; later ones bump hits and return the row as it stands.
func (r *IdempotencyRepo) Claim(ctx context.Context, scope, key string, at time.Time) (*models.IdempotencyKey, bool, error) {
	var k models.IdempotencyKey
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO idempotency_keys (scope, key, state, hits, first_seen_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (scope, key) DO UPDATE SET hits = idempotency_keys.hits + 1
		RETURNING scope, key, state, hits, first_seen_at, completed_at, (xmax = 0)
	`, scope, key, models.IdempotencyStateInFlight, at).Scan(
		&k.Scope, &k.Key, &k.State, &k.Hits, &k.FirstSeenAt, &k.CompletedAt, &inserted)
	if err != nil {
		return nil, false, err
	}
	return &k, inserted, nil
}

func (r *IdempotencyRepo) Complete(ctx context.Context, scope, key string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys SET state = $3, completed_at = COALESCE(completed_at, $4)
		WHERE scope = $1 AND key = $2
	`, scope, key, models.IdempotencyStateCompleted, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
