package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swap-market/backend/internal/models"
)

const swapColumns = `id, from_user_id, to_user_id, offering_product_id, requested_product_id,
		       message, extra_payment, status, settled_reference, created_at, updated_at`

type SwapRepo struct {
	pool *pgxpool.Pool
}

func NewSwapRepo(pool *pgxpool.Pool) *SwapRepo {
	return &SwapRepo{pool: pool}
}

type SwapFilter struct {
	FromUserID *uuid.UUID
	ToUserID   *uuid.UUID
	Status     *models.SwapStatus
	Limit      int
	Offset     int
}

func swapFields(s *models.Swap) []any {
	return []any{&s.ID, &s.FromUserID, &s.ToUserID, &s.OfferingProductID, &s.RequestedProductID,
		&s.Message, &s.ExtraPayment, &s.Status, &s.SettledReference, &s.CreatedAt, &s.UpdatedAt}
}

func scanSwap(row pgx.Row) (*models.Swap, error) {
	var s models.Swap
	if err := row.Scan(swapFields(&s)...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SwapRepo) Create(ctx context.Context, s *models.Swap) error {
	s.UpdatedAt = s.CreatedAt
	return r.pool.QueryRow(ctx, `
		INSERT INTO swaps (from_user_id, to_user_id, offering_product_id, requested_product_id,
		                   message, extra_payment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, s.FromUserID, s.ToUserID, s.OfferingProductID, s.RequestedProductID,
		s.Message, s.ExtraPayment, s.Status, s.CreatedAt,
	).Scan(&s.ID)
}

func (r *SwapRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Swap, error) {
	s, err := scanSwap(r.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *SwapRepo) List(ctx context.Context, f SwapFilter) ([]models.Swap, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.FromUserID != nil {
		where = append(where, fmt.Sprintf("from_user_id = $%d", argIdx))
		args = append(args, *f.FromUserID)
		argIdx++
	}
	if f.ToUserID != nil {
		where = append(where, fmt.Sprintf("to_user_id = $%d", argIdx))
		args = append(args, *f.ToUserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, clampLimit(f.Limit), f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	swaps := []models.Swap{}
	for rows.Next() {
		s, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, *s)
	}
	return swaps, rows.Err()
}

// CompareAndSwapStatus moves one swap from -> to in a single statement.
// It returns ErrConflict when the row is not currently in from.
func (r *SwapRepo) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (*models.Swap, error) {
	if err := models.CheckSwapTransition(from, to); err != nil {
		return nil, err
	}
	s, err := scanSwap(r.pool.QueryRow(ctx, `
		UPDATE swaps SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+swapColumns,
		id, from, to, at))
	if isNoRows(err) {
		return nil, ErrConflict
	}
	return s, err
}

// CompleteLatestAccepted completes the most recently accepted swap that
// requested productID and stamps it with the settling payment reference.
// If a swap on the product already carries reference, that swap is returned
// with completed=false and nothing changes. Returns ErrNotFound when there
// is neither.
func (r *SwapRepo) CompleteLatestAccepted(ctx context.Context, productID uuid.UUID, reference string, at time.Time) (*models.Swap, bool, error) {
	if err := models.CheckSwapTransition(models.SwapStatusAccepted, models.SwapStatusCompleted); err != nil {
		return nil, false, err
	}
	var s models.Swap
	var completed bool
	err := r.pool.QueryRow(ctx, `
		WITH settled AS (
			SELECT `+swapColumns+` FROM swaps
			WHERE requested_product_id = $1 AND settled_reference = $2
		), completed AS (
			UPDATE swaps SET status = $4, settled_reference = $2, updated_at = $5
			WHERE id = (
				SELECT id FROM swaps
				WHERE requested_product_id = $1 AND status = $3
				ORDER BY updated_at DESC, created_at DESC
				LIMIT 1
			) AND status = $3 AND NOT EXISTS (SELECT 1 FROM settled)
			RETURNING `+swapColumns+`
		)
		SELECT *, false FROM settled
		UNION ALL
		SELECT *, true FROM completed
		LIMIT 1`,
		productID, reference, models.SwapStatusAccepted, models.SwapStatusCompleted, at,
	).Scan(append(swapFields(&s), &completed)...)
	switch {
	case isNoRows(err):
		return nil, false, ErrNotFound
	case isDuplicateKeyError(err):
		// another delivery of the same reference got there first
		return nil, false, ErrConflict
	case err != nil:
		return nil, false, err
	}
	return &s, completed, nil
}

// ExpirePending moves every pending swap created at or before cutoff to
// expired in one statement and returns the swaps it changed.
func (r *SwapRepo) ExpirePending(ctx context.Context, cutoff, at time.Time) ([]models.Swap, error) {
	if err := models.CheckSwapTransition(models.SwapStatusPending, models.SwapStatusExpired); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE swaps SET status = $2, updated_at = $4
		WHERE status = $1 AND created_at <= $3
		RETURNING `+swapColumns,
		models.SwapStatusPending, models.SwapStatusExpired, cutoff, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []models.Swap
	for rows.Next() {
		s, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *s)
	}
	return expired, rows.Err()
}

// PurgeTerminal deletes swaps in the given terminal statuses last updated at
// or before cutoff.
func (r *SwapRepo) PurgeTerminal(ctx context.Context, statuses []models.SwapStatus, cutoff time.Time) (int64, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if !st.IsTerminal() {
			return 0, fmt.Errorf("refusing to purge non-terminal status %q", st)
		}
		names = append(names, string(st))
	}
	if len(names) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM swaps WHERE status = ANY($1) AND updated_at <= $2
	`, names, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
