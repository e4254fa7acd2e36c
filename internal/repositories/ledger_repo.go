package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swap-market/backend/internal/models"
)

const ledgerColumns = `id, user_id, reference, amount, status, type, channel, narration, verified, created_at, updated_at`

// LedgerRepo is append-only: entries are inserted once per reference and
// afterwards only their status may move, through CompareAndSwapStatus.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func scanLedgerEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Reference, &e.Amount, &e.Status, &e.Type, &e.Channel,
		&e.Narration, &e.Verified, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert stores e unless its reference already exists. It returns the stored
// entry and whether this call created it.
func (r *LedgerRepo) Insert(ctx context.Context, e *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	created, err := scanLedgerEntry(r.pool.QueryRow(ctx, `
		INSERT INTO wallet_ledger (user_id, reference, amount, status, type, channel, narration, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (reference) DO NOTHING
		RETURNING `+ledgerColumns,
		e.UserID, e.Reference, e.Amount, e.Status, e.Type, e.Channel, e.Narration, e.Verified, e.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return nil, false, err
	}

	existing, err := r.GetByReference(ctx, e.Reference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *LedgerRepo) GetByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	e, err := scanLedgerEntry(r.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM wallet_ledger WHERE reference = $1`, reference))
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	return e, err
}

// CompareAndSwapStatus settles an entry. ErrConflict means the entry was not
// in from, e.g. a concurrent delivery already settled it.
func (r *LedgerRepo) CompareAndSwapStatus(ctx context.Context, reference string, from, to models.LedgerStatus, verified bool, at time.Time) (*models.LedgerEntry, error) {
	if err := models.CheckLedgerTransition(from, to); err != nil {
		return nil, err
	}
	e, err := scanLedgerEntry(r.pool.QueryRow(ctx, `
		UPDATE wallet_ledger SET status = $3, verified = $4, updated_at = $5
		WHERE reference = $1 AND status = $2
		RETURNING `+ledgerColumns,
		reference, from, to, verified, at))
	if isNoRows(err) {
		return nil, ErrConflict
	}
	return e, err
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ledgerColumns+` FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, clampLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
