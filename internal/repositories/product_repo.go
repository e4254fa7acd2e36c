package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swap-market/backend/internal/models"
)

const productColumns = `id, owner_id, title, price, is_in_escrow, payment_reference, buyer_id, paid_at, created_at, updated_at`

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Price, &p.IsInEscrow, &p.PaymentReference,
		&p.BuyerID, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *models.Product) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO products (owner_id, title, price)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, p.OwnerID, p.Title, p.Price).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	return p, err
}

// MarkInEscrow records a settled payment on a product. The write only lands
// when the product has no payment reference yet or already carries this one,
// so two different references cannot both claim it. Re-applying the same
// reference keeps the original buyer and paid_at.
//
// Returns ErrNotFound for a missing product and ErrConflict when another
// reference holds it.
func (r *ProductRepo) MarkInEscrow(ctx context.Context, id uuid.UUID, reference string, buyerID uuid.UUID, at time.Time) (*models.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products SET
			is_in_escrow = true,
			payment_reference = $2,
			buyer_id = COALESCE(buyer_id, $3),
			paid_at = COALESCE(paid_at, $4),
			updated_at = $4
		WHERE id = $1 AND (payment_reference IS NULL OR payment_reference = $2)
		RETURNING `+productColumns,
		id, reference, buyerID, at))
	if err == nil {
		return p, nil
	}
	if isDuplicateKeyError(err) {
		// reference already settled on a different product
		return nil, ErrConflict
	}
	if !isNoRows(err) {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}
