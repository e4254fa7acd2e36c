package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

// The interfaces below are satisfied by both the pgx repositories and the
// in-memory stores in repositories/memory.

type SwapStore interface {
	Create(ctx context.Context, s *models.Swap) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Swap, error)
	List(ctx context.Context, f repositories.SwapFilter) ([]models.Swap, error)
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (*models.Swap, error)
	CompleteLatestAccepted(ctx context.Context, productID uuid.UUID, reference string, at time.Time) (*models.Swap, bool, error)
	ExpirePending(ctx context.Context, cutoff, at time.Time) ([]models.Swap, error)
	PurgeTerminal(ctx context.Context, statuses []models.SwapStatus, cutoff time.Time) (int64, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ProductStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	MarkInEscrow(ctx context.Context, id uuid.UUID, reference string, buyerID uuid.UUID, at time.Time) (*models.Product, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, e *models.LedgerEntry) (*models.LedgerEntry, bool, error)
	GetByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
	CompareAndSwapStatus(ctx context.Context, reference string, from, to models.LedgerStatus, verified bool, at time.Time) (*models.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Notifier dispatches a user notification. Callers treat it as
// fire-and-forget: errors are logged, never returned to the client.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error
}

// OfferQuota decides whether a user may submit another offer.
type OfferQuota interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}

const entitySwap = "swap"

// storeErr maps an unexpected repository error onto the transient kind.
// Errors that already carry a kind pass through.
func storeErr(err error, msg string) error {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.TransientStore(err, msg)
}
