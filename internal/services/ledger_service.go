package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// LedgerService is the write path of the wallet ledger. Entries are keyed by
// an external reference and only ever move pending -> success or
// pending -> failed.
type LedgerService struct {
	store LedgerStore
	log   *zap.Logger
	now   func() time.Time
}

func NewLedgerService(store LedgerStore, log *zap.Logger) *LedgerService {
	return &LedgerService{store: store, log: log, now: time.Now}
}

func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

type RecordInput struct {
	Reference string
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Type      string
	Channel   string
	Narration string
}

// Record inserts a pending entry unless one with the same reference exists.
// It returns the stored entry and whether this call created it.
func (s *LedgerService) Record(ctx context.Context, in RecordInput) (*models.LedgerEntry, bool, error) {
	if in.Reference == "" {
		return nil, false, apperrors.Validation("ledger reference is required")
	}
	if in.Amount.IsNegative() {
		return nil, false, apperrors.Validation("ledger amount must not be negative")
	}
	entry := &models.LedgerEntry{
		UserID:    in.UserID,
		Reference: in.Reference,
		Amount:    in.Amount,
		Status:    models.LedgerStatusPending,
		Type:      in.Type,
		Channel:   in.Channel,
		Narration: in.Narration,
		CreatedAt: s.now(),
	}
	stored, created, err := s.store.Insert(ctx, entry)
	if err != nil {
		return nil, false, storeErr(err, "record ledger entry")
	}
	if created {
		s.log.Info("ledger entry recorded",
			zap.String("reference", stored.Reference),
			zap.String("user_id", stored.UserID.String()),
			zap.String("amount", stored.Amount.String()),
		)
	}
	return stored, created, nil
}

// MarkSucceeded settles a pending entry. Settling an entry that is already
// successful is a no-op.
func (s *LedgerService) MarkSucceeded(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	return s.settle(ctx, reference, models.LedgerStatusSuccess, true)
}

// MarkFailed closes a pending entry without crediting it.
func (s *LedgerService) MarkFailed(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	return s.settle(ctx, reference, models.LedgerStatusFailed, false)
}

func (s *LedgerService) settle(ctx context.Context, reference string, to models.LedgerStatus, verified bool) (*models.LedgerEntry, error) {
	entry, err := s.store.CompareAndSwapStatus(ctx, reference, models.LedgerStatusPending, to, verified, s.now())
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, repositories.ErrConflict) {
		return nil, storeErr(err, "update ledger entry")
	}

	current, gerr := s.store.GetByReference(ctx, reference)
	if errors.Is(gerr, repositories.ErrNotFound) {
		return nil, apperrors.NotFound("ledger entry %s not found", reference)
	}
	if gerr != nil {
		return nil, storeErr(gerr, "load ledger entry")
	}
	if current.Status == to {
		return current, nil
	}
	return nil, apperrors.Conflict("ledger entry %s is already %s", reference, current.Status)
}

func (s *LedgerService) Get(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	e, err := s.store.GetByReference(ctx, reference)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound("ledger entry %s not found", reference)
	}
	if err != nil {
		return nil, storeErr(err, "load ledger entry")
	}
	return e, nil
}

func (s *LedgerService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	entries, err := s.store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeErr(err, "list ledger entries")
	}
	return entries, nil
}
