package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/events"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/rbac"
	"github.com/swap-market/backend/internal/repositories"
	"go.uber.org/zap"
)

const MaxSwapMessageLength = 500

type SwapService struct {
	swaps    SwapStore
	products ProductStore
	audit    AuditStore
	notifier Notifier
	quota    OfferQuota
	log      *zap.Logger
	now      func() time.Time
}

func NewSwapService(
	swaps SwapStore,
	products ProductStore,
	audit AuditStore,
	notifier Notifier,
	quota OfferQuota,
	log *zap.Logger,
) *SwapService {
	return &SwapService{
		swaps:    swaps,
		products: products,
		audit:    audit,
		notifier: notifier,
		quota:    quota,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *SwapService) WithClock(now func() time.Time) *SwapService {
	s.now = now
	return s
}

type CreateSwapInput struct {
	OfferingProductID  uuid.UUID
	RequestedProductID uuid.UUID
	Message            *string
	ExtraPayment       decimal.Decimal
}

func (s *SwapService) Create(ctx context.Context, fromUser uuid.UUID, in CreateSwapInput) (*models.Swap, error) {
	// 1. Input shape
	if in.OfferingProductID == in.RequestedProductID {
		return nil, apperrors.Validation("offering and requested product must differ")
	}
	if in.ExtraPayment.IsNegative() {
		return nil, apperrors.Validation("extraPayment must not be negative")
	}
	if in.Message != nil && utf8.RuneCountInString(*in.Message) > MaxSwapMessageLength {
		return nil, apperrors.Validation("message must be at most %d characters", MaxSwapMessageLength)
	}

	// 2. Both products must exist; ownership decides the counterparty
	offering, err := s.loadProduct(ctx, in.OfferingProductID, "offering")
	if err != nil {
		return nil, err
	}
	requested, err := s.loadProduct(ctx, in.RequestedProductID, "requested")
	if err != nil {
		return nil, err
	}
	if offering.OwnerID != fromUser {
		return nil, apperrors.Validation("offering product does not belong to you")
	}
	if requested.OwnerID == fromUser {
		return nil, apperrors.Validation("cannot request your own product")
	}
	if requested.IsInEscrow {
		return nil, apperrors.Conflict("requested product is already in escrow")
	}

	// 3. Дневной лимит предложений: считаем только валидные офферы.
	// Если Redis недоступен, пропускаем.
	if s.quota != nil {
		ok, err := s.quota.Allow(ctx, fromUser)
		if err != nil {
			s.log.Warn("offer quota check failed, allowing", zap.String("user_id", fromUser.String()), zap.Error(err))
		} else if !ok {
			return nil, apperrors.RateLimited("daily offer limit reached")
		}
	}

	swap := &models.Swap{
		FromUserID:         fromUser,
		ToUserID:           requested.OwnerID,
		OfferingProductID:  offering.ID,
		RequestedProductID: requested.ID,
		Message:            in.Message,
		ExtraPayment:       in.ExtraPayment,
		Status:             models.SwapStatusPending,
		CreatedAt:          s.now(),
	}
	if err := s.swaps.Create(ctx, swap); err != nil {
		return nil, storeErr(err, "create swap")
	}

	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: &fromUser,
		ActorType:   models.ActorTypeUser,
		Action:      "swap_created",
		EntityType:  entitySwap,
		EntityID:    &swap.ID,
		Meta: map[string]any{
			"to_user_id":    swap.ToUserID.String(),
			"extra_payment": swap.ExtraPayment.String(),
		},
		CreatedAt: swap.CreatedAt,
	})
	s.notify(ctx, swap.ToUserID, events.SwapReceived, swap)

	s.log.Info("swap created",
		zap.String("swap_id", swap.ID.String()),
		zap.String("from_user_id", fromUser.String()),
		zap.String("to_user_id", swap.ToUserID.String()),
	)
	return swap, nil
}

func (s *SwapService) Accept(ctx context.Context, swapID, actor uuid.UUID) (*models.Swap, error) {
	return s.respond(ctx, swapID, actor, models.SwapStatusAccepted, rbac.PermAcceptSwap, events.SwapAccepted)
}

func (s *SwapService) Reject(ctx context.Context, swapID, actor uuid.UUID) (*models.Swap, error) {
	return s.respond(ctx, swapID, actor, models.SwapStatusRejected, rbac.PermRejectSwap, events.SwapRejected)
}

// respond moves a pending swap to accepted or rejected on behalf of its
// recipient.
func (s *SwapService) respond(ctx context.Context, swapID, actor uuid.UUID, to models.SwapStatus, perm, event string) (*models.Swap, error) {
	swap, err := s.load(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(swap, actor, perm) {
		return nil, apperrors.Forbidden("only the recipient can respond to this swap")
	}
	if swap.Status != models.SwapStatusPending {
		return nil, apperrors.Conflict("swap is already %s", swap.Status)
	}

	updated, err := s.transition(ctx, swap.ID, models.SwapStatusPending, to, &actor, models.ActorTypeUser)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.FromUserID, event, updated)
	return updated, nil
}

// transition is the single entry point for per-swap status changes. The
// write is conditional on the swap still being in from.
func (s *SwapService) transition(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, actorID *uuid.UUID, actorType string) (*models.Swap, error) {
	if err := models.CheckSwapTransition(from, to); err != nil {
		return nil, apperrors.Conflict("%s", err.Error())
	}
	updated, err := s.swaps.CompareAndSwapStatus(ctx, id, from, to, s.now())
	if errors.Is(err, repositories.ErrConflict) {
		metrics.SwapConflictsTotal.WithLabelValues(string(to)).Inc()
		return nil, apperrors.Conflict("swap is no longer %s", from)
	}
	if err != nil {
		return nil, storeErr(err, "update swap status")
	}
	s.recordTransition(ctx, updated, from, actorID, actorType)
	return updated, nil
}

// recordTransition writes the audit row and metric for a change that
// already landed.
func (s *SwapService) recordTransition(ctx context.Context, swap *models.Swap, from models.SwapStatus, actorID *uuid.UUID, actorType string) {
	metrics.SwapTransitionsTotal.WithLabelValues(string(from), string(swap.Status)).Inc()
	s.writeAudit(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      "swap_status_" + string(from) + "_to_" + string(swap.Status),
		EntityType:  entitySwap,
		EntityID:    &swap.ID,
		Meta:        map[string]any{"old_status": string(from), "new_status": string(swap.Status)},
		CreatedAt:   swap.UpdatedAt,
	})
	s.log.Info("swap status changed",
		zap.String("swap_id", swap.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(swap.Status)),
		zap.String("actor_type", actorType),
	)
}

// CompleteForProduct completes the most recently accepted swap that
// requested productID, once escrow on that product has settled under
// reference. A swap already completed by reference is returned again without
// side effects. It returns nil when no accepted swap is waiting on the product.
func (s *SwapService) CompleteForProduct(ctx context.Context, productID uuid.UUID, reference string) (*models.Swap, error) {
	swap, completed, err := s.swaps.CompleteLatestAccepted(ctx, productID, reference, s.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "complete swap")
	}
	if !completed {
		s.log.Info("swap already completed by this payment",
			zap.String("swap_id", swap.ID.String()), zap.String("reference", reference))
		return swap, nil
	}
	s.recordTransition(ctx, swap, models.SwapStatusAccepted, nil, models.ActorTypeGateway)
	s.notify(ctx, swap.FromUserID, events.SwapCompleted, swap)
	s.notify(ctx, swap.ToUserID, events.SwapCompleted, swap)
	return swap, nil
}

// Get returns a swap to one of its parties.
func (s *SwapService) Get(ctx context.Context, swapID, actor uuid.UUID) (*models.Swap, error) {
	swap, err := s.load(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(swap, actor, rbac.PermViewSwap) {
		return nil, apperrors.Forbidden("you are not a party to this swap")
	}
	return swap, nil
}

type ListSwapsInput struct {
	Status *models.SwapStatus
	Limit  int
	Offset int
}

func (s *SwapService) ListSent(ctx context.Context, user uuid.UUID, in ListSwapsInput) ([]models.Swap, error) {
	swaps, err := s.swaps.List(ctx, repositories.SwapFilter{FromUserID: &user, Status: in.Status, Limit: in.Limit, Offset: in.Offset})
	if err != nil {
		return nil, storeErr(err, "list sent swaps")
	}
	return swaps, nil
}

func (s *SwapService) ListReceived(ctx context.Context, user uuid.UUID, in ListSwapsInput) ([]models.Swap, error) {
	swaps, err := s.swaps.List(ctx, repositories.SwapFilter{ToUserID: &user, Status: in.Status, Limit: in.Limit, Offset: in.Offset})
	if err != nil {
		return nil, storeErr(err, "list received swaps")
	}
	return swaps, nil
}

// Events returns the audit trail of a swap, newest first.
func (s *SwapService) Events(ctx context.Context, swapID, actor uuid.UUID) ([]models.AuditLog, error) {
	swap, err := s.load(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(swap, actor, rbac.PermViewEvents) {
		return nil, apperrors.Forbidden("you are not a party to this swap")
	}
	logs, err := s.audit.GetByEntity(ctx, entitySwap, swapID, 100, 0)
	if err != nil {
		return nil, storeErr(err, "load swap events")
	}
	return logs, nil
}

func (s *SwapService) load(ctx context.Context, id uuid.UUID) (*models.Swap, error) {
	swap, err := s.swaps.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound("swap not found")
	}
	if err != nil {
		return nil, storeErr(err, "load swap")
	}
	return swap, nil
}

func (s *SwapService) loadProduct(ctx context.Context, id uuid.UUID, role string) (*models.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound("%s product not found", role)
	}
	if err != nil {
		return nil, storeErr(err, "load product")
	}
	return p, nil
}

func (s *SwapService) writeAudit(ctx context.Context, entry models.AuditLog) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *SwapService) notify(ctx context.Context, userID uuid.UUID, event string, swap *models.Swap) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, event, swapPayload(swap)); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("event", event),
			zap.String("user_id", userID.String()),
			zap.String("swap_id", swap.ID.String()),
			zap.Error(err),
		)
	}
}

func swapPayload(swap *models.Swap) map[string]any {
	return map[string]any{
		"swap_id":              swap.ID.String(),
		"status":               string(swap.Status),
		"from_user_id":         swap.FromUserID.String(),
		"to_user_id":           swap.ToUserID.String(),
		"offering_product_id":  swap.OfferingProductID.String(),
		"requested_product_id": swap.RequestedProductID.String(),
	}
}
