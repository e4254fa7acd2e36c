package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/idempotency"
	"github.com/swap-market/backend/internal/metrics"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/payments"
	"github.com/swap-market/backend/internal/repositories"
	"go.uber.org/zap"
)

type CallbackOutcome string

const (
	// CallbackApplied: escrow settled by this delivery.
	CallbackApplied CallbackOutcome = "applied"
	// CallbackDuplicate: already applied by an earlier delivery.
	CallbackDuplicate CallbackOutcome = "duplicate"
	// CallbackIgnored: event type does not settle escrow.
	CallbackIgnored CallbackOutcome = "ignored"
	// CallbackRejected: the product is held by another reference. Retrying
	// cannot change that, so the delivery is acknowledged.
	CallbackRejected CallbackOutcome = "rejected"
)

type CallbackResult struct {
	Outcome   CallbackOutcome `json:"outcome"`
	Reference string          `json:"reference,omitempty"`
	SwapID    *uuid.UUID      `json:"swap_id,omitempty"`
}

// EscrowReconciler applies payment gateway callbacks to products, swaps and
// the wallet ledger. Every write it makes is conditional or insert-if-absent,
// so a redelivered callback converges on the same state.
type EscrowReconciler struct {
	secrets  map[string]string
	guards   map[string]*idempotency.Guard
	ledger   *LedgerService
	users    UserStore
	products ProductStore
	swaps    *SwapService
	audit    AuditStore
	log      *zap.Logger
	now      func() time.Time
}

// NewEscrowReconciler takes one shared secret per accepted gateway name.
func NewEscrowReconciler(
	secrets map[string]string,
	keys idempotency.Store,
	ledger *LedgerService,
	users UserStore,
	products ProductStore,
	swaps *SwapService,
	audit AuditStore,
	log *zap.Logger,
) *EscrowReconciler {
	guards := make(map[string]*idempotency.Guard, len(secrets))
	for gateway := range secrets {
		guards[gateway] = idempotency.NewGuard(keys, "payment:"+gateway)
	}
	return &EscrowReconciler{
		secrets:  secrets,
		guards:   guards,
		ledger:   ledger,
		users:    users,
		products: products,
		swaps:    swaps,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

func (r *EscrowReconciler) WithClock(now func() time.Time) *EscrowReconciler {
	r.now = now
	for _, g := range r.guards {
		g.WithClock(now)
	}
	return r
}

// Supports reports whether gateway is configured.
func (r *EscrowReconciler) Supports(gateway string) bool {
	_, ok := r.secrets[gateway]
	return ok
}

func (r *EscrowReconciler) HandleCallback(ctx context.Context, gateway string, body []byte, signature string) (*CallbackResult, error) {
	res, err := r.handle(ctx, gateway, body, signature)
	result := "error"
	switch {
	case err == nil:
		result = string(res.Outcome)
	case apperrors.Is(err, apperrors.KindInvalidSignature):
		result = "invalid_signature"
	case apperrors.Is(err, apperrors.KindMalformedCallback):
		result = "malformed"
	}
	metrics.WebhookCallbacksTotal.WithLabelValues(gateway, result).Inc()
	return res, err
}

func (r *EscrowReconciler) handle(ctx context.Context, gateway string, body []byte, signature string) (*CallbackResult, error) {
	secret, ok := r.secrets[gateway]
	if !ok {
		return nil, apperrors.NotFound("unknown payment gateway %q", gateway)
	}
	log := r.log.With(zap.String("gateway", gateway))

	// 1. Signature over the raw body
	if err := payments.VerifySignature(secret, body, signature); err != nil {
		log.Warn("rejected callback with bad signature", zap.Error(err))
		return nil, apperrors.InvalidSignature("invalid signature")
	}

	// 2. Event type
	cb, err := payments.ParseCallback(body)
	if err != nil {
		log.Error("malformed callback body", zap.Error(err))
		return nil, apperrors.MalformedCallback("malformed callback: %v", err)
	}
	if !cb.IsSettlement() {
		log.Info("ignoring callback event", zap.String("event", cb.Event))
		return &CallbackResult{Outcome: CallbackIgnored, Reference: cb.Data.Reference}, nil
	}

	// 3. Required fields
	st, err := cb.Settlement()
	if err != nil {
		log.Error("callback is missing settlement fields",
			zap.String("reference", cb.Data.Reference), zap.Error(err))
		return nil, apperrors.MalformedCallback("malformed callback: %v", err)
	}
	log = log.With(zap.String("reference", st.Reference), zap.String("product_id", st.ProductID.String()))

	// Ledger entries belong to a known account
	if _, err := r.users.GetByID(ctx, st.BuyerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Warn("callback references unknown buyer", zap.String("buyer_id", st.BuyerID.String()))
			return nil, apperrors.NotFound("buyer not found")
		}
		return nil, apperrors.TransientStore(err, "load buyer")
	}

	// 4. Idempotency key, then the ledger entry
	guard := r.guards[gateway]
	outcome, err := guard.Begin(ctx, st.Reference)
	if err != nil {
		return nil, apperrors.TransientStore(err, "claim callback")
	}
	if outcome == idempotency.OutcomeDone {
		log.Info("duplicate callback, already applied")
		return &CallbackResult{Outcome: CallbackDuplicate, Reference: st.Reference}, nil
	}

	entry, _, err := r.ledger.Record(ctx, RecordInput{
		Reference: st.Reference,
		UserID:    st.BuyerID,
		Amount:    st.Amount,
		Type:      models.LedgerTypeEscrowPayment,
		Channel:   st.Channel,
		Narration: fmt.Sprintf("escrow payment for product %s", st.ProductID),
	})
	if err != nil {
		return nil, err
	}
	switch entry.Status {
	case models.LedgerStatusSuccess:
		if err := guard.Complete(ctx, st.Reference); err != nil {
			return nil, apperrors.TransientStore(err, "complete callback")
		}
		log.Info("duplicate callback, ledger already settled")
		return &CallbackResult{Outcome: CallbackDuplicate, Reference: st.Reference}, nil
	case models.LedgerStatusFailed:
		if err := guard.Complete(ctx, st.Reference); err != nil {
			return nil, apperrors.TransientStore(err, "complete callback")
		}
		return &CallbackResult{Outcome: CallbackRejected, Reference: st.Reference}, nil
	}

	// 5. Escrow on the product
	product, err := r.products.MarkInEscrow(ctx, st.ProductID, st.Reference, st.BuyerID, r.now())
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		log.Warn("callback references unknown product")
		return nil, apperrors.NotFound("product not found")
	case errors.Is(err, repositories.ErrConflict):
		log.Warn("product already held by another payment reference")
		if _, ferr := r.ledger.MarkFailed(ctx, st.Reference); ferr != nil {
			return nil, ferr
		}
		if err := guard.Complete(ctx, st.Reference); err != nil {
			return nil, apperrors.TransientStore(err, "complete callback")
		}
		return &CallbackResult{Outcome: CallbackRejected, Reference: st.Reference}, nil
	case err != nil:
		return nil, apperrors.TransientStore(err, "mark product in escrow")
	}

	// 6. The accepted swap waiting on this product, if any
	swap, err := r.swaps.CompleteForProduct(ctx, product.ID, st.Reference)
	if err != nil {
		return nil, err
	}

	// 7. Settle the ledger and close the key
	if _, err := r.ledger.MarkSucceeded(ctx, st.Reference); err != nil {
		return nil, err
	}
	if err := guard.Complete(ctx, st.Reference); err != nil {
		return nil, apperrors.TransientStore(err, "complete callback")
	}

	meta := map[string]any{
		"reference": st.Reference,
		"buyer_id":  st.BuyerID.String(),
		"amount":    st.Amount.String(),
		"gateway":   gateway,
	}
	result := &CallbackResult{Outcome: CallbackApplied, Reference: st.Reference}
	if swap != nil {
		result.SwapID = &swap.ID
		meta["swap_id"] = swap.ID.String()
	}
	if err := r.audit.Log(ctx, models.AuditLog{
		ActorType:  models.ActorTypeGateway,
		Action:     "escrow_settled",
		EntityType: "product",
		EntityID:   &product.ID,
		Meta:       meta,
		CreatedAt:  r.now(),
	}); err != nil {
		log.Warn("failed to write audit log", zap.Error(err))
	}

	log.Info("escrow settled", zap.Bool("swap_completed", swap != nil))
	return result, nil
}
