package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/payments"
	"github.com/swap-market/backend/internal/repositories"
	"github.com/swap-market/backend/internal/repositories/memory"
	"go.uber.org/zap"
)

const testPaystackSecret = "sk_test_paystack"

type sentNotification struct {
	UserID uuid.UUID
	Event  string
	SwapID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, _ := payload["swap_id"].(string)
	n.sent = append(n.sent, sentNotification{UserID: userID, Event: event, SwapID: id})
	return n.err
}

func (n *recordingNotifier) events(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Event)
		}
	}
	return out
}

type fixedQuota struct {
	allow bool
	err   error
}

func (q fixedQuota) Allow(context.Context, uuid.UUID) (bool, error) { return q.allow, q.err }

// countingQuota allows everything and counts the calls.
type countingQuota struct {
	mu    sync.Mutex
	calls int
}

func (q *countingQuota) Allow(context.Context, uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return true, nil
}

func (q *countingQuota) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// harness wires every service onto the in-memory stores with one clock.
type harness struct {
	clock    *testClock
	users    *memory.UserStore
	swaps    *memory.SwapStore
	products *memory.ProductStore
	ledger   *memory.LedgerStore
	keys     *memory.IdempotencyStore
	audit    *memory.AuditStore
	notifier *recordingNotifier

	engine     *SwapService
	ledgerSvc  *LedgerService
	reconciler *EscrowReconciler
	sweeper    *SweepService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		users:    memory.NewUserStore(),
		swaps:    memory.NewSwapStore(),
		products: memory.NewProductStore(),
		ledger:   memory.NewLedgerStore(),
		keys:     memory.NewIdempotencyStore(),
		audit:    memory.NewAuditStore(),
		notifier: &recordingNotifier{},
	}
	log := zap.NewNop()
	h.engine = NewSwapService(h.swaps, h.products, h.audit, h.notifier, fixedQuota{allow: true}, log).WithClock(h.clock.Now)
	h.ledgerSvc = NewLedgerService(h.ledger, log).WithClock(h.clock.Now)
	h.reconciler = NewEscrowReconciler(
		map[string]string{payments.GatewayPaystack: testPaystackSecret},
		h.keys, h.ledgerSvc, h.users, h.products, h.engine, h.audit, log,
	).WithClock(h.clock.Now)
	h.sweeper = NewSweepService(h.swaps, h.engine, log).WithClock(h.clock.Now)
	return h
}

// account registers id as a user; registering twice is a no-op.
func (h *harness) account(t *testing.T, id uuid.UUID) uuid.UUID {
	t.Helper()
	err := h.users.Create(context.Background(), &models.User{ID: id, Email: id.String() + "@example.com"})
	if !errors.Is(err, repositories.ErrDuplicateKey) {
		require.NoError(t, err)
	}
	return id
}

func (h *harness) product(t *testing.T, owner uuid.UUID) *models.Product {
	t.Helper()
	h.account(t, owner)
	p := &models.Product{OwnerID: owner, Title: "item", Price: decimal.NewFromInt(250)}
	require.NoError(t, h.products.Create(context.Background(), p))
	return p
}

// offer creates a pending swap from a to b, each with a fresh product.
func (h *harness) offer(t *testing.T, a, b uuid.UUID) (*models.Swap, *models.Product, *models.Product) {
	t.Helper()
	p1, p2 := h.product(t, a), h.product(t, b)
	swap, err := h.engine.Create(context.Background(), a, CreateSwapInput{
		OfferingProductID:  p1.ID,
		RequestedProductID: p2.ID,
	})
	require.NoError(t, err)
	return swap, p1, p2
}

func chargeSuccessBody(reference string, productID, buyerID uuid.UUID) []byte {
	return []byte(`{"event":"charge.success","data":{"reference":"` + reference +
		`","amount":500000,"currency":"NGN","channel":"card","metadata":{"productId":"` + productID.String() +
		`","buyerId":"` + buyerID.String() + `"},"customer":{"email":"buyer@example.com"}}}`)
}
