package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swap-market/backend/internal/apperrors"
	"github.com/swap-market/backend/internal/events"
	"github.com/swap-market/backend/internal/models"
	"go.uber.org/zap"
)

func TestCreateSwap(t *testing.T) {
	h := newHarness(t)
	a, b := uuid.New(), uuid.New()

	swap, p1, p2 := h.offer(t, a, b)
	assert.Equal(t, models.SwapStatusPending, swap.Status)
	assert.Equal(t, a, swap.FromUserID)
	assert.Equal(t, b, swap.ToUserID)
	assert.Equal(t, p1.ID, swap.OfferingProductID)
	assert.Equal(t, p2.ID, swap.RequestedProductID)
	assert.True(t, swap.ExtraPayment.IsZero())
	assert.Equal(t, h.clock.Now(), swap.CreatedAt)

	assert.Equal(t, []string{events.SwapReceived}, h.notifier.events(b))
	assert.Equal(t, []string{"swap_created"}, h.audit.Actions())
}

func TestCreateSwap_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	mine, mine2, theirs := h.product(t, a), h.product(t, a), h.product(t, b)
	long := strings.Repeat("x", MaxSwapMessageLength+1)
	exact := strings.Repeat("é", MaxSwapMessageLength)

	escrowed := h.product(t, b)
	_, err := h.products.MarkInEscrow(ctx, escrowed.ID, "ref-x", uuid.New(), h.clock.Now())
	require.NoError(t, err)
	quota := &countingQuota{}
	h.engine.quota = quota

	tests := []struct {
		name string
		in   CreateSwapInput
		kind apperrors.Kind
	}{
		{"offering missing", CreateSwapInput{OfferingProductID: uuid.New(), RequestedProductID: theirs.ID}, apperrors.KindNotFound},
		{"requested missing", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: uuid.New()}, apperrors.KindNotFound},
		{"same product", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: mine.ID}, apperrors.KindValidation},
		{"offering not owned", CreateSwapInput{OfferingProductID: theirs.ID, RequestedProductID: mine.ID}, apperrors.KindValidation},
		{"requesting own product", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: mine2.ID}, apperrors.KindValidation},
		{"negative extra payment", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: theirs.ID, ExtraPayment: decimal.NewFromInt(-1)}, apperrors.KindValidation},
		{"message too long", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: theirs.ID, Message: &long}, apperrors.KindValidation},
		{"requested in escrow", CreateSwapInput{OfferingProductID: mine.ID, RequestedProductID: escrowed.ID}, apperrors.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Create(ctx, a, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
	assert.Equal(t, 0, h.swaps.Len())
	assert.Zero(t, quota.count(), "rejected offers do not use up the daily quota")

	swap, err := h.engine.Create(ctx, a, CreateSwapInput{
		OfferingProductID:  mine.ID,
		RequestedProductID: theirs.ID,
		Message:            &exact,
		ExtraPayment:       decimal.RequireFromString("10.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "10.5", swap.ExtraPayment.String())
	assert.Equal(t, 1, quota.count())
}

func TestCreateSwap_Quota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	p1, p2 := h.product(t, a), h.product(t, b)
	in := CreateSwapInput{OfferingProductID: p1.ID, RequestedProductID: p2.ID}

	h.engine.quota = fixedQuota{allow: false}
	_, err := h.engine.Create(ctx, a, in)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimited))
	assert.Equal(t, 0, h.swaps.Len())

	// an invalid offer reports the validation error, not the exhausted quota
	_, err = h.engine.Create(ctx, a, CreateSwapInput{OfferingProductID: p1.ID, RequestedProductID: uuid.New()})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	// quota backend down: the offer goes through
	h.engine.quota = fixedQuota{err: errors.New("redis: connection refused")}
	_, err = h.engine.Create(ctx, a, in)
	assert.NoError(t, err)
}

func TestCreateSwap_NotifyFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("publish failed")
	swap, _, _ := h.offer(t, uuid.New(), uuid.New())
	assert.Equal(t, models.SwapStatusPending, swap.Status)
}

func TestAcceptReject(t *testing.T) {
	tests := []struct {
		name  string
		act   func(s *SwapService, ctx context.Context, id, actor uuid.UUID) (*models.Swap, error)
		want  models.SwapStatus
		event string
	}{
		{"accept", (*SwapService).Accept, models.SwapStatusAccepted, events.SwapAccepted},
		{"reject", (*SwapService).Reject, models.SwapStatusRejected, events.SwapRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			a, b := uuid.New(), uuid.New()
			swap, _, _ := h.offer(t, a, b)

			_, err := tt.act(h.engine, ctx, uuid.New(), b)
			assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

			_, err = tt.act(h.engine, ctx, swap.ID, a)
			assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

			got, err := tt.act(h.engine, ctx, swap.ID, b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, []string{tt.event}, h.notifier.events(a))

			_, err = tt.act(h.engine, ctx, swap.ID, b)
			assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
			_, err = h.engine.Reject(ctx, swap.ID, b)
			assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

			stored, err := h.swaps.GetByID(ctx, swap.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
		})
	}
}

func TestGetSwap_OnlyParties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	swap, _, _ := h.offer(t, a, b)

	for _, u := range []uuid.UUID{a, b} {
		got, err := h.engine.Get(ctx, swap.ID, u)
		require.NoError(t, err)
		assert.Equal(t, swap.ID, got.ID)
	}
	_, err := h.engine.Get(ctx, swap.ID, uuid.New())
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	_, err = h.engine.Get(ctx, uuid.New(), a)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestListSentAndReceived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	h.offer(t, a, b)
	h.clock.Advance(1)
	h.offer(t, a, c)
	h.clock.Advance(1)
	h.offer(t, c, a)

	sent, err := h.engine.ListSent(ctx, a, ListSwapsInput{})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, c, sent[0].ToUserID, "newest first")

	received, err := h.engine.ListReceived(ctx, a, ListSwapsInput{})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, c, received[0].FromUserID)

	accepted := models.SwapStatusAccepted
	none, err := h.engine.ListSent(ctx, a, ListSwapsInput{Status: &accepted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSwapEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	swap, _, _ := h.offer(t, a, b)
	h.clock.Advance(1)
	_, err := h.engine.Accept(ctx, swap.ID, b)
	require.NoError(t, err)

	logs, err := h.engine.Events(ctx, swap.ID, a)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "swap_status_pending_to_accepted", logs[0].Action)
	assert.Equal(t, "swap_created", logs[1].Action)

	_, err = h.engine.Events(ctx, swap.ID, uuid.New())
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

// A swap whose TTL just elapsed is both accepted by its recipient and swept
// by the scheduler. Exactly one wins; the other sees a conflict.
func TestAcceptRacesExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t)
		ctx := context.Background()
		a, b := uuid.New(), uuid.New()
		swap, _, _ := h.offer(t, a, b)
		h.clock.Advance(DefaultSwapTTL)

		var (
			wg        sync.WaitGroup
			acceptErr error
			expired   int64
			sweepErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = h.engine.Accept(ctx, swap.ID, b)
		}()
		go func() {
			defer wg.Done()
			expired, sweepErr = h.sweeper.ExpirePending(ctx, DefaultSwapTTL)
		}()
		wg.Wait()
		require.NoError(t, sweepErr)

		stored, err := h.swaps.GetByID(ctx, swap.ID)
		require.NoError(t, err)
		if acceptErr == nil {
			assert.Equal(t, int64(0), expired)
			assert.Equal(t, models.SwapStatusAccepted, stored.Status)
		} else {
			assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(acceptErr))
			assert.Equal(t, int64(1), expired)
			assert.Equal(t, models.SwapStatusExpired, stored.Status)
		}
	}
}

func TestConcurrentAcceptAndRejectHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	swap, _, _ := h.offer(t, a, b)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = h.engine.Accept(ctx, swap.ID, b)
			} else {
				_, errs[i] = h.engine.Reject(ctx, swap.ID, b)
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	}
	assert.Equal(t, 1, wins)
}

func TestNewSwapServiceWithoutNotifier(t *testing.T) {
	h := newHarness(t)
	svc := NewSwapService(h.swaps, h.products, h.audit, nil, nil, zap.NewNop())
	a, b := uuid.New(), uuid.New()
	p1, p2 := h.product(t, a), h.product(t, b)
	_, err := svc.Create(context.Background(), a, CreateSwapInput{OfferingProductID: p1.ID, RequestedProductID: p2.ID})
	assert.NoError(t, err)
}
