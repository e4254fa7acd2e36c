package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSwap(status models.SwapStatus, product uuid.UUID, created time.Time) *models.Swap {
	return &models.Swap{
		FromUserID:         uuid.New(),
		ToUserID:           uuid.New(),
		OfferingProductID:  uuid.New(),
		RequestedProductID: product,
		ExtraPayment:       decimal.Zero,
		Status:             status,
		CreatedAt:          created,
	}
}

func TestSwapStore_CompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	swap := newSwap(models.SwapStatusPending, uuid.New(), t0)
	require.NoError(t, s.Create(ctx, swap))

	got, err := s.CompareAndSwapStatus(ctx, swap.ID, models.SwapStatusPending, models.SwapStatusAccepted, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusAccepted, got.Status)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)

	_, err = s.CompareAndSwapStatus(ctx, swap.ID, models.SwapStatusPending, models.SwapStatusRejected, t0)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	_, err = s.CompareAndSwapStatus(ctx, swap.ID, models.SwapStatusCompleted, models.SwapStatusPending, t0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repositories.ErrConflict)
}

func TestSwapStore_ConcurrentCASHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	swap := newSwap(models.SwapStatusPending, uuid.New(), t0)
	require.NoError(t, s.Create(ctx, swap))

	targets := []models.SwapStatus{models.SwapStatusAccepted, models.SwapStatusRejected, models.SwapStatusExpired}
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(to models.SwapStatus) {
			defer wg.Done()
			if _, err := s.CompareAndSwapStatus(ctx, swap.ID, models.SwapStatusPending, to, t0); err == nil {
				wins.Add(1)
			}
		}(targets[i%len(targets)])
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSwapStore_ExpirePending(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	cutoff := t0.Add(-7 * 24 * time.Hour)

	old := newSwap(models.SwapStatusPending, uuid.New(), cutoff.Add(-time.Hour))
	edge := newSwap(models.SwapStatusPending, uuid.New(), cutoff)
	fresh := newSwap(models.SwapStatusPending, uuid.New(), cutoff.Add(time.Hour))
	acceptedOld := newSwap(models.SwapStatusAccepted, uuid.New(), cutoff.Add(-time.Hour))
	for _, sw := range []*models.Swap{old, edge, fresh, acceptedOld} {
		require.NoError(t, s.Create(ctx, sw))
	}

	expired, err := s.ExpirePending(ctx, cutoff, t0)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	for id, want := range map[uuid.UUID]models.SwapStatus{
		old.ID:         models.SwapStatusExpired,
		edge.ID:        models.SwapStatusExpired,
		fresh.ID:       models.SwapStatusPending,
		acceptedOld.ID: models.SwapStatusAccepted,
	} {
		got, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	again, err := s.ExpirePending(ctx, cutoff, t0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSwapStore_CompleteLatestAccepted(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	product := uuid.New()

	older := newSwap(models.SwapStatusPending, product, t0)
	newer := newSwap(models.SwapStatusPending, product, t0)
	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.Create(ctx, newer))
	_, err := s.CompareAndSwapStatus(ctx, older.ID, models.SwapStatusPending, models.SwapStatusAccepted, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.CompareAndSwapStatus(ctx, newer.ID, models.SwapStatusPending, models.SwapStatusAccepted, t0.Add(2*time.Minute))
	require.NoError(t, err)

	done, completed, err := s.CompleteLatestAccepted(ctx, product, "R1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, newer.ID, done.ID)
	assert.Equal(t, models.SwapStatusCompleted, done.Status)
	require.NotNil(t, done.SettledReference)
	assert.Equal(t, "R1", *done.SettledReference)

	again, completed, err := s.CompleteLatestAccepted(ctx, product, "R1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, newer.ID, again.ID)
	assert.Equal(t, t0.Add(time.Hour), again.UpdatedAt)

	stillAccepted, err := s.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusAccepted, stillAccepted.Status)

	_, _, err = s.CompleteLatestAccepted(ctx, uuid.New(), "R2", t0)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	other := uuid.New()
	waiting := newSwap(models.SwapStatusPending, other, t0)
	require.NoError(t, s.Create(ctx, waiting))
	_, err = s.CompareAndSwapStatus(ctx, waiting.ID, models.SwapStatusPending, models.SwapStatusAccepted, t0.Add(time.Minute))
	require.NoError(t, err)
	_, _, err = s.CompleteLatestAccepted(ctx, other, "R1", t0.Add(time.Hour))
	assert.ErrorIs(t, err, repositories.ErrConflict, "a reference settles one swap")
}

func TestSwapStore_PurgeTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	cutoff := t0.Add(-72 * time.Hour)

	mk := func(to models.SwapStatus, updated time.Time) *models.Swap {
		sw := newSwap(models.SwapStatusPending, uuid.New(), updated.Add(-time.Hour))
		require.NoError(t, s.Create(ctx, sw))
		if to == models.SwapStatusCompleted {
			_, err := s.CompareAndSwapStatus(ctx, sw.ID, models.SwapStatusPending, models.SwapStatusAccepted, updated)
			require.NoError(t, err)
			_, err = s.CompareAndSwapStatus(ctx, sw.ID, models.SwapStatusAccepted, models.SwapStatusCompleted, updated)
			require.NoError(t, err)
			return sw
		}
		_, err := s.CompareAndSwapStatus(ctx, sw.ID, models.SwapStatusPending, to, updated)
		require.NoError(t, err)
		return sw
	}

	mk(models.SwapStatusExpired, cutoff.Add(-time.Minute))
	mk(models.SwapStatusRejected, cutoff)
	keepRecent := mk(models.SwapStatusRejected, cutoff.Add(time.Minute))
	keepCompleted := mk(models.SwapStatusCompleted, cutoff.Add(-24*time.Hour))

	n, err := s.PurgeTerminal(ctx, []models.SwapStatus{models.SwapStatusExpired, models.SwapStatusRejected}, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, s.Len())

	_, err = s.GetByID(ctx, keepRecent.ID)
	assert.NoError(t, err)
	_, err = s.GetByID(ctx, keepCompleted.ID)
	assert.NoError(t, err)

	_, err = s.PurgeTerminal(ctx, []models.SwapStatus{models.SwapStatusPending}, cutoff)
	assert.Error(t, err)
}

func TestSwapStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewSwapStore()
	sender := uuid.New()
	for i := 0; i < 3; i++ {
		sw := newSwap(models.SwapStatusPending, uuid.New(), t0.Add(time.Duration(i)*time.Minute))
		sw.FromUserID = sender
		require.NoError(t, s.Create(ctx, sw))
	}
	require.NoError(t, s.Create(ctx, newSwap(models.SwapStatusPending, uuid.New(), t0)))

	got, err := s.List(ctx, repositories.SwapFilter{FromUserID: &sender})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
	assert.True(t, got[1].CreatedAt.After(got[2].CreatedAt))

	page, err := s.List(ctx, repositories.SwapFilter{FromUserID: &sender, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestProductStore_MarkInEscrow(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	p := &models.Product{OwnerID: uuid.New(), Title: "bike", Price: decimal.NewFromInt(100)}
	require.NoError(t, s.Create(ctx, p))
	buyer := uuid.New()

	got, err := s.MarkInEscrow(ctx, p.ID, "ref-1", buyer, t0)
	require.NoError(t, err)
	assert.True(t, got.IsInEscrow)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, "ref-1", *got.PaymentReference)

	again, err := s.MarkInEscrow(ctx, p.ID, "ref-1", uuid.New(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, buyer, *again.BuyerID)
	assert.Equal(t, t0, *again.PaidAt)

	_, err = s.MarkInEscrow(ctx, p.ID, "ref-2", buyer, t0)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	other := &models.Product{OwnerID: uuid.New(), Title: "lamp"}
	require.NoError(t, s.Create(ctx, other))
	_, err = s.MarkInEscrow(ctx, other.ID, "ref-1", buyer, t0)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	_, err = s.MarkInEscrow(ctx, uuid.New(), "ref-3", buyer, t0)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestLedgerStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()
	e := &models.LedgerEntry{
		UserID:    uuid.New(),
		Reference: "ref-1",
		Amount:    decimal.RequireFromString("50.00"),
		Status:    models.LedgerStatusPending,
		Type:      models.LedgerTypeEscrowPayment,
		CreatedAt: t0,
	}

	first, created, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, s.Count("ref-1"))
}

func TestLedgerStore_FinalStatusesAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()
	_, _, err := s.Insert(ctx, &models.LedgerEntry{UserID: uuid.New(), Reference: "r", Status: models.LedgerStatusPending, CreatedAt: t0})
	require.NoError(t, err)

	got, err := s.CompareAndSwapStatus(ctx, "r", models.LedgerStatusPending, models.LedgerStatusSuccess, true, t0)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	_, err = s.CompareAndSwapStatus(ctx, "r", models.LedgerStatusPending, models.LedgerStatusFailed, false, t0)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	_, err = s.CompareAndSwapStatus(ctx, "r", models.LedgerStatusSuccess, models.LedgerStatusFailed, false, t0)
	assert.Error(t, err)
}

func TestIdempotencyStore_ClaimAndComplete(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore()

	k, inserted, err := s.Claim(ctx, "payment:paystack", "ref", t0)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.IdempotencyStateInFlight, k.State)

	k, inserted, err = s.Claim(ctx, "payment:paystack", "ref", t0)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 2, k.Hits)

	require.NoError(t, s.Complete(ctx, "payment:paystack", "ref", t0))
	k, _, err = s.Claim(ctx, "payment:paystack", "ref", t0)
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyStateCompleted, k.State)

	assert.ErrorIs(t, s.Complete(ctx, "other", "ref", t0), repositories.ErrNotFound)
}

func TestUserStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	known := uuid.New()

	require.NoError(t, s.Create(ctx, &models.User{ID: known, Email: "a@example.com"}))
	assert.ErrorIs(t, s.Create(ctx, &models.User{ID: known, Email: "b@example.com"}), repositories.ErrDuplicateKey)

	got, err := s.GetByID(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.False(t, got.CreatedAt.IsZero())

	generated := &models.User{Email: "c@example.com"}
	require.NoError(t, s.Create(ctx, generated))
	assert.NotEqual(t, uuid.Nil, generated.ID)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
