// Package memory holds in-memory stores with the same contracts as the
// Postgres repositories. Each method runs under one lock, which gives it the
// atomicity of the single SQL statement it stands in for.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

type SwapStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*models.Swap
}

func NewSwapStore() *SwapStore {
	return &SwapStore{data: make(map[uuid.UUID]*models.Swap)}
}

func (s *SwapStore) Create(_ context.Context, swap *models.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if swap.ID == uuid.Nil {
		swap.ID = uuid.New()
	}
	if _, exists := s.data[swap.ID]; exists {
		return repositories.ErrDuplicateKey
	}
	swap.UpdatedAt = swap.CreatedAt
	cp := *swap
	s.data[swap.ID] = &cp
	return nil
}

func (s *SwapStore) GetByID(_ context.Context, id uuid.UUID) (*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, ok := s.data[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *swap
	return &cp, nil
}

func (s *SwapStore) List(_ context.Context, f repositories.SwapFilter) ([]models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Swap{}
	for _, swap := range s.data {
		if f.FromUserID != nil && swap.FromUserID != *f.FromUserID {
			continue
		}
		if f.ToUserID != nil && swap.ToUserID != *f.ToUserID {
			continue
		}
		if f.Status != nil && swap.Status != *f.Status {
			continue
		}
		out = append(out, *swap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if f.Offset >= len(out) {
		return []models.Swap{}, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SwapStore) CompareAndSwapStatus(_ context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (*models.Swap, error) {
	if err := models.CheckSwapTransition(from, to); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.data[id]
	if !ok || swap.Status != from {
		return nil, repositories.ErrConflict
	}
	swap.Status = to
	swap.UpdatedAt = at
	cp := *swap
	return &cp, nil
}

func (s *SwapStore) CompleteLatestAccepted(_ context.Context, productID uuid.UUID, reference string, at time.Time) (*models.Swap, bool, error) {
	if err := models.CheckSwapTransition(models.SwapStatusAccepted, models.SwapStatusCompleted); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Swap
	taken := false
	for _, swap := range s.data {
		if swap.SettledReference != nil && *swap.SettledReference == reference {
			if swap.RequestedProductID != productID {
				taken = true
				continue
			}
			cp := *swap
			return &cp, false, nil
		}
		if swap.RequestedProductID != productID || swap.Status != models.SwapStatusAccepted {
			continue
		}
		if latest == nil || swap.UpdatedAt.After(latest.UpdatedAt) ||
			(swap.UpdatedAt.Equal(latest.UpdatedAt) && swap.CreatedAt.After(latest.CreatedAt)) {
			latest = swap
		}
	}
	if latest == nil {
		return nil, false, repositories.ErrNotFound
	}
	if taken {
		return nil, false, repositories.ErrConflict
	}
	ref := reference
	latest.Status = models.SwapStatusCompleted
	latest.SettledReference = &ref
	latest.UpdatedAt = at
	cp := *latest
	return &cp, true, nil
}

func (s *SwapStore) ExpirePending(_ context.Context, cutoff, at time.Time) ([]models.Swap, error) {
	if err := models.CheckSwapTransition(models.SwapStatusPending, models.SwapStatusExpired); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.Swap
	for _, swap := range s.data {
		if swap.Status == models.SwapStatusPending && !swap.CreatedAt.After(cutoff) {
			swap.Status = models.SwapStatusExpired
			swap.UpdatedAt = at
			expired = append(expired, *swap)
		}
	}
	return expired, nil
}

func (s *SwapStore) PurgeTerminal(_ context.Context, statuses []models.SwapStatus, cutoff time.Time) (int64, error) {
	purge := make(map[models.SwapStatus]bool, len(statuses))
	for _, st := range statuses {
		if !st.IsTerminal() {
			return 0, fmt.Errorf("refusing to purge non-terminal status %q", st)
		}
		purge[st] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, swap := range s.data {
		if purge[swap.Status] && !swap.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored swaps.
func (s *SwapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
