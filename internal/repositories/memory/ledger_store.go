package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*models.LedgerEntry // keyed by reference
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{data: make(map[string]*models.LedgerEntry)}
}

func (s *LedgerStore) Insert(_ context.Context, e *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[e.Reference]; ok {
		cp := *existing
		return &cp, false, nil
	}
	stored := *e
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.data[e.Reference] = &stored

	cp := stored
	return &cp, true, nil
}

func (s *LedgerStore) GetByReference(_ context.Context, reference string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[reference]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *LedgerStore) CompareAndSwapStatus(_ context.Context, reference string, from, to models.LedgerStatus, verified bool, at time.Time) (*models.LedgerEntry, error) {
	if err := models.CheckLedgerTransition(from, to); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[reference]
	if !ok || e.Status != from {
		return nil, repositories.ErrConflict
	}
	e.Status = to
	e.Verified = verified
	e.UpdatedAt = at
	cp := *e
	return &cp, nil
}

func (s *LedgerStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.LedgerEntry{}
	for _, e := range s.data {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset >= len(out) {
		return []models.LedgerEntry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns how many entries carry reference (0 or 1 by construction).
func (s *LedgerStore) Count(reference string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[reference]; ok {
		return 1
	}
	return 0
}
