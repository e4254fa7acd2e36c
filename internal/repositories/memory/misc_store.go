package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

type IdempotencyStore struct {
	mu   sync.Mutex
	data map[string]*models.IdempotencyKey
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{data: make(map[string]*models.IdempotencyKey)}
}

func (s *IdempotencyStore) Claim(_ context.Context, scope, key string, at time.Time) (*models.IdempotencyKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := scope + "|" + key
	if k, ok := s.data[id]; ok {
		k.Hits++
		cp := *k
		return &cp, false, nil
	}
	k := &models.IdempotencyKey{
		Scope:       scope,
		Key:         key,
		State:       models.IdempotencyStateInFlight,
		Hits:        1,
		FirstSeenAt: at,
	}
	s.data[id] = k
	cp := *k
	return &cp, true, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, scope, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.data[scope+"|"+key]
	if !ok {
		return repositories.ErrNotFound
	}
	k.State = models.IdempotencyStateCompleted
	if k.CompletedAt == nil {
		t := at
		k.CompletedAt = &t
	}
	return nil
}

type AuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.New()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditStore) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	out := []models.AuditLog{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []models.AuditLog{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Actions returns the recorded action names in insertion order.
func (s *AuditStore) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

type UserStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{data: make(map[uuid.UUID]*models.User)}
}

// Create keeps a caller-supplied ID so tests can register known accounts.
func (s *UserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, exists := s.data[u.ID]; exists {
		return repositories.ErrDuplicateKey
	}
	u.CreatedAt = time.Now()
	cp := *u
	s.data[u.ID] = &cp
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.data[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
