package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/models"
	"github.com/swap-market/backend/internal/repositories"
)

type ProductStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*models.Product
	refs map[string]uuid.UUID // payment_reference -> product, mirrors the unique index
}

func NewProductStore() *ProductStore {
	return &ProductStore{
		data: make(map[uuid.UUID]*models.Product),
		refs: make(map[string]uuid.UUID),
	}
}

func (s *ProductStore) Create(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, exists := s.data[p.ID]; exists {
		return repositories.ErrDuplicateKey
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.data[p.ID] = &cp
	return nil
}

func (s *ProductStore) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *ProductStore) MarkInEscrow(_ context.Context, id uuid.UUID, reference string, buyerID uuid.UUID, at time.Time) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if p.PaymentReference != nil && *p.PaymentReference != reference {
		return nil, repositories.ErrConflict
	}
	if owner, taken := s.refs[reference]; taken && owner != id {
		return nil, repositories.ErrConflict
	}

	ref := reference
	p.IsInEscrow = true
	p.PaymentReference = &ref
	if p.BuyerID == nil {
		b := buyerID
		p.BuyerID = &b
	}
	if p.PaidAt == nil {
		t := at
		p.PaidAt = &t
	}
	p.UpdatedAt = at
	s.refs[reference] = id

	cp := *p
	return &cp, nil
}
