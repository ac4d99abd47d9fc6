package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// MemoryProductRepository implements domain.ProductRepository in process.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

// NewMemoryProductRepository creates an empty repository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*domain.Product)}
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Features = append([]domain.ProductFeature(nil), p.Features...)
	c.Quotas = append([]domain.ProductQuota(nil), p.Quotas...)
	c.Plans = append([]domain.PricingPlan(nil), p.Plans...)
	return &c
}

// Create stores p. Codes are unique.
func (r *MemoryProductRepository) Create(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, existing := range r.products {
		if existing.Code == p.Code {
			return domain.ErrAlreadyExists
		}
	}
	p.Version = 1
	r.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *MemoryProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product", id)
	}
	return cloneProduct(p), nil
}

func (r *MemoryProductRepository) GetByCode(_ context.Context, code string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.Code == code {
			return cloneProduct(p), nil
		}
	}
	return nil, domain.NewNotFoundError("product", code)
}

// List returns products ordered by display order then code.
func (r *MemoryProductRepository) List(_ context.Context, activeOnly bool) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (r *MemoryProductRepository) Update(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.products[p.ID]
	if !ok {
		return domain.NewNotFoundError("product", p.ID)
	}
	if existing.Version != p.Version {
		return domain.ErrConcurrentModification
	}
	p.Version++
	r.products[p.ID] = cloneProduct(p)
	return nil
}
