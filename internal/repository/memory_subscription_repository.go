package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// MemorySubscriptionRepository implements domain.SubscriptionRepository.
// The active-slot check and the insert happen under one lock.
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*domain.TenantSubscription
}

// NewMemorySubscriptionRepository creates an empty repository.
func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[string]*domain.TenantSubscription)}
}

func cloneSubscription(s *domain.TenantSubscription) *domain.TenantSubscription {
	c := *s
	return &c
}

func (r *MemorySubscriptionRepository) Create(_ context.Context, s *domain.TenantSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if s.HoldsActiveSlot() {
		for _, existing := range r.subs {
			if existing.TenantID == s.TenantID && existing.HoldsActiveSlot() {
				return &domain.DuplicateActiveSubscriptionError{TenantID: s.TenantID, SubscriptionID: existing.ID}
			}
		}
	}
	s.Version = 1
	r.subs[s.ID] = cloneSubscription(s)
	return nil
}

func (r *MemorySubscriptionRepository) GetByID(_ context.Context, id string) (*domain.TenantSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", id)
	}
	return cloneSubscription(s), nil
}

func (r *MemorySubscriptionRepository) FindActive(_ context.Context, tenantID string) (*domain.TenantSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.TenantID == tenantID && s.HoldsActiveSlot() {
			return cloneSubscription(s), nil
		}
	}
	return nil, domain.NewNotFoundError("active subscription", tenantID)
}

// ListByTenant returns the tenant's subscriptions, newest first.
func (r *MemorySubscriptionRepository) ListByTenant(_ context.Context, tenantID string) ([]*domain.TenantSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.TenantSubscription
	for _, s := range r.subs {
		if s.TenantID == tenantID {
			out = append(out, cloneSubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (r *MemorySubscriptionRepository) Update(_ context.Context, s *domain.TenantSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.subs[s.ID]
	if !ok {
		return domain.NewNotFoundError("subscription", s.ID)
	}
	if existing.Version != s.Version {
		return domain.ErrConcurrentModification
	}
	if s.HoldsActiveSlot() && !existing.HoldsActiveSlot() {
		for id, other := range r.subs {
			if id != s.ID && other.TenantID == s.TenantID && other.HoldsActiveSlot() {
				return &domain.DuplicateActiveSubscriptionError{TenantID: s.TenantID, SubscriptionID: other.ID}
			}
		}
	}
	s.Version++
	r.subs[s.ID] = cloneSubscription(s)
	return nil
}

// Replace applies old and inserts next under one lock.
func (r *MemorySubscriptionRepository) Replace(_ context.Context, old, next *domain.TenantSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.subs[old.ID]
	if !ok {
		return domain.NewNotFoundError("subscription", old.ID)
	}
	if existing.Version != old.Version {
		return domain.ErrConcurrentModification
	}
	if _, ok := r.subs[next.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if next.HoldsActiveSlot() {
		for id, other := range r.subs {
			if id == old.ID {
				if old.HoldsActiveSlot() {
					return &domain.DuplicateActiveSubscriptionError{TenantID: next.TenantID, SubscriptionID: old.ID}
				}
				continue
			}
			if other.TenantID == next.TenantID && other.HoldsActiveSlot() {
				return &domain.DuplicateActiveSubscriptionError{TenantID: next.TenantID, SubscriptionID: other.ID}
			}
		}
	}
	old.Version++
	next.Version = 1
	r.subs[old.ID] = cloneSubscription(old)
	r.subs[next.ID] = cloneSubscription(next)
	return nil
}
