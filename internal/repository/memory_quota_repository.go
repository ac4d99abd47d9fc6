package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

type quotaKey struct {
	tenantID  string
	quotaType domain.QuotaType
}

// MemoryQuotaUsageRepository implements domain.QuotaUsageRepository with a
// single mutex guarding every counter.
type MemoryQuotaUsageRepository struct {
	mu     sync.Mutex
	usages map[quotaKey]*domain.QuotaUsage
}

// NewMemoryQuotaUsageRepository creates an empty repository.
func NewMemoryQuotaUsageRepository() *MemoryQuotaUsageRepository {
	return &MemoryQuotaUsageRepository{usages: make(map[quotaKey]*domain.QuotaUsage)}
}

// Get returns the counter, or a zero usage when none has been recorded.
func (r *MemoryQuotaUsageRepository) Get(_ context.Context, tenantID string, quotaType domain.QuotaType) (*domain.QuotaUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.usages[quotaKey{tenantID, quotaType}]; ok {
		c := *u
		return &c, nil
	}
	return &domain.QuotaUsage{TenantID: tenantID, QuotaType: quotaType}, nil
}

func (r *MemoryQuotaUsageRepository) List(_ context.Context, tenantID string) ([]*domain.QuotaUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.QuotaUsage
	for k, u := range r.usages {
		if k.tenantID == tenantID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuotaType < out[j].QuotaType })
	return out, nil
}

func (r *MemoryQuotaUsageRepository) Add(_ context.Context, tenantID string, quotaType domain.QuotaType, delta float64, now time.Time) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := quotaKey{tenantID, quotaType}
	u, ok := r.usages[k]
	if !ok {
		u = &domain.QuotaUsage{TenantID: tenantID, QuotaType: quotaType}
		r.usages[k] = u
	}
	before := u.CurrentUsage
	u.CurrentUsage = max(before+delta, 0)
	u.LastUpdated = now
	return before, u.CurrentUsage, nil
}

func (r *MemoryQuotaUsageRepository) Reset(_ context.Context, tenantID string, quotaType domain.QuotaType, next *time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := quotaKey{tenantID, quotaType}
	u, ok := r.usages[k]
	if !ok {
		u = &domain.QuotaUsage{TenantID: tenantID, QuotaType: quotaType}
		r.usages[k] = u
	}
	u.CurrentUsage = 0
	u.LastUpdated = now
	u.ResetDate = next
	return nil
}

func (r *MemoryQuotaUsageRepository) DueForReset(_ context.Context, now time.Time) ([]*domain.QuotaUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.QuotaUsage
	for _, u := range r.usages {
		if u.ResetDate != nil && !u.ResetDate.After(now) {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}
