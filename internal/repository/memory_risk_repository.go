package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// MemoryRiskRepository implements domain.RiskRepository.
type MemoryRiskRepository struct {
	mu    sync.RWMutex
	risks map[string]*domain.Risk
}

// NewMemoryRiskRepository creates an empty repository.
func NewMemoryRiskRepository() *MemoryRiskRepository {
	return &MemoryRiskRepository{risks: make(map[string]*domain.Risk)}
}

func cloneRisk(r *domain.Risk) *domain.Risk {
	c := *r
	return &c
}

func (r *MemoryRiskRepository) Create(_ context.Context, risk *domain.Risk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.risks {
		if existing.TenantID == risk.TenantID && existing.Code == risk.Code {
			return domain.ErrAlreadyExists
		}
	}
	risk.Version = 1
	r.risks[risk.ID] = cloneRisk(risk)
	return nil
}

func (r *MemoryRiskRepository) GetByID(_ context.Context, tenantID, id string) (*domain.Risk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	risk, ok := r.risks[id]
	if !ok || risk.TenantID != tenantID {
		return nil, domain.NewNotFoundError("risk", id)
	}
	return cloneRisk(risk), nil
}

func (r *MemoryRiskRepository) List(_ context.Context, tenantID string, filter domain.RiskFilter) ([]*domain.Risk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Risk
	for _, risk := range r.risks {
		if risk.TenantID == tenantID && filter.Matches(risk) {
			out = append(out, cloneRisk(risk))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *MemoryRiskRepository) Update(_ context.Context, risk *domain.Risk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.risks[risk.ID]
	if !ok || existing.TenantID != risk.TenantID {
		return domain.NewNotFoundError("risk", risk.ID)
	}
	if existing.Version != risk.Version {
		return domain.ErrConcurrentModification
	}
	risk.Version++
	r.risks[risk.ID] = cloneRisk(risk)
	return nil
}
