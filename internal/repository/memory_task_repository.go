package repository

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// MemoryTaskRepository implements domain.WorkflowTaskRepository.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*domain.WorkflowTask
}

// NewMemoryTaskRepository creates an empty repository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*domain.WorkflowTask)}
}

func cloneTask(t *domain.WorkflowTask) *domain.WorkflowTask {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

func (r *MemoryTaskRepository) Create(_ context.Context, t *domain.WorkflowTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t.Version = 1
	r.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *MemoryTaskRepository) GetByID(_ context.Context, tenantID, id string) (*domain.WorkflowTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok || t.TenantID != tenantID {
		return nil, domain.NewNotFoundError("task", id)
	}
	return cloneTask(t), nil
}

// List returns matching tasks, oldest first.
func (r *MemoryTaskRepository) List(_ context.Context, tenantID string, filter domain.TaskFilter) ([]*domain.WorkflowTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WorkflowTask
	for _, t := range r.tasks {
		if t.TenantID == tenantID && filter.Matches(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryTaskRepository) Update(_ context.Context, t *domain.WorkflowTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[t.ID]
	if !ok || existing.TenantID != t.TenantID {
		return domain.NewNotFoundError("task", t.ID)
	}
	if existing.Version != t.Version {
		return domain.ErrConcurrentModification
	}
	t.Version++
	r.tasks[t.ID] = cloneTask(t)
	return nil
}
