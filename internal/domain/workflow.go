package domain

import (
	"context"
	"strings"
	"time"
)

// TaskStatus is the state of an approval step.
type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "InProgress"
	TaskApproved   TaskStatus = "Approved"
	TaskRejected   TaskStatus = "Rejected"
	TaskCancelled  TaskStatus = "Cancelled"
)

// TaskLifecycle is shared by every entity that routes through approvals.
var TaskLifecycle = NewStateMachine("workflow task", map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskApproved, TaskRejected, TaskCancelled},
	TaskInProgress: {TaskApproved, TaskRejected, TaskCancelled},
}, TaskApproved, TaskRejected, TaskCancelled)

// EntityType names the aggregate a task belongs to.
type EntityType string

const (
	EntityRisk       EntityType = "Risk"
	EntityAudit      EntityType = "Audit"
	EntityActionPlan EntityType = "ActionPlan"
	EntityPolicy     EntityType = "Policy"
)

// ParseEntityType validates s.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityRisk, EntityAudit, EntityActionPlan, EntityPolicy:
		return EntityType(s), nil
	}
	return "", NewValidationError("entityType", "unknown entity type %q", s)
}

// MetadataPrefix namespaces task metadata keys.
const MetadataPrefix = "grc."

// WorkflowTask is a single approval step.
type WorkflowTask struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenantId"`
	EntityType        EntityType        `json:"entityType"`
	EntityID          string            `json:"entityId"`
	Title             LocalizedString   `json:"title"`
	AssignedToUserID  string            `json:"assignedToUserId,omitempty"`
	Status            TaskStatus        `json:"status"`
	DueDate           *time.Time        `json:"dueDate,omitempty"`
	CompletedByUserID string            `json:"completedByUserId,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	Comments          string            `json:"comments,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Version           int64             `json:"version"`
	AuditMetadata
}

// Validate checks a new task.
func (t *WorkflowTask) Validate() error {
	if _, err := ParseEntityType(string(t.EntityType)); err != nil {
		return err
	}
	if strings.TrimSpace(t.EntityID) == "" {
		return NewValidationError("entityId", "is required")
	}
	if strings.TrimSpace(t.Title.En) == "" {
		return NewValidationError("title.en", "is required")
	}
	for k := range t.Metadata {
		if !strings.HasPrefix(k, MetadataPrefix) {
			return NewValidationError("metadata", "key %q must start with %q", k, MetadataPrefix)
		}
	}
	return nil
}

// TaskFilter narrows List. Zero values match everything.
type TaskFilter struct {
	EntityType EntityType
	EntityID   string
	AssigneeID string
	Status     TaskStatus
}

// Matches reports whether t passes the filter.
func (f TaskFilter) Matches(t *WorkflowTask) bool {
	switch {
	case f.EntityType != "" && t.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && t.EntityID != f.EntityID:
		return false
	case f.AssigneeID != "" && t.AssignedToUserID != f.AssigneeID:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	}
	return true
}

// WorkflowTaskRepository persists tasks.
type WorkflowTaskRepository interface {
	Create(ctx context.Context, t *WorkflowTask) error
	GetByID(ctx context.Context, tenantID, id string) (*WorkflowTask, error)
	List(ctx context.Context, tenantID string, filter TaskFilter) ([]*WorkflowTask, error)
	// Update performs a compare-and-swap on Version and increments it.
	Update(ctx context.Context, t *WorkflowTask) error
}
