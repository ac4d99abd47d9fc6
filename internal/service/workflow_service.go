package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
)

// WorkflowService runs approval tasks through the task lifecycle. Approved,
// Rejected and Cancelled tasks are final.
type WorkflowService struct {
	tasks  domain.WorkflowTaskRepository
	events domain.EventPublisher
	logger *slog.Logger
	clock  Clock
}

// NewWorkflowService creates a workflow service
func NewWorkflowService(tasks domain.WorkflowTaskRepository, events domain.EventPublisher, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		tasks:  tasks,
		events: publisherOrNop(events),
		logger: loggerOrDefault(logger),
		clock:  systemClock,
	}
}

// WithClock replaces the time source
func (s *WorkflowService) WithClock(clock Clock) *WorkflowService {
	s.clock = clock
	return s
}

// CreateTaskRequest holds the fields of a new task.
type CreateTaskRequest struct {
	EntityType       domain.EntityType      `json:"entityType"`
	EntityID         string                 `json:"entityId"`
	Title            domain.LocalizedString `json:"title"`
	AssignedToUserID string                 `json:"assignedToUserId"`
	DueDate          *time.Time             `json:"dueDate"`
	Metadata         map[string]string      `json:"metadata"`
}

// CreateTask opens a Pending task for an entity.
func (s *WorkflowService) CreateTask(ctx context.Context, tenantID, userID string, req CreateTaskRequest) (task *domain.WorkflowTask, err error) {
	ctx, done := startOp(ctx, "workflow.create", tenantID)
	defer func() { done(err) }()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	now := s.clock()
	if req.DueDate != nil && req.DueDate.Before(now) {
		return nil, domain.NewValidationError("dueDate", "must not be in the past")
	}
	task = &domain.WorkflowTask{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		EntityType:       req.EntityType,
		EntityID:         strings.TrimSpace(req.EntityID),
		Title:            req.Title,
		AssignedToUserID: req.AssignedToUserID,
		Status:           domain.TaskPending,
		DueDate:          req.DueDate,
		Metadata:         req.Metadata,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.Stamp(userID, now)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	metrics.ObserveTaskTransition(string(domain.TaskPending), "ok")
	s.logger.Info("workflow task created",
		slog.String("tenant_id", tenantID),
		slog.String("task_id", task.ID),
		slog.String("entity_type", string(task.EntityType)),
		slog.String("entity_id", task.EntityID),
	)
	s.publish(ctx, domain.EventTaskCreated, userID, task)
	return task, nil
}

// StartTask moves a Pending task to InProgress.
func (s *WorkflowService) StartTask(ctx context.Context, tenantID, userID, id string) (*domain.WorkflowTask, error) {
	return s.transition(ctx, tenantID, userID, id, domain.TaskInProgress, domain.EventTaskStarted, nil)
}

// CompleteTask approves a task and records who approved it.
func (s *WorkflowService) CompleteTask(ctx context.Context, tenantID, userID, id, comments string) (*domain.WorkflowTask, error) {
	return s.transition(ctx, tenantID, userID, id, domain.TaskApproved, domain.EventTaskCompleted, func(t *domain.WorkflowTask, now time.Time) error {
		s.finish(t, userID, comments, now)
		return nil
	})
}

// RejectTask rejects a task. A reason is required.
func (s *WorkflowService) RejectTask(ctx context.Context, tenantID, userID, id, reason string) (*domain.WorkflowTask, error) {
	return s.transition(ctx, tenantID, userID, id, domain.TaskRejected, domain.EventTaskRejected, func(t *domain.WorkflowTask, now time.Time) error {
		if strings.TrimSpace(reason) == "" {
			return domain.NewValidationError("reason", "is required")
		}
		s.finish(t, userID, reason, now)
		return nil
	})
}

// CancelTask withdraws a task.
func (s *WorkflowService) CancelTask(ctx context.Context, tenantID, userID, id, reason string) (*domain.WorkflowTask, error) {
	return s.transition(ctx, tenantID, userID, id, domain.TaskCancelled, domain.EventTaskCancelled, func(t *domain.WorkflowTask, now time.Time) error {
		s.finish(t, userID, reason, now)
		return nil
	})
}

// ReassignTask hands an open task to another user without changing status.
func (s *WorkflowService) ReassignTask(ctx context.Context, tenantID, userID, id, assigneeID string) (task *domain.WorkflowTask, err error) {
	ctx, done := startOp(ctx, "workflow.reassign", tenantID)
	defer func() { done(err) }()

	if strings.TrimSpace(assigneeID) == "" {
		return nil, domain.NewValidationError("assignedToUserId", "is required")
	}
	task, err = s.tasks.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if domain.TaskLifecycle.IsTerminal(task.Status) {
		return nil, &domain.TransitionError{Machine: "workflow task", From: string(task.Status), To: "reassigned", Terminal: true}
	}
	task.AssignedToUserID = assigneeID
	task.Touch(userID, s.clock())
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventTaskReassigned, userID, task)
	return task, nil
}

// GetTask returns a task of the tenant
func (s *WorkflowService) GetTask(ctx context.Context, tenantID, id string) (*domain.WorkflowTask, error) {
	return s.tasks.GetByID(ctx, tenantID, id)
}

// ListTasks returns the tenant's tasks matching filter
func (s *WorkflowService) ListTasks(ctx context.Context, tenantID string, filter domain.TaskFilter) ([]*domain.WorkflowTask, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, tenantID, filter)
}

// ListForEntity returns the approval history of one entity.
func (s *WorkflowService) ListForEntity(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) ([]*domain.WorkflowTask, error) {
	if _, err := domain.ParseEntityType(string(entityType)); err != nil {
		return nil, err
	}
	return s.ListTasks(ctx, tenantID, domain.TaskFilter{EntityType: entityType, EntityID: entityID})
}

// ListForAssignee returns the open tasks assigned to a user.
func (s *WorkflowService) ListForAssignee(ctx context.Context, tenantID, assigneeID string) ([]*domain.WorkflowTask, error) {
	tasks, err := s.ListTasks(ctx, tenantID, domain.TaskFilter{AssigneeID: assigneeID})
	if err != nil {
		return nil, err
	}
	open := make([]*domain.WorkflowTask, 0, len(tasks))
	for _, t := range tasks {
		if !domain.TaskLifecycle.IsTerminal(t.Status) {
			open = append(open, t)
		}
	}
	return open, nil
}

func (s *WorkflowService) finish(t *domain.WorkflowTask, userID, comments string, now time.Time) {
	t.CompletedByUserID = userID
	t.CompletedAt = &now
	if comments != "" {
		t.Comments = comments
	}
}

func (s *WorkflowService) transition(
	ctx context.Context,
	tenantID, userID, id string,
	to domain.TaskStatus,
	event string,
	mutate func(*domain.WorkflowTask, time.Time) error,
) (task *domain.WorkflowTask, err error) {
	ctx, done := startOp(ctx, "workflow.transition", tenantID)
	defer func() { done(err) }()

	task, err = s.tasks.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := domain.TaskLifecycle.Transition(task.Status, to); err != nil {
		metrics.ObserveTaskTransition(string(to), "rejected")
		return nil, err
	}
	now := s.clock()
	if mutate != nil {
		if err := mutate(task, now); err != nil {
			metrics.ObserveTaskTransition(string(to), "rejected")
			return nil, err
		}
	}
	from := task.Status
	task.Status = to
	task.Touch(userID, now)
	if err := s.tasks.Update(ctx, task); err != nil {
		metrics.ObserveTaskTransition(string(to), "error")
		return nil, err
	}
	metrics.ObserveTaskTransition(string(to), "ok")
	s.logger.Info("workflow task transitioned",
		slog.String("tenant_id", tenantID),
		slog.String("task_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	s.publish(ctx, event, userID, task)
	return task, nil
}

func (s *WorkflowService) publish(ctx context.Context, name, userID string, t *domain.WorkflowTask) {
	s.events.Publish(ctx, domain.TaskEvent{
		EventHeader: domain.NewEventHeader(name, t.TenantID, userID, s.clock()),
		TaskID:      t.ID,
		EntityType:  t.EntityType,
		EntityID:    t.EntityID,
		Status:      t.Status,
		AssigneeID:  t.AssignedToUserID,
		Comments:    t.Comments,
	})
}
