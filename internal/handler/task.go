package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/security"
	"github.com/aryan0dhankhar/grccore/internal/service"
)

// DecisionBody carries the comment or reason of a task decision
type DecisionBody struct {
	Comments string `json:"comments,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ReassignBody is the payload of POST /api/tasks/{id}/reassign
type ReassignBody struct {
	AssignedToUserID string `json:"assignedToUserId"`
}

// TaskHandler serves workflow approval tasks
type TaskHandler struct {
	tasks  *service.WorkflowService
	access *security.ResourceAuthorizer
	logger *slog.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *service.WorkflowService, access *security.ResourceAuthorizer, logger *slog.Logger) *TaskHandler {
	if access == nil {
		access = security.NewResourceAuthorizer(logger)
	}
	return &TaskHandler{tasks: tasks, access: access, logger: loggerOrDefault(logger)}
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, "task.create", err)
		return
	}
	tenantID, userID, _ := caller(r)
	task, err := h.tasks.CreateTask(r.Context(), tenantID, userID, req)
	if err != nil {
		writeServiceError(w, h.logger, "task.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// List handles GET /api/tasks. ?entityType=&entityId= returns an entity's
// history; ?assignee= (or ?assignee=me) returns a user's open tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	q := r.URL.Query()

	var (
		tasks []*domain.WorkflowTask
		err   error
	)
	switch assignee := q.Get("assignee"); {
	case assignee != "":
		if assignee == "me" {
			assignee = userID
		}
		tasks, err = h.tasks.ListForAssignee(r.Context(), tenantID, assignee)
	case q.Get("entityType") != "" && q.Get("entityId") != "":
		tasks, err = h.tasks.ListForEntity(r.Context(), tenantID, domain.EntityType(q.Get("entityType")), q.Get("entityId"))
	default:
		tasks, err = h.tasks.ListTasks(r.Context(), tenantID, domain.TaskFilter{
			EntityType: domain.EntityType(q.Get("entityType")),
			Status:     domain.TaskStatus(q.Get("status")),
		})
	}
	if err != nil {
		writeServiceError(w, h.logger, "task.list", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, _ := caller(r)
	task, err := h.tasks.GetTask(r.Context(), tenantID, r.PathValue("id"))
	h.respond(w, "task.get", task, err)
}

// Start handles POST /api/tasks/{id}/start
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	tenantID, userID, _ := caller(r)
	if err := h.authorizeAssignee(r, security.ActionWrite); err != nil {
		writeServiceError(w, h.logger, "task.start", err)
		return
	}
	task, err := h.tasks.StartTask(r.Context(), tenantID, userID, r.PathValue("id"))
	h.respond(w, "task.start", task, err)
}

// Complete handles POST /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "task.complete", err)
		return
	}
	tenantID, userID, _ := caller(r)
	if err := h.authorizeAssignee(r, security.ActionDecide); err != nil {
		writeServiceError(w, h.logger, "task.complete", err)
		return
	}
	task, err := h.tasks.CompleteTask(r.Context(), tenantID, userID, r.PathValue("id"), body.Comments)
	h.respond(w, "task.complete", task, err)
}

// Reject handles POST /api/tasks/{id}/reject
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "task.reject", err)
		return
	}
	tenantID, userID, _ := caller(r)
	if err := h.authorizeAssignee(r, security.ActionDecide); err != nil {
		writeServiceError(w, h.logger, "task.reject", err)
		return
	}
	task, err := h.tasks.RejectTask(r.Context(), tenantID, userID, r.PathValue("id"), body.Reason)
	h.respond(w, "task.reject", task, err)
}

// Cancel handles POST /api/tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "task.cancel", err)
		return
	}
	tenantID, userID, _ := caller(r)
	task, err := h.tasks.CancelTask(r.Context(), tenantID, userID, r.PathValue("id"), body.Reason)
	h.respond(w, "task.cancel", task, err)
}

// Reassign handles POST /api/tasks/{id}/reassign
func (h *TaskHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	var body ReassignBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, h.logger, "task.reassign", err)
		return
	}
	tenantID, userID, _ := caller(r)
	task, err := h.tasks.ReassignTask(r.Context(), tenantID, userID, r.PathValue("id"), body.AssignedToUserID)
	h.respond(w, "task.reassign", task, err)
}

// authorizeAssignee lets only the assignee (or an admin) act on an assigned task
func (h *TaskHandler) authorizeAssignee(r *http.Request, action security.Action) error {
	tenantID, userID, role := caller(r)
	id := r.PathValue("id")
	task, err := h.tasks.GetTask(r.Context(), tenantID, id)
	if err != nil {
		return err
	}
	return h.access.ValidateResourceAccess(userID, role, security.ResourcePermission{
		ResourceType: security.ResourceTask,
		ResourceID:   id,
		OwnerID:      task.AssignedToUserID,
		Action:       action,
	})
}

func (h *TaskHandler) respond(w http.ResponseWriter, op string, task *domain.WorkflowTask, err error) {
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
