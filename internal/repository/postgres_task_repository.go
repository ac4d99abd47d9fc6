package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// PostgresTaskRepository implements domain.WorkflowTaskRepository
type PostgresTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTaskRepository creates a new workflow task repository
func NewPostgresTaskRepository(db *sql.DB, logger *slog.Logger) *PostgresTaskRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskRepository{db: db, logger: logger}
}

const taskColumns = `id, tenant_id, entity_type, entity_id, title_en, title_ar, assigned_to_user_id,
	status, due_date, completed_by_user_id, completed_at, comments, metadata, version,
	created_at, created_by`

// Create inserts a task
func (r *PostgresTaskRepository) Create(ctx context.Context, t *domain.WorkflowTask) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode task metadata: %w", err)
	}
	query := `
		INSERT INTO workflow_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)
	`
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.TenantID, string(t.EntityType), t.EntityID, t.Title.En, t.Title.Ar,
		nullString(t.AssignedToUserID), string(t.Status), nullTime(t.DueDate),
		nullString(t.CompletedByUserID), nullTime(t.CompletedAt), t.Comments, metadata,
		t.CreatedAt, t.CreatedBy,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return fmt.Errorf("task %s: %w", t.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	t.Version = 1
	return nil
}

// GetByID retrieves a tenant's task
func (r *PostgresTaskRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks WHERE tenant_id = $1 AND id = $2`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("task", id)
	}
	return t, err
}

// List returns a tenant's tasks matching filter, oldest first
func (r *PostgresTaskRepository) List(ctx context.Context, tenantID string, filter domain.TaskFilter) ([]*domain.WorkflowTask, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("entity_type", string(filter.EntityType))
	add("entity_id", filter.EntityID)
	add("assigned_to_user_id", filter.AssigneeID)
	add("status", string(filter.Status))

	query := `SELECT ` + taskColumns + ` FROM workflow_tasks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update writes the task guarded by version
func (r *PostgresTaskRepository) Update(ctx context.Context, t *domain.WorkflowTask) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode task metadata: %w", err)
	}
	query := `
		UPDATE workflow_tasks
		SET assigned_to_user_id = $1, status = $2, due_date = $3, completed_by_user_id = $4,
			completed_at = $5, comments = $6, metadata = $7, updated_at = $8, updated_by = $9,
			version = version + 1
		WHERE id = $10 AND tenant_id = $11 AND version = $12
	`
	res, err := r.db.ExecContext(ctx, query,
		nullString(t.AssignedToUserID), string(t.Status), nullTime(t.DueDate),
		nullString(t.CompletedByUserID), nullTime(t.CompletedAt), t.Comments, metadata,
		nullTime(t.UpdatedAt), t.UpdatedBy, t.ID, t.TenantID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if err := checkSwap(ctx, r.db, res, "workflow_tasks", "task", t.ID); err != nil {
		return err
	}
	t.Version++
	return nil
}

func scanTask(sc rowScanner) (*domain.WorkflowTask, error) {
	var (
		t                     domain.WorkflowTask
		entityType, status    string
		assignee, completedBy sql.NullString
		dueDate, completedAt  sql.NullTime
		metadata              []byte
	)
	err := sc.Scan(
		&t.ID, &t.TenantID, &entityType, &t.EntityID, &t.Title.En, &t.Title.Ar, &assignee,
		&status, &dueDate, &completedBy, &completedAt, &t.Comments, &metadata, &t.Version,
		&t.CreatedAt, &t.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.EntityType = domain.EntityType(entityType)
	t.Status = domain.TaskStatus(status)
	t.AssignedToUserID = assignee.String
	t.CompletedByUserID = completedBy.String
	t.DueDate = timePtr(dueDate)
	t.CompletedAt = timePtr(completedAt)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode task metadata: %w", err)
		}
	}
	return &t, nil
}
