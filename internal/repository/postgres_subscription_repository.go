package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// PostgresSubscriptionRepository implements domain.SubscriptionRepository.
//
// Inserts that claim the tenant's active slot take a transaction-scoped
// advisory lock on the tenant id before checking for an existing Trial/Active
// row. The partial unique index ux_tenant_subscriptions_active backs this up;
// a violation of it is reported as ErrDuplicateActiveSubscription.
type PostgresSubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSubscriptionRepository creates a new subscription repository
func NewPostgresSubscriptionRepository(db *sql.DB, logger *slog.Logger) *PostgresSubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `id, tenant_id, product_id, pricing_plan_id, status, start_date, end_date,
	trial_end_date, auto_renew, cancellation_reason, cancelled_at, version, created_at, created_by`

// Create inserts a subscription
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *domain.TenantSubscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.HoldsActiveSlot() {
		if err := lockTenant(ctx, tx, s.TenantID); err != nil {
			return err
		}
		if err := checkSlotFree(ctx, tx, s.TenantID); err != nil {
			return err
		}
	}
	if err := insertSubscription(ctx, tx, s); err != nil {
		return err
	}
	if err := commitSubscription(tx, s.TenantID); err != nil {
		return err
	}
	s.Version = 1
	return nil
}

// Replace ends old and inserts next in one transaction under the tenant lock,
// so the tenant never observes the gap between the two.
func (r *PostgresSubscriptionRepository) Replace(ctx context.Context, old, next *domain.TenantSubscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTenant(ctx, tx, next.TenantID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, updateSubscriptionSQL, updateSubscriptionArgs(old)...)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := checkSwap(ctx, tx, res, "tenant_subscriptions", "subscription", old.ID); err != nil {
		return err
	}
	if next.HoldsActiveSlot() {
		if err := checkSlotFree(ctx, tx, next.TenantID); err != nil {
			return err
		}
	}
	if err := insertSubscription(ctx, tx, next); err != nil {
		return err
	}
	if err := commitSubscription(tx, next.TenantID); err != nil {
		return err
	}
	old.Version++
	next.Version = 1
	return nil
}

func lockTenant(ctx context.Context, tx *sql.Tx, tenantID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	return nil
}

func checkSlotFree(ctx context.Context, tx *sql.Tx, tenantID string) error {
	var existingID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tenant_subscriptions WHERE tenant_id = $1 AND status IN ('Trial', 'Active') LIMIT 1`,
		tenantID,
	).Scan(&existingID)
	switch {
	case err == nil:
		return &domain.DuplicateActiveSubscriptionError{TenantID: tenantID, SubscriptionID: existingID}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check active subscription: %w", err)
	}
	return nil
}

func insertSubscription(ctx context.Context, tx *sql.Tx, s *domain.TenantSubscription) error {
	query := `
		INSERT INTO tenant_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
	`
	_, err := tx.ExecContext(ctx, query,
		s.ID, s.TenantID, s.ProductID, nullString(s.PricingPlanID), string(s.Status), s.StartDate,
		nullTime(s.EndDate), nullTime(s.TrialEndDate), s.AutoRenew, s.CancellationReason,
		nullTime(s.CancelledAt), s.CreatedAt, s.CreatedBy,
	)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok && pqErr.Constraint == activeSubscriptionIndex {
			return &domain.DuplicateActiveSubscriptionError{TenantID: s.TenantID}
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func commitSubscription(tx *sql.Tx, tenantID string) error {
	if err := tx.Commit(); err != nil {
		if pqErr, ok := isUniqueViolation(err); ok && pqErr.Constraint == activeSubscriptionIndex {
			return &domain.DuplicateActiveSubscriptionError{TenantID: tenantID}
		}
		return fmt.Errorf("failed to commit subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by ID
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.TenantSubscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM tenant_subscriptions WHERE id = $1`, id)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("subscription", id)
	}
	return s, err
}

// FindActive returns the tenant's Trial/Active subscription
func (r *PostgresSubscriptionRepository) FindActive(ctx context.Context, tenantID string) (*domain.TenantSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM tenant_subscriptions
		WHERE tenant_id = $1 AND status IN ('Trial', 'Active') LIMIT 1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("active subscription", tenantID)
	}
	return s, err
}

// ListByTenant returns every subscription of a tenant, newest first
func (r *PostgresSubscriptionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.TenantSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM tenant_subscriptions
		WHERE tenant_id = $1 ORDER BY start_date DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.TenantSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const updateSubscriptionSQL = `
	UPDATE tenant_subscriptions
	SET status = $1, end_date = $2, trial_end_date = $3, auto_renew = $4,
		cancellation_reason = $5, cancelled_at = $6, updated_at = $7, updated_by = $8,
		version = version + 1
	WHERE id = $9 AND version = $10
`

func updateSubscriptionArgs(s *domain.TenantSubscription) []any {
	return []any{
		string(s.Status), nullTime(s.EndDate), nullTime(s.TrialEndDate), s.AutoRenew,
		s.CancellationReason, nullTime(s.CancelledAt), nullTime(s.UpdatedAt), s.UpdatedBy,
		s.ID, s.Version,
	}
}

// Update writes the subscription guarded by version
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, s *domain.TenantSubscription) error {
	res, err := r.db.ExecContext(ctx, updateSubscriptionSQL, updateSubscriptionArgs(s)...)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok && pqErr.Constraint == activeSubscriptionIndex {
			return &domain.DuplicateActiveSubscriptionError{TenantID: s.TenantID}
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := checkSwap(ctx, r.db, res, "tenant_subscriptions", "subscription", s.ID); err != nil {
		return err
	}
	s.Version++
	return nil
}

func scanSubscription(sc rowScanner) (*domain.TenantSubscription, error) {
	var (
		s                              domain.TenantSubscription
		status                         string
		planID                         sql.NullString
		endDate, trialEnd, cancelledAt sql.NullTime
	)
	err := sc.Scan(
		&s.ID, &s.TenantID, &s.ProductID, &planID, &status, &s.StartDate, &endDate,
		&trialEnd, &s.AutoRenew, &s.CancellationReason, &cancelledAt, &s.Version, &s.CreatedAt, &s.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	s.Status = domain.SubscriptionStatus(status)
	s.PricingPlanID = planID.String
	s.EndDate = timePtr(endDate)
	s.TrialEndDate = timePtr(trialEnd)
	s.CancelledAt = timePtr(cancelledAt)
	return &s, nil
}
