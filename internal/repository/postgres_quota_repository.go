package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// PostgresQuotaUsageRepository implements domain.QuotaUsageRepository.
// Add locks the counter row for the duration of a short transaction so
// concurrent increments never lose updates.
type PostgresQuotaUsageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresQuotaUsageRepository creates a new quota usage repository
func NewPostgresQuotaUsageRepository(db *sql.DB, logger *slog.Logger) *PostgresQuotaUsageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuotaUsageRepository{db: db, logger: logger}
}

// Get returns the counter or a zero usage when none exists
func (r *PostgresQuotaUsageRepository) Get(ctx context.Context, tenantID string, quotaType domain.QuotaType) (*domain.QuotaUsage, error) {
	query := `
		SELECT tenant_id, quota_type, current_usage, last_updated, reset_date
		FROM quota_usages
		WHERE tenant_id = $1 AND quota_type = $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, string(quotaType))
	if err != nil {
		return nil, fmt.Errorf("failed to get quota usage: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get quota usage: %w", err)
		}
		return &domain.QuotaUsage{TenantID: tenantID, QuotaType: quotaType}, nil
	}
	return scanQuotaUsage(rows)
}

// List returns every counter of a tenant
func (r *PostgresQuotaUsageRepository) List(ctx context.Context, tenantID string) ([]*domain.QuotaUsage, error) {
	query := `
		SELECT tenant_id, quota_type, current_usage, last_updated, reset_date
		FROM quota_usages
		WHERE tenant_id = $1
		ORDER BY quota_type
	`
	return r.query(ctx, query, tenantID)
}

// Add applies delta inside a row-locking transaction and clamps at zero
func (r *PostgresQuotaUsageRepository) Add(ctx context.Context, tenantID string, quotaType domain.QuotaType, delta float64, now time.Time) (float64, float64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 1. Make sure the row exists so FOR UPDATE has something to lock
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quota_usages (tenant_id, quota_type, current_usage, last_updated)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (tenant_id, quota_type) DO NOTHING
	`, tenantID, string(quotaType), now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to initialize quota usage: %w", err)
	}

	// 2. Lock and read
	var before float64
	err = tx.QueryRowContext(ctx, `
		SELECT current_usage FROM quota_usages
		WHERE tenant_id = $1 AND quota_type = $2
		FOR UPDATE
	`, tenantID, string(quotaType)).Scan(&before)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock quota usage: %w", err)
	}

	// 3. Write the clamped value
	after := max(before+delta, 0)
	_, err = tx.ExecContext(ctx, `
		UPDATE quota_usages SET current_usage = $1, last_updated = $2
		WHERE tenant_id = $3 AND quota_type = $4
	`, after, now, tenantID, string(quotaType))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to update quota usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit quota usage: %w", err)
	}
	return before, after, nil
}

// Reset zeroes the counter and records the next reset date
func (r *PostgresQuotaUsageRepository) Reset(ctx context.Context, tenantID string, quotaType domain.QuotaType, next *time.Time, now time.Time) error {
	query := `
		INSERT INTO quota_usages (tenant_id, quota_type, current_usage, last_updated, reset_date)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (tenant_id, quota_type) DO UPDATE
		SET current_usage = 0, last_updated = EXCLUDED.last_updated, reset_date = EXCLUDED.reset_date
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, string(quotaType), now, nullTime(next)); err != nil {
		return fmt.Errorf("failed to reset quota usage: %w", err)
	}
	return nil
}

// DueForReset lists counters whose reset date has passed
func (r *PostgresQuotaUsageRepository) DueForReset(ctx context.Context, now time.Time) ([]*domain.QuotaUsage, error) {
	query := `
		SELECT tenant_id, quota_type, current_usage, last_updated, reset_date
		FROM quota_usages
		WHERE reset_date IS NOT NULL AND reset_date <= $1
	`
	return r.query(ctx, query, now)
}

func (r *PostgresQuotaUsageRepository) query(ctx context.Context, query string, args ...any) ([]*domain.QuotaUsage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quota usages: %w", err)
	}
	defer rows.Close()

	var out []*domain.QuotaUsage
	for rows.Next() {
		u, err := scanQuotaUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanQuotaUsage(sc rowScanner) (*domain.QuotaUsage, error) {
	var (
		u         domain.QuotaUsage
		quotaType string
		resetDate sql.NullTime
	)
	if err := sc.Scan(&u.TenantID, &quotaType, &u.CurrentUsage, &u.LastUpdated, &resetDate); err != nil {
		return nil, fmt.Errorf("failed to scan quota usage: %w", err)
	}
	u.QuotaType = domain.QuotaType(quotaType)
	u.ResetDate = timePtr(resetDate)
	return &u, nil
}
