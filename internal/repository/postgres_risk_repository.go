package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// PostgresRiskRepository implements domain.RiskRepository
type PostgresRiskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRiskRepository creates a new risk repository
func NewPostgresRiskRepository(db *sql.DB, logger *slog.Logger) *PostgresRiskRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRiskRepository{db: db, logger: logger}
}

const riskColumns = `id, tenant_id, code, title_en, title_ar, description_en, description_ar, category,
	owner_user_id, status, inherent_probability, inherent_impact, inherent_level,
	residual_probability, residual_impact, residual_level, treatment, last_assessed_at,
	version, created_at, created_by`

// Create inserts a risk; codes are unique per tenant
func (r *PostgresRiskRepository) Create(ctx context.Context, risk *domain.Risk) error {
	query := `
		INSERT INTO risks (` + riskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19, $20)
	`
	_, err := r.db.ExecContext(ctx, query, r.args(risk, risk.CreatedAt, risk.CreatedBy)...)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return fmt.Errorf("risk code %s: %w", risk.Code, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create risk: %w", err)
	}
	risk.Version = 1
	return nil
}

// GetByID retrieves a tenant's risk
func (r *PostgresRiskRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks WHERE tenant_id = $1 AND id = $2`
	risk, err := scanRisk(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("risk", id)
	}
	return risk, err
}

// List returns a tenant's risks matching filter
func (r *PostgresRiskRepository) List(ctx context.Context, tenantID string, filter domain.RiskFilter) ([]*domain.Risk, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, string(filter.Level))
		where = append(where, fmt.Sprintf("COALESCE(residual_level, inherent_level) = $%d", len(args)))
	}
	query := `SELECT ` + riskColumns + ` FROM risks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Risk
	for rows.Next() {
		risk, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, risk)
	}
	return out, rows.Err()
}

// Update writes the risk guarded by version
func (r *PostgresRiskRepository) Update(ctx context.Context, risk *domain.Risk) error {
	query := `
		UPDATE risks
		SET title_en = $1, title_ar = $2, description_en = $3, description_ar = $4, category = $5,
			owner_user_id = $6, status = $7, inherent_probability = $8, inherent_impact = $9,
			inherent_level = $10, residual_probability = $11, residual_impact = $12,
			residual_level = $13, treatment = $14, last_assessed_at = $15,
			updated_at = $16, updated_by = $17, version = version + 1
		WHERE id = $18 AND tenant_id = $19 AND version = $20
	`
	res, err := r.db.ExecContext(ctx, query,
		risk.Title.En, risk.Title.Ar, risk.Description.En, risk.Description.Ar, string(risk.Category),
		nullString(risk.OwnerUserID), string(risk.Status), risk.InherentProbability, risk.InherentImpact,
		nullString(string(risk.InherentLevel)), nullInt(risk.ResidualProbability), nullInt(risk.ResidualImpact),
		nullLevel(risk.ResidualLevel), nullString(string(risk.Treatment)), nullTime(risk.LastAssessedAt),
		nullTime(risk.UpdatedAt), risk.UpdatedBy, risk.ID, risk.TenantID, risk.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update risk: %w", err)
	}
	if err := checkSwap(ctx, r.db, res, "risks", "risk", risk.ID); err != nil {
		return err
	}
	risk.Version++
	return nil
}

func (r *PostgresRiskRepository) args(risk *domain.Risk, extra ...any) []any {
	args := []any{
		risk.ID, risk.TenantID, risk.Code, risk.Title.En, risk.Title.Ar,
		risk.Description.En, risk.Description.Ar, string(risk.Category),
		nullString(risk.OwnerUserID), string(risk.Status), risk.InherentProbability, risk.InherentImpact,
		nullString(string(risk.InherentLevel)), nullInt(risk.ResidualProbability), nullInt(risk.ResidualImpact),
		nullLevel(risk.ResidualLevel), nullString(string(risk.Treatment)), nullTime(risk.LastAssessedAt),
	}
	return append(args, extra...)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullLevel(l *domain.RiskLevel) sql.NullString {
	if l == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*l), Valid: true}
}

func scanRisk(sc rowScanner) (*domain.Risk, error) {
	var (
		risk                                       domain.Risk
		category, status                           string
		owner, inherentLevel, residualLevel, treat sql.NullString
		residualProbability, residualImpact        sql.NullInt64
		lastAssessed                               sql.NullTime
	)
	err := sc.Scan(
		&risk.ID, &risk.TenantID, &risk.Code, &risk.Title.En, &risk.Title.Ar,
		&risk.Description.En, &risk.Description.Ar, &category,
		&owner, &status, &risk.InherentProbability, &risk.InherentImpact, &inherentLevel,
		&residualProbability, &residualImpact, &residualLevel, &treat, &lastAssessed,
		&risk.Version, &risk.CreatedAt, &risk.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan risk: %w", err)
	}
	risk.Category = domain.RiskCategory(category)
	risk.Status = domain.RiskStatus(status)
	risk.OwnerUserID = owner.String
	risk.InherentLevel = domain.RiskLevel(inherentLevel.String)
	risk.Treatment = domain.TreatmentStrategy(treat.String)
	risk.LastAssessedAt = timePtr(lastAssessed)
	if residualProbability.Valid {
		v := int(residualProbability.Int64)
		risk.ResidualProbability = &v
	}
	if residualImpact.Valid {
		v := int(residualImpact.Int64)
		risk.ResidualImpact = &v
	}
	if residualLevel.Valid {
		l := domain.RiskLevel(residualLevel.String)
		risk.ResidualLevel = &l
	}
	return &risk, nil
}
