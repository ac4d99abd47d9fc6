package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/grccore/internal/domain"
)

// PostgresProductRepository implements domain.ProductRepository. Features,
// quotas and plans are stored as JSONB next to the product row.
type PostgresProductRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProductRepository creates a new product repository
func NewPostgresProductRepository(db *sql.DB, logger *slog.Logger) *PostgresProductRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProductRepository{db: db, logger: logger}
}

const productColumns = `id, code, name_en, name_ar, description_en, description_ar, category,
	is_active, display_order, features, quotas, plans, version, created_at, created_by`

// Create inserts a product
func (r *PostgresProductRepository) Create(ctx context.Context, p *domain.Product) error {
	features, quotas, plans, err := marshalProductParts(p)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.Code, p.Name.En, p.Name.Ar, p.Description.En, p.Description.Ar, p.Category,
		p.IsActive, p.DisplayOrder, features, quotas, plans, p.CreatedAt, p.CreatedBy,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return fmt.Errorf("product %s: %w", p.Code, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.Version = 1
	return nil
}

// GetByID retrieves a product by ID
func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return r.scanOne(row, id)
}

// GetByCode retrieves a product by its code
func (r *PostgresProductRepository) GetByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	return r.scanOne(row, code)
}

// List returns products ordered for display
func (r *PostgresProductRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY display_order, code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update writes mutable product fields guarded by version
func (r *PostgresProductRepository) Update(ctx context.Context, p *domain.Product) error {
	features, quotas, plans, err := marshalProductParts(p)
	if err != nil {
		return err
	}
	query := `
		UPDATE products
		SET name_en = $1, name_ar = $2, description_en = $3, description_ar = $4, category = $5,
			is_active = $6, display_order = $7, features = $8, quotas = $9, plans = $10,
			updated_at = $11, updated_by = $12, version = version + 1
		WHERE id = $13 AND version = $14
	`
	res, err := r.db.ExecContext(ctx, query,
		p.Name.En, p.Name.Ar, p.Description.En, p.Description.Ar, p.Category,
		p.IsActive, p.DisplayOrder, features, quotas, plans,
		nullTime(p.UpdatedAt), p.UpdatedBy, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if err := checkSwap(ctx, r.db, res, "products", "product", p.ID); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *PostgresProductRepository) scanOne(row *sql.Row, key string) (*domain.Product, error) {
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("product", key)
		}
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (*domain.Product, error) {
	var (
		p                       domain.Product
		features, quotas, plans []byte
	)
	err := s.Scan(
		&p.ID, &p.Code, &p.Name.En, &p.Name.Ar, &p.Description.En, &p.Description.Ar, &p.Category,
		&p.IsActive, &p.DisplayOrder, &features, &quotas, &plans, &p.Version, &p.CreatedAt, &p.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("failed to decode product features: %w", err)
	}
	if err := json.Unmarshal(quotas, &p.Quotas); err != nil {
		return nil, fmt.Errorf("failed to decode product quotas: %w", err)
	}
	if err := json.Unmarshal(plans, &p.Plans); err != nil {
		return nil, fmt.Errorf("failed to decode product plans: %w", err)
	}
	return &p, nil
}

func marshalProductParts(p *domain.Product) (features, quotas, plans []byte, err error) {
	if features, err = json.Marshal(nonNil(p.Features)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode features: %w", err)
	}
	if quotas, err = json.Marshal(nonNil(p.Quotas)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode quotas: %w", err)
	}
	if plans, err = json.Marshal(nonNil(p.Plans)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode plans: %w", err)
	}
	return features, quotas, plans, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
