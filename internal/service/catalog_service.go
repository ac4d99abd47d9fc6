package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/pkg/cache"
)

// CatalogService manages products and answers quota definition lookups.
// Products are read on every quota check, so reads go through a TTL cache
// that is invalidated on every write.
type CatalogService struct {
	products domain.ProductRepository
	cache    *cache.Cache[*domain.Product]
	logger   *slog.Logger
	clock    Clock
}

// NewCatalogService creates a catalog service. A zero cacheTTL disables caching.
func NewCatalogService(products domain.ProductRepository, cacheTTL time.Duration, logger *slog.Logger) *CatalogService {
	s := &CatalogService{
		products: products,
		logger:   loggerOrDefault(logger),
		clock:    systemClock,
	}
	if cacheTTL > 0 {
		s.cache = cache.New[*domain.Product](cacheTTL)
	}
	return s
}

// WithClock replaces the time source
func (s *CatalogService) WithClock(clock Clock) *CatalogService {
	s.clock = clock
	if s.cache != nil {
		s.cache.WithClock(clock)
	}
	return s
}

// CreateProduct validates and stores a new product
func (s *CatalogService) CreateProduct(ctx context.Context, userID string, p *domain.Product) (err error) {
	ctx, done := startOp(ctx, "catalog.create_product", "")
	defer func() { done(err) }()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for i := range p.Plans {
		p.Plans[i].ProductID = p.ID
		if p.Plans[i].ID == "" {
			p.Plans[i].ID = uuid.NewString()
		}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.Stamp(userID, s.clock())
	if err := s.products.Create(ctx, p); err != nil {
		return fmt.Errorf("create product %s: %w", p.Code, err)
	}
	s.invalidate()
	s.logger.Info("product created", slog.String("product_id", p.ID), slog.String("code", p.Code))
	return nil
}

// GetProduct returns a product by id
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	load := func() (*domain.Product, error) { return s.products.GetByID(ctx, id) }
	if s.cache == nil {
		return load()
	}
	return s.cache.GetOrLoad("id:"+id, load)
}

// GetProductByCode returns a product by its unique code
func (s *CatalogService) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	load := func() (*domain.Product, error) { return s.products.GetByCode(ctx, code) }
	if s.cache == nil {
		return load()
	}
	return s.cache.GetOrLoad("code:"+code, load)
}

// ResolveProduct accepts either a product id or a product code
func (s *CatalogService) ResolveProduct(ctx context.Context, idOrCode string) (*domain.Product, error) {
	p, err := s.GetProduct(ctx, idOrCode)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.GetProductByCode(ctx, idOrCode)
}

// ListProducts returns products ordered by display order
func (s *CatalogService) ListProducts(ctx context.Context, activeOnly bool) ([]*domain.Product, error) {
	return s.products.List(ctx, activeOnly)
}

// UpdateProduct replaces the mutable fields of a product
func (s *CatalogService) UpdateProduct(ctx context.Context, userID string, p *domain.Product) (err error) {
	ctx, done := startOp(ctx, "catalog.update_product", "")
	defer func() { done(err) }()

	if err := p.Validate(); err != nil {
		return err
	}
	p.Touch(userID, s.clock())
	if err := s.products.Update(ctx, p); err != nil {
		return fmt.Errorf("update product %s: %w", p.Code, err)
	}
	s.invalidate()
	return nil
}

// DeactivateProduct hides a product from new subscriptions. Existing
// subscriptions keep resolving it.
func (s *CatalogService) DeactivateProduct(ctx context.Context, userID, id string) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	if err := s.UpdateProduct(ctx, userID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// QuotaDefinition returns the product's definition for quotaType
func (s *CatalogService) QuotaDefinition(ctx context.Context, productID string, quotaType domain.QuotaType) (domain.ProductQuota, bool, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductQuota{}, false, err
	}
	q, ok := p.Quota(quotaType)
	return q, ok, nil
}

// Seed creates the given products, skipping codes that already exist.
// It returns how many were created.
func (s *CatalogService) Seed(ctx context.Context, userID string, products []*domain.Product) (int, error) {
	created := 0
	for _, p := range products {
		_, err := s.products.GetByCode(ctx, p.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}
		if err := s.CreateProduct(ctx, userID, p); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return created, err
		}
		created++
	}
	if created > 0 {
		s.logger.Info("catalog seeded", slog.Int("created", created), slog.Int("total", len(products)))
	}
	return created, nil
}

func (s *CatalogService) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate("")
	}
}
