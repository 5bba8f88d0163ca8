package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (Variant, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]Product, error)
	ListLowStock(ctx context.Context) ([]LowStockEntry, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	CreateVariant(ctx context.Context, v Variant) error
	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id uuid.UUID) (Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListImages(ctx context.Context, productID uuid.UUID) ([]Image, error)
	ClearExpiredPromotions(ctx context.Context) (int64, error)
}

// Service coordinates catalog reads and admin writes.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService builds Service. Cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetProduct reads a product through the cache.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if id == uuid.Nil {
		return Product{}, errors.New("catalog: product id required")
	}
	return s.cache.FetchProduct(ctx, id, func(ctx context.Context) (Product, error) {
		return s.repo.GetProduct(ctx, id)
	})
}

// GetProductBySlug bypasses the cache; slug lookups are storefront page loads
// that want the committed row.
func (s *Service) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	if strings.TrimSpace(slug) == "" {
		return Product{}, errors.New("catalog: slug required")
	}
	return s.repo.GetProductBySlug(ctx, slug)
}

// GetVariant loads a variant and verifies it belongs to the given product.
func (s *Service) GetVariant(ctx context.Context, productID, variantID uuid.UUID) (Variant, error) {
	v, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return Variant{}, err
	}
	if v.ProductID != productID {
		return Variant{}, ErrVariantMismatch
	}
	return v, nil
}

func (s *Service) ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error) {
	return s.repo.ListVariants(ctx, productID)
}

func (s *Service) ListByCategory(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]Product, error) {
	return s.repo.ListByCategory(ctx, categoryID, limit, offset)
}

// ListLowStock backs the admin restock report.
func (s *Service) ListLowStock(ctx context.Context) ([]LowStockEntry, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) ListImages(ctx context.Context, productID uuid.UUID) ([]Image, error) {
	return s.repo.ListImages(ctx, productID)
}

// CreateProduct registers a new product. A missing slug is derived from the
// name.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := s.validateProduct(&p); err != nil {
		return Product{}, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct rewrites descriptive fields and invalidates the cache entry.
func (s *Service) UpdateProduct(ctx context.Context, p Product) error {
	if p.ID == uuid.Nil {
		return errors.New("catalog: product id required")
	}
	if err := s.validateProduct(&p); err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, p.ID)
}

func (s *Service) CreateVariant(ctx context.Context, v Variant) (Variant, error) {
	if v.ProductID == uuid.Nil {
		return Variant{}, errors.New("catalog: product id required")
	}
	if strings.TrimSpace(v.SKU) == "" {
		return Variant{}, errors.New("catalog: sku is required")
	}
	if v.Price.IsNegative() {
		return Variant{}, errors.New("catalog: price must be >= 0")
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if err := s.repo.CreateVariant(ctx, v); err != nil {
		return Variant{}, err
	}
	return v, s.cache.Invalidate(ctx, v.ProductID)
}

func (s *Service) CreateCategory(ctx context.Context, c Category) (Category, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Category{}, errors.New("catalog: category name is required")
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("catalog: category id required")
	}
	return s.repo.DeleteCategory(ctx, id)
}

// ClearExpiredPromotions is invoked by the promotion sweep job.
func (s *Service) ClearExpiredPromotions(ctx context.Context) (int64, error) {
	return s.repo.ClearExpiredPromotions(ctx)
}

func (s *Service) validateProduct(p *Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("catalog: product code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("catalog: product name is required")
	}
	if p.CategoryID == uuid.Nil {
		return errors.New("catalog: category is required")
	}
	if p.Price.IsNegative() {
		return errors.New("catalog: price must be >= 0")
	}
	if p.PromoPrice != nil {
		if p.PromoPrice.IsNegative() {
			return errors.New("catalog: promo price must be >= 0")
		}
		switch p.PromoKind {
		case PromotionByTime, PromotionByQuantity:
		default:
			return errors.New("catalog: promo kind must be by-time or by-quantity")
		}
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	return nil
}
