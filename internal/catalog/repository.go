package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lojapet/lojapet-core/internal/platform/db"
	"github.com/lojapet/lojapet-core/internal/shared"
)

const productColumns = `id, code, slug, name, description, price, promo_price, promo_kind,
	promo_expires_at, promo_quantity_cap, promo_quantity_sold, stock, min_stock,
	available, category_id, created_at, updated_at`

const variantColumns = `id, product_id, name, sku, price, compare_at_price, stock, created_at, updated_at`

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	db *db.DB
}

// NewRepository constructs Repository.
func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.db.From(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns), id)
	return scanProduct(row)
}

func (r *Repository) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := r.db.From(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM products WHERE slug = $1`, productColumns), slug)
	return scanProduct(row)
}

func (r *Repository) GetVariant(ctx context.Context, id uuid.UUID) (Variant, error) {
	row := r.db.From(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM product_variants WHERE id = $1`, variantColumns), id)
	return scanVariant(row)
}

func (r *Repository) ListVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error) {
	rows, err := r.db.From(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM product_variants WHERE product_id = $1 ORDER BY sku`, variantColumns), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (r *Repository) ListByCategory(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.From(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM products WHERE category_id = $1 AND available ORDER BY name LIMIT $2 OFFSET $3`, productColumns),
		categoryID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListLowStock returns products at or below their minimum stock threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]LowStockEntry, error) {
	rows, err := r.db.From(ctx).Query(ctx,
		`SELECT id, name, stock, min_stock FROM products WHERE stock <= min_stock ORDER BY stock, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LowStockEntry
	for rows.Next() {
		var e LowStockEntry
		if err := rows.Scan(&e.ProductID, &e.Name, &e.Stock, &e.MinStock); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) error {
	price, err := db.DecimalToNumeric(p.Price)
	if err != nil {
		return err
	}
	var promoPrice pgtype.Numeric
	if p.PromoPrice != nil {
		if promoPrice, err = db.DecimalToNumeric(*p.PromoPrice); err != nil {
			return err
		}
	}
	_, err = r.db.From(ctx).Exec(ctx, `
		INSERT INTO products (id, code, slug, name, description, price, promo_price, promo_kind,
			promo_expires_at, promo_quantity_cap, promo_quantity_sold, stock, min_stock, available, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Code, p.Slug, p.Name, p.Description, price, promoPrice, string(p.PromoKind),
		p.PromoExpiresAt, p.PromoQuantityCap, p.PromoQuantitySold, p.Stock, p.MinStock, p.Available, p.CategoryID)
	return mapUniqueViolation(err, "products_slug_key", ErrSlugTaken)
}

// UpdateProduct rewrites descriptive and pricing fields. Stock and the promo
// sold counter are deliberately excluded; only the ledger and reservation
// transactions may move them.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	price, err := db.DecimalToNumeric(p.Price)
	if err != nil {
		return err
	}
	var promoPrice pgtype.Numeric
	if p.PromoPrice != nil {
		if promoPrice, err = db.DecimalToNumeric(*p.PromoPrice); err != nil {
			return err
		}
	}
	tag, err := r.db.From(ctx).Exec(ctx, `
		UPDATE products SET code = $2, slug = $3, name = $4, description = $5, price = $6,
			promo_price = $7, promo_kind = NULLIF($8, ''), promo_expires_at = $9,
			promo_quantity_cap = $10, min_stock = $11, available = $12, category_id = $13,
			updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Code, p.Slug, p.Name, p.Description, price, promoPrice, string(p.PromoKind),
		p.PromoExpiresAt, p.PromoQuantityCap, p.MinStock, p.Available, p.CategoryID)
	if err != nil {
		return mapUniqueViolation(err, "products_slug_key", ErrSlugTaken)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearExpiredPromotions drops promo pricing whose expiry has passed and
// returns the number of products touched.
func (r *Repository) ClearExpiredPromotions(ctx context.Context) (int64, error) {
	tag, err := r.db.From(ctx).Exec(ctx, `
		UPDATE products
		SET promo_price = NULL, promo_kind = NULL, promo_expires_at = NULL, updated_at = NOW()
		WHERE promo_kind = $1 AND promo_expires_at IS NOT NULL AND promo_expires_at < NOW()`,
		string(PromotionByTime))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) CreateVariant(ctx context.Context, v Variant) error {
	price, err := db.DecimalToNumeric(v.Price)
	if err != nil {
		return err
	}
	var compareAt pgtype.Numeric
	if v.CompareAtPrice != nil {
		if compareAt, err = db.DecimalToNumeric(*v.CompareAtPrice); err != nil {
			return err
		}
	}
	_, err = r.db.From(ctx).Exec(ctx, `
		INSERT INTO product_variants (id, product_id, name, sku, price, compare_at_price, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.ProductID, v.Name, v.SKU, price, compareAt, v.Stock)
	return mapUniqueViolation(err, "product_variants_sku_key", ErrSKUTaken)
}

func (r *Repository) CreateCategory(ctx context.Context, c Category) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.Slug)
	return mapUniqueViolation(err, "categories_slug_key", ErrSlugTaken)
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (Category, error) {
	var c Category
	err := r.db.From(ctx).QueryRow(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.ErrNotFound
	}
	return c, err
}

// DeleteCategory refuses while products still reference the category; the FK
// restriction surfaces as ErrCategoryInUse.
func (r *Repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.From(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrCategoryInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) ListImages(ctx context.Context, productID uuid.UUID) ([]Image, error) {
	rows, err := r.db.From(ctx).Query(ctx,
		`SELECT id, product_id, url, alt, is_main, position FROM product_images WHERE product_id = $1 ORDER BY position`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Alt, &img.IsMain, &img.Position); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price, promoPrice pgtype.Numeric
	var promoKind, description pgtype.Text
	var promoExpires pgtype.Timestamptz
	var promoCap pgtype.Int8

	err := row.Scan(&p.ID, &p.Code, &p.Slug, &p.Name, &description, &price, &promoPrice, &promoKind,
		&promoExpires, &promoCap, &p.PromoQuantitySold, &p.Stock, &p.MinStock,
		&p.Available, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}

	if description.Valid {
		p.Description = description.String
	}
	if p.Price, err = db.NumericToDecimal(price); err != nil {
		return Product{}, err
	}
	if promoPrice.Valid {
		d, err := db.NumericToDecimal(promoPrice)
		if err != nil {
			return Product{}, err
		}
		p.PromoPrice = &d
	}
	if promoKind.Valid {
		p.PromoKind = PromotionKind(promoKind.String)
	}
	if promoExpires.Valid {
		t := promoExpires.Time
		p.PromoExpiresAt = &t
	}
	if promoCap.Valid {
		v := promoCap.Int64
		p.PromoQuantityCap = &v
	}
	return p, nil
}

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	var price, compareAt pgtype.Numeric

	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &price, &compareAt, &v.Stock, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, shared.ErrNotFound
		}
		return Variant{}, err
	}

	if v.Price, err = db.NumericToDecimal(price); err != nil {
		return Variant{}, err
	}
	if compareAt.Valid {
		d, err := db.NumericToDecimal(compareAt)
		if err != nil {
			return Variant{}, err
		}
		v.CompareAtPrice = &d
	}
	return v, nil
}

func mapUniqueViolation(err error, constraint string, sentinel error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint {
		return sentinel
	}
	return err
}
