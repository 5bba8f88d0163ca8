package reservation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lojapet/lojapet-core/internal/platform/db"
	"github.com/lojapet/lojapet-core/internal/shared"
)

// ProductStock is the locked view of a product's reservable state.
type ProductStock struct {
	Stock     int64
	PromoSold int64
	PromoCap  *int64
	// QuantityBound is true when the promotion expires by cumulative units
	// sold, which is the only kind with a hard headroom check.
	QuantityBound bool
}

// OrderHead is the locked order row release serialises on.
type OrderHead struct {
	ID     uuid.UUID
	Status string
}

// Repository gives the reservation service its locked reads and writes. Every
// method must run inside the transaction carried on ctx.
type Repository struct {
	db *db.DB
}

// NewRepository constructs Repository.
func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// LockProduct locks the product row and re-reads its reservable state.
func (r *Repository) LockProduct(ctx context.Context, productID uuid.UUID) (ProductStock, error) {
	var ps ProductStock
	var kind *string
	err := r.db.From(ctx).QueryRow(ctx, `
		SELECT stock, promo_quantity_sold, promo_quantity_cap, promo_kind
		FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&ps.Stock, &ps.PromoSold, &ps.PromoCap, &kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, shared.ErrNotFound
	}
	if err != nil {
		return ProductStock{}, err
	}
	ps.QuantityBound = kind != nil && *kind == "by-quantity"
	return ps, nil
}

// LockVariant locks the variant row and re-reads its stock.
func (r *Repository) LockVariant(ctx context.Context, variantID uuid.UUID) (int64, error) {
	var stock int64
	err := r.db.From(ctx).QueryRow(ctx,
		`SELECT stock FROM product_variants WHERE id = $1 FOR UPDATE`, variantID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return stock, err
}

// UpdateProduct rewrites the product's stock and promo counter under the held
// lock.
func (r *Repository) UpdateProduct(ctx context.Context, productID uuid.UUID, stock, promoSold int64) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE products SET stock = $2, promo_quantity_sold = $3, updated_at = NOW() WHERE id = $1`,
		productID, stock, promoSold)
	return err
}

// UpdateVariantStock rewrites the variant's stock under the held lock.
func (r *Repository) UpdateVariantStock(ctx context.Context, variantID uuid.UUID, stock int64) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE product_variants SET stock = $2, updated_at = NOW() WHERE id = $1`, variantID, stock)
	return err
}

// LockOrder locks the order row so concurrent releases serialise.
func (r *Repository) LockOrder(ctx context.Context, orderID uuid.UUID) (OrderHead, error) {
	var head OrderHead
	err := r.db.From(ctx).QueryRow(ctx,
		`SELECT id, status FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&head.ID, &head.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderHead{}, shared.ErrNotFound
	}
	return head, err
}

// OrderLines re-reads the order's items for compensation.
func (r *Repository) OrderLines(ctx context.Context, orderID uuid.UUID) ([]Line, error) {
	rows, err := r.db.From(ctx).Query(ctx,
		`SELECT product_id, variant_id, quantity, promo_applied FROM order_items WHERE order_id = $1`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Quantity, &l.PromoApplied); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// MarkCancelled flips the order's status inside the release transaction.
func (r *Repository) MarkCancelled(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE orders SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, orderID)
	return err
}
