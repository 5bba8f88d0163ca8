package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lojapet/lojapet-core/internal/platform/db"
	"github.com/lojapet/lojapet-core/internal/shared"
)

// Repository persists orders and order items in PostgreSQL. Items are owned
// by their order (cascade delete at the schema level); products are only
// referenced.
type Repository struct {
	db *db.DB
}

// NewRepository constructs Repository.
func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) Insert(ctx context.Context, o Order) error {
	total, err := db.DecimalToNumeric(o.Total)
	if err != nil {
		return err
	}
	_, err = r.db.From(ctx).Exec(ctx,
		`INSERT INTO orders (id, user_id, status, total) VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, string(o.Status), total)
	return err
}

func (r *Repository) InsertItems(ctx context.Context, items []Item) error {
	for _, item := range items {
		unitPrice, err := db.DecimalToNumeric(item.UnitPrice)
		if err != nil {
			return err
		}
		_, err = r.db.From(ctx).Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, unit_price, promo_applied)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.OrderID, item.ProductID, item.VariantID, item.Quantity, unitPrice, item.PromoApplied)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get loads the order aggregate with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := r.scanHead(r.db.From(ctx).QueryRow(ctx,
		`SELECT id, user_id, status, total, created_at, updated_at FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}

	rows, err := r.db.From(ctx).Query(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price, promo_applied, created_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		var unitPrice pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID,
			&item.Quantity, &unitPrice, &item.PromoApplied, &item.CreatedAt); err != nil {
			return Order{}, err
		}
		if item.UnitPrice, err = db.NumericToDecimal(unitPrice); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// GetForUpdate locks the order row and returns the header only. Transitions
// serialise on this lock.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return r.scanHead(r.db.From(ctx).QueryRow(ctx,
		`SELECT id, user_id, status, total, created_at, updated_at FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

// ListByUser returns a user's order headers, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.From(ctx).Query(ctx, `
		SELECT id, user_id, status, total, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := r.scanHead(rowAdapter{rows})
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

type rowAdapter struct {
	rows pgx.Rows
}

func (a rowAdapter) Scan(dest ...any) error {
	return a.rows.Scan(dest...)
}

func (r *Repository) scanHead(row pgx.Row) (Order, error) {
	var o Order
	var status string
	var total pgtype.Numeric
	err := row.Scan(&o.ID, &o.UserID, &status, &total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	if o.Total, err = db.NumericToDecimal(total); err != nil {
		return Order{}, err
	}
	return o, nil
}
