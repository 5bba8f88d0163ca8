package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lojapet/lojapet-core/internal/platform/db"
	"github.com/lojapet/lojapet-core/internal/shared"
)

// Repository persists stock movements in PostgreSQL. Movements are append
// only; there is no update or delete path.
type Repository struct {
	db *db.DB
}

// NewRepository constructs Repository.
func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// Record inserts the movement row. It does not touch cached stock; the caller
// owns that update inside the same transaction. Shared with the reservation
// service so every movement is written through one code path.
func (r *Repository) Record(ctx context.Context, m Movement) error {
	_, err := r.db.From(ctx).Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, variant_id, movement_type, quantity, reason, reference, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ProductID, m.VariantID, string(m.Type), m.Quantity, m.Reason, m.Reference, m.OccurredAt)
	return err
}

// LockProductStock reads the product's cached stock under FOR UPDATE.
func (r *Repository) LockProductStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	var stock int64
	err := r.db.From(ctx).QueryRow(ctx,
		`SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return stock, err
}

// LockVariantStock reads the variant's cached stock under FOR UPDATE.
func (r *Repository) LockVariantStock(ctx context.Context, variantID uuid.UUID) (int64, error) {
	var stock int64
	err := r.db.From(ctx).QueryRow(ctx,
		`SELECT stock FROM product_variants WHERE id = $1 FOR UPDATE`, variantID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return stock, err
}

// SetProductStock rewrites the cached projection for a product pool.
func (r *Repository) SetProductStock(ctx context.Context, productID uuid.UUID, stock int64) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, productID, stock)
	return err
}

// SetVariantStock rewrites the cached projection for a variant pool.
func (r *Repository) SetVariantStock(ctx context.Context, variantID uuid.UUID, stock int64) error {
	_, err := r.db.From(ctx).Exec(ctx,
		`UPDATE product_variants SET stock = $2, updated_at = NOW() WHERE id = $1`, variantID, stock)
	return err
}

// List returns movements for audit reads, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT id, product_id, variant_id, movement_type, quantity, reason, reference, occurred_at
		FROM stock_movements WHERE product_id = $1`
	args := []any{filter.ProductID}

	if filter.VariantID != nil {
		args = append(args, *filter.VariantID)
		query += ` AND variant_id = $2`
	} else {
		query += ` AND variant_id IS NULL`
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND occurred_at <= $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY occurred_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.From(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		var mtype string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.VariantID, &mtype, &m.Quantity, &m.Reason, &m.Reference, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mtype)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ScanDrift compares cached stock with the ledger running sum for every
// product and variant pool. Snapshot isolation is enough; it never blocks
// writers.
func (r *Repository) ScanDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.From(ctx).Query(ctx, `
		SELECT p.id, NULL::uuid, p.stock, COALESCE(SUM(m.quantity), 0)
		FROM products p
		LEFT JOIN stock_movements m ON m.product_id = p.id AND m.variant_id IS NULL
		GROUP BY p.id, p.stock
		HAVING p.stock <> COALESCE(SUM(m.quantity), 0)
		UNION ALL
		SELECT v.product_id, v.id, v.stock, COALESCE(SUM(m.quantity), 0)
		FROM product_variants v
		LEFT JOIN stock_movements m ON m.variant_id = v.id
		GROUP BY v.product_id, v.id, v.stock
		HAVING v.stock <> COALESCE(SUM(m.quantity), 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.VariantID, &d.Cached, &d.LedgerSum); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
