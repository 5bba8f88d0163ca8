package reservation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Line is one requested order line. PromoApplied carries the pricing
// resolver's decision from order-assembly time; reservation only verifies and
// accounts promotion quota, it never re-prices.
type Line struct {
	ProductID    uuid.UUID
	VariantID    *uuid.UUID
	Quantity     int64
	PromoApplied bool
}

// InsufficientStockError reports the first line that could not be covered.
// The whole reservation rolled back; no stock was mutated.
type InsufficientStockError struct {
	Line      int
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != nil {
		return fmt.Sprintf("reservation: line %d: variant %s has %d in stock, %d requested",
			e.Line, e.VariantID, e.Available, e.Requested)
	}
	return fmt.Sprintf("reservation: line %d: product %s has %d in stock, %d requested",
		e.Line, e.ProductID, e.Available, e.Requested)
}

// InvalidQuantityError rejects a line whose quantity is not strictly
// positive. Raised before any transaction opens; Line is -1 when the bad
// quantity came from a stored order item during release.
type InvalidQuantityError struct {
	Line     int
	Quantity int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("reservation: line %d: quantity must be positive, got %d", e.Line, e.Quantity)
}

// PromotionExhaustedError reports a quantity-bound promotion without headroom
// for the requested units. The engine never silently falls back to base price.
type PromotionExhaustedError struct {
	Line      int
	ProductID uuid.UUID
	Requested int64
	Sold      int64
	Cap       int64
}

func (e *PromotionExhaustedError) Error() string {
	return fmt.Sprintf("reservation: line %d: promotion on product %s exhausted (%d of %d sold, %d requested)",
		e.Line, e.ProductID, e.Sold, e.Cap, e.Requested)
}

var (
	// ErrNoLines indicates an empty reservation request.
	ErrNoLines = errors.New("reservation: at least one line required")
	// ErrNotReleasable indicates the order is in a state release cannot act
	// on (completed orders keep their stock committed).
	ErrNotReleasable = errors.New("reservation: order cannot be released")
)
