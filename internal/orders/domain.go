package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Orders only ever move forward;
// completed and cancelled are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Order aggregates the header and its items. Total is a denormalised cache of
// the item sum, recomputable at any time via ItemTotal.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    Status
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []Item
}

// ItemTotal recomputes the order total from its items.
func (o Order) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return total
}

// Item is an order line. UnitPrice is frozen at order-creation time and never
// recomputed, whatever later happens to catalog pricing.
type Item struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	VariantID    *uuid.UUID
	Quantity     int64
	UnitPrice    decimal.Decimal
	PromoApplied bool
	CreatedAt    time.Time
}

// CreateRequest describes an order to assemble.
type CreateRequest struct {
	UserID uuid.UUID    `validate:"required"`
	Lines  []CreateLine `validate:"required,min=1,dive"`
	// IdempotencyKey lets callers safely retry after transient failures.
	IdempotencyKey string
}

// CreateLine is one requested line of a new order.
type CreateLine struct {
	ProductID uuid.UUID  `validate:"required"`
	VariantID *uuid.UUID `validate:"omitempty"`
	Quantity  int64      `validate:"required,gt=0"`
}

// IllegalTransitionError rejects a lifecycle move the state machine forbids.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("orders: illegal transition %s -> %s", e.From, e.To)
}

// ValidationError rejects a malformed request before any transaction opens.
// Line is the offending line index, or -1 for order-level problems.
type ValidationError struct {
	Line int
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Line < 0 {
		return "orders: " + e.Msg
	}
	return fmt.Sprintf("orders: line %d: %s", e.Line, e.Msg)
}
