package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (restock, cancellation return).
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement (order reservation).
	MovementOut MovementType = "out"
	// MovementAdjustment indicates a manual correction, either sign.
	MovementAdjustment MovementType = "adjustment"
)

// Movement is an immutable ledger record. Quantity is the signed delta:
// positive for in, negative for out. The running sum per stock pool must
// always equal the cached stock on the product or variant row.
type Movement struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	Type       MovementType
	Quantity   int64
	Reason     string
	Reference  string
	OccurredAt time.Time
}

// AppendInput describes a manual restock or adjustment request.
type AppendInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Type      MovementType
	Quantity  int64
	Reason    string
	ActorID   string
}

// Filter narrows ledger reads.
type Filter struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	From      time.Time
	To        time.Time
	Limit     int
}

// Drift is a reconciliation finding: a stock pool whose cached quantity
// disagrees with the ledger running sum.
type Drift struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Cached    int64
	LedgerSum int64
}

var (
	// ErrNegativeStock triggered when a movement would drive stock below zero.
	ErrNegativeStock = errors.New("ledger: negative stock not allowed")
	// ErrInvalidQuantity indicates a zero or wrongly-signed quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity sign does not match movement type")
	// ErrInvalidType indicates an unknown movement type.
	ErrInvalidType = errors.New("ledger: unknown movement type")
)
