package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lojapet/lojapet-core/internal/shared"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Record(ctx context.Context, m Movement) error
	LockProductStock(ctx context.Context, productID uuid.UUID) (int64, error)
	LockVariantStock(ctx context.Context, variantID uuid.UUID) (int64, error)
	SetProductStock(ctx context.Context, productID uuid.UUID, stock int64) error
	SetVariantStock(ctx context.Context, variantID uuid.UUID, stock int64) error
	List(ctx context.Context, filter Filter) ([]Movement, error)
	ScanDrift(ctx context.Context) ([]Drift, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates manual ledger operations: restocks and adjustments.
// Order-driven movements go through the reservation service instead, which
// shares Record so every movement lands in the same append-only table.
type Service struct {
	db    TxRunner
	repo  RepositoryPort
	clock shared.Clock
	audit AuditPort
}

// NewService builds Service.
func NewService(db TxRunner, repo RepositoryPort, clock shared.Clock, audit AuditPort) *Service {
	return &Service{db: db, repo: repo, clock: clock, audit: audit}
}

// Append posts one movement and updates the cached stock projection as a
// single atomic unit. On any error neither survives.
func (s *Service) Append(ctx context.Context, input AppendInput) (Movement, error) {
	if input.ProductID == uuid.Nil {
		return Movement{}, errors.New("ledger: product required")
	}
	if err := validateQuantity(input.Type, input.Quantity); err != nil {
		return Movement{}, err
	}

	movement := Movement{
		ID:         uuid.New(),
		ProductID:  input.ProductID,
		VariantID:  input.VariantID,
		Type:       input.Type,
		Quantity:   input.Quantity,
		Reason:     input.Reason,
		OccurredAt: s.clock.Now(),
	}

	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.lockStock(ctx, input.ProductID, input.VariantID)
		if err != nil {
			return err
		}
		next := current + input.Quantity
		if next < 0 {
			return ErrNegativeStock
		}
		if err := s.setStock(ctx, input.ProductID, input.VariantID, next); err != nil {
			return err
		}
		return s.repo.Record(ctx, movement)
	})
	if err != nil {
		return Movement{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", input.Type),
			Entity:   "stock_movement",
			EntityID: movement.ID.String(),
			Meta: map[string]any{
				"product_id": input.ProductID.String(),
				"quantity":   input.Quantity,
				"reason":     input.Reason,
			},
		})
	}
	return movement, nil
}

// List returns movements for audit reads.
func (s *Service) List(ctx context.Context, filter Filter) ([]Movement, error) {
	if filter.ProductID == uuid.Nil {
		return nil, errors.New("ledger: product required")
	}
	return s.repo.List(ctx, filter)
}

// Reconcile reports every stock pool whose cached quantity has drifted from
// the ledger running sum. An empty result means the core invariant holds.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	return s.repo.ScanDrift(ctx)
}

func (s *Service) lockStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int64, error) {
	if variantID != nil {
		return s.repo.LockVariantStock(ctx, *variantID)
	}
	return s.repo.LockProductStock(ctx, productID)
}

func (s *Service) setStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, stock int64) error {
	if variantID != nil {
		return s.repo.SetVariantStock(ctx, *variantID, stock)
	}
	return s.repo.SetProductStock(ctx, productID, stock)
}

func validateQuantity(t MovementType, qty int64) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}
	switch t {
	case MovementIn:
		if qty < 0 {
			return ErrInvalidQuantity
		}
	case MovementOut:
		if qty > 0 {
			return ErrInvalidQuantity
		}
	case MovementAdjustment:
	default:
		return ErrInvalidType
	}
	return nil
}
