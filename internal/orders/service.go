package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lojapet/lojapet-core/internal/catalog"
	"github.com/lojapet/lojapet-core/internal/pricing"
	"github.com/lojapet/lojapet-core/internal/reservation"
	"github.com/lojapet/lojapet-core/internal/shared"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, o Order) error
	InsertItems(ctx context.Context, items []Item) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error)
}

// CatalogPort supplies committed catalog state for validation and pricing.
type CatalogPort interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (catalog.Variant, error)
}

// ReservationPort commits and releases stock for whole orders. Release
// reports whether stock actually moved; an already-cancelled order is a no-op.
type ReservationPort interface {
	Reserve(ctx context.Context, orderID uuid.UUID, lines []reservation.Line) (uuid.UUID, error)
	Release(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// IdempotencyPort lets callers retry aborted order placements. ref carries
// the created order id so a retry after success recovers the stored order.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module, ref string) error
	Lookup(ctx context.Context, key, module string) (string, error)
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service assembles orders and runs their lifecycle.
type Service struct {
	db          TxRunner
	repo        RepositoryPort
	catalog     CatalogPort
	stock       ReservationPort
	clock       shared.Clock
	validate    *validator.Validate
	idempotency IdempotencyPort
	audit       AuditPort
}

// NewService builds Service. Idempotency and audit may be nil.
func NewService(db TxRunner, repo RepositoryPort, cat CatalogPort, stock ReservationPort, clock shared.Clock, idem IdempotencyPort, audit AuditPort) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		catalog:     cat,
		stock:       stock,
		clock:       clock,
		validate:    validator.New(),
		idempotency: idem,
		audit:       audit,
	}
}

// Create assembles an order: it validates every line, freezes unit prices via
// the pricing resolver at the current instant, computes the stored total, and
// commits the order rows together with the stock reservation in a single
// transaction. A failed reservation means no order exists afterwards. When a
// request carries an idempotency key that already committed, the stored order
// is returned instead of a duplicate.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Order, error) {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Order{}, &ValidationError{Line: -1, Msg: fieldErrs[0].Error()}
		}
		return Order{}, &ValidationError{Line: -1, Msg: err.Error()}
	}

	now := s.clock.Now()
	orderID := uuid.New()
	total := decimal.Zero
	items := make([]Item, 0, len(req.Lines))
	resLines := make([]reservation.Line, 0, len(req.Lines))

	for i, line := range req.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Order{}, &ValidationError{Line: i, Msg: fmt.Sprintf("unknown product %s", line.ProductID)}
			}
			return Order{}, err
		}

		var variant *catalog.Variant
		if line.VariantID != nil {
			v, err := s.catalog.GetVariant(ctx, line.ProductID, *line.VariantID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) || errors.Is(err, catalog.ErrVariantMismatch) {
					return Order{}, &ValidationError{Line: i, Msg: fmt.Sprintf("variant %s does not belong to product %s", line.VariantID, line.ProductID)}
				}
				return Order{}, err
			}
			variant = &v
		}

		quote := pricing.Resolve(product, variant, now)
		total = total.Add(quote.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
		items = append(items, Item{
			ID:           uuid.New(),
			OrderID:      orderID,
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			Quantity:     line.Quantity,
			UnitPrice:    quote.UnitPrice,
			PromoApplied: quote.PromoApplied,
		})
		resLines = append(resLines, reservation.Line{
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			Quantity:     line.Quantity,
			PromoApplied: quote.PromoApplied,
		})
	}

	insertedKey := false
	if s.idempotency != nil && req.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule, orderID.String()); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.replay(ctx, req.IdempotencyKey)
			}
			return Order{}, err
		}
		insertedKey = true
	}

	order := Order{ID: orderID, UserID: req.UserID, Status: StatusPending, Total: total, Items: items}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := s.repo.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if _, err := s.stock.Reserve(ctx, orderID, resLines); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey)
		}
		return Order{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.UserID.String(),
			Action:   "orders:create",
			Entity:   "order",
			EntityID: orderID.String(),
			Meta:     map[string]any{"total": total.String(), "lines": len(items)},
		})
	}
	return order, nil
}

const idempotencyModule = "orders"

// replay recovers the order a previous attempt with the same key committed.
// A failed attempt deletes its key, so a surviving key always points at a
// stored order.
func (s *Service) replay(ctx context.Context, key string) (Order, error) {
	ref, err := s.idempotency.Lookup(ctx, key, idempotencyModule)
	if err != nil {
		return Order{}, shared.ErrIdempotencyConflict
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return Order{}, shared.ErrIdempotencyConflict
	}
	return s.repo.Get(ctx, id)
}

// Transition moves the order to next, enforcing the state machine. Moving
// into cancelled delegates to the reservation release, which restores stock
// exactly once; re-cancelling an already-cancelled order is a no-op.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, next Status) (Order, error) {
	if !next.Valid() {
		return Order{}, &ValidationError{Line: -1, Msg: fmt.Sprintf("unknown status %q", next)}
	}

	changed := true
	switch next {
	case StatusCancelled:
		released, err := s.stock.Release(ctx, orderID)
		if err != nil {
			if errors.Is(err, reservation.ErrNotReleasable) {
				return Order{}, &IllegalTransitionError{From: StatusCompleted, To: StatusCancelled}
			}
			return Order{}, err
		}
		changed = released
	default:
		err := s.db.WithTx(ctx, func(ctx context.Context) error {
			head, err := s.repo.GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if !head.Status.CanTransitionTo(next) {
				return &IllegalTransitionError{From: head.Status, To: next}
			}
			return s.repo.SetStatus(ctx, orderID, next)
		})
		if err != nil {
			return Order{}, err
		}
	}

	// A repeated cancel changed nothing; auditing it would show two
	// cancellations for one stock release.
	if changed && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "orders:transition",
			Entity:   "order",
			EntityID: orderID.String(),
			Meta:     map[string]any{"to": string(next)},
		})
	}
	return s.repo.Get(ctx, orderID)
}

// Get loads the order aggregate.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (Order, error) {
	return s.repo.Get(ctx, orderID)
}

// ListByUser returns a user's order history.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	if userID == uuid.Nil {
		return nil, errors.New("orders: user id required")
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
