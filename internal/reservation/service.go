// Package reservation commits and releases stock for whole orders. It is the
// only writer of order-driven stock movements and promotion counters, and the
// only place availability is enforced, always under row locks.
package reservation

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lojapet/lojapet-core/internal/ledger"
	"github.com/lojapet/lojapet-core/internal/shared"
)

const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusCancelled  = "cancelled"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// RepositoryPort abstracts the locked reads and writes the service needs.
type RepositoryPort interface {
	LockProduct(ctx context.Context, productID uuid.UUID) (ProductStock, error)
	LockVariant(ctx context.Context, variantID uuid.UUID) (int64, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, stock, promoSold int64) error
	UpdateVariantStock(ctx context.Context, variantID uuid.UUID, stock int64) error
	LockOrder(ctx context.Context, orderID uuid.UUID) (OrderHead, error)
	OrderLines(ctx context.Context, orderID uuid.UUID) ([]Line, error)
	MarkCancelled(ctx context.Context, orderID uuid.UUID) error
}

// LedgerPort records movements through the ledger's single append path.
type LedgerPort interface {
	Record(ctx context.Context, m ledger.Movement) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates atomic whole-order stock commitment.
type Service struct {
	db      TxRunner
	repo    RepositoryPort
	ledger  LedgerPort
	clock   shared.Clock
	audit   AuditPort
	timeout time.Duration
}

// NewService builds Service. timeout bounds each reserve/release transaction;
// zero disables the bound.
func NewService(db TxRunner, repo RepositoryPort, led LedgerPort, clock shared.Clock, audit AuditPort, timeout time.Duration) *Service {
	return &Service{db: db, repo: repo, ledger: led, clock: clock, audit: audit, timeout: timeout}
}

// Reserve atomically checks and decrements stock for every line of the order,
// increments promotion counters for promo-priced lines, and appends the
// matching ledger movements. It is all-or-nothing: the first failing line
// rolls back the whole transaction and is reported with its index.
//
// Rows are locked in a consistent (product id, variant id) order across all
// lines so two multi-line orders cannot deadlock against each other.
func (s *Service) Reserve(ctx context.Context, orderID uuid.UUID, lines []Line) (uuid.UUID, error) {
	if len(lines) == 0 {
		return uuid.Nil, ErrNoLines
	}
	for i, line := range lines {
		if line.Quantity <= 0 {
			return uuid.Nil, &InvalidQuantityError{Line: i, Quantity: line.Quantity}
		}
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	reservationID := uuid.New()
	now := s.clock.Now()

	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		for _, i := range lockOrderOf(lines) {
			line := lines[i]
			if line.VariantID != nil {
				if err := s.reserveVariantLine(ctx, orderID, i, line, now); err != nil {
					return err
				}
				continue
			}
			if err := s.reserveProductLine(ctx, orderID, i, line, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "reservation:reserve",
			Entity:   "order",
			EntityID: orderID.String(),
			Meta:     map[string]any{"reservation_id": reservationID.String(), "lines": len(lines)},
		})
	}
	return reservationID, nil
}

// Release restores the order's stock with compensating in movements, returns
// consumed promotion quota, and marks the order cancelled in one transaction.
// Calling it on an already-cancelled order is a no-op, so concurrent cancels
// cannot double-restock. The returned bool reports whether stock actually
// moved, letting callers distinguish a release from a repeat.
func (s *Service) Release(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	released := false
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		head, err := s.repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		switch head.Status {
		case statusCancelled:
			return nil
		case statusPending, statusProcessing:
		default:
			return ErrNotReleasable
		}

		lines, err := s.repo.OrderLines(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, i := range lockOrderOf(lines) {
			if err := s.releaseLine(ctx, orderID, lines[i], now); err != nil {
				return err
			}
		}
		released = true
		return s.repo.MarkCancelled(ctx, orderID)
	})
	if err != nil {
		return false, err
	}

	if released && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "reservation:release",
			Entity:   "order",
			EntityID: orderID.String(),
		})
	}
	return released, nil
}

func (s *Service) reserveProductLine(ctx context.Context, orderID uuid.UUID, idx int, line Line, now time.Time) error {
	ps, err := s.repo.LockProduct(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("lock product %s: %w", line.ProductID, err)
	}
	if ps.Stock < line.Quantity {
		return &InsufficientStockError{
			Line:      idx,
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Available: ps.Stock,
		}
	}

	promoSold := ps.PromoSold
	if line.PromoApplied {
		if ps.QuantityBound && ps.PromoCap != nil && ps.PromoSold+line.Quantity > *ps.PromoCap {
			return &PromotionExhaustedError{
				Line:      idx,
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Sold:      ps.PromoSold,
				Cap:       *ps.PromoCap,
			}
		}
		promoSold += line.Quantity
	}

	if err := s.repo.UpdateProduct(ctx, line.ProductID, ps.Stock-line.Quantity, promoSold); err != nil {
		return err
	}
	return s.ledger.Record(ctx, outMovement(orderID, line, now))
}

func (s *Service) reserveVariantLine(ctx context.Context, orderID uuid.UUID, idx int, line Line, now time.Time) error {
	stock, err := s.repo.LockVariant(ctx, *line.VariantID)
	if err != nil {
		return fmt.Errorf("lock variant %s: %w", line.VariantID, err)
	}
	if stock < line.Quantity {
		return &InsufficientStockError{
			Line:      idx,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Requested: line.Quantity,
			Available: stock,
		}
	}
	if err := s.repo.UpdateVariantStock(ctx, *line.VariantID, stock-line.Quantity); err != nil {
		return err
	}
	return s.ledger.Record(ctx, outMovement(orderID, line, now))
}

func (s *Service) releaseLine(ctx context.Context, orderID uuid.UUID, line Line, now time.Time) error {
	if line.Quantity <= 0 {
		return &InvalidQuantityError{Line: -1, Quantity: line.Quantity}
	}
	if line.VariantID != nil {
		stock, err := s.repo.LockVariant(ctx, *line.VariantID)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateVariantStock(ctx, *line.VariantID, stock+line.Quantity); err != nil {
			return err
		}
	} else {
		ps, err := s.repo.LockProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		promoSold := ps.PromoSold
		if line.PromoApplied {
			promoSold -= line.Quantity
			if promoSold < 0 {
				promoSold = 0
			}
		}
		if err := s.repo.UpdateProduct(ctx, line.ProductID, ps.Stock+line.Quantity, promoSold); err != nil {
			return err
		}
	}

	return s.ledger.Record(ctx, ledger.Movement{
		ID:         uuid.New(),
		ProductID:  line.ProductID,
		VariantID:  line.VariantID,
		Type:       ledger.MovementIn,
		Quantity:   line.Quantity,
		Reason:     "order cancelled",
		Reference:  orderRef(orderID),
		OccurredAt: now,
	})
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func outMovement(orderID uuid.UUID, line Line, now time.Time) ledger.Movement {
	return ledger.Movement{
		ID:         uuid.New(),
		ProductID:  line.ProductID,
		VariantID:  line.VariantID,
		Type:       ledger.MovementOut,
		Quantity:   -line.Quantity,
		Reason:     "order reservation",
		Reference:  orderRef(orderID),
		OccurredAt: now,
	}
}

func orderRef(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

// lockOrderOf returns line indices sorted by (product id, variant id) so all
// transactions acquire row locks in the same global order.
func lockOrderOf(lines []Line) []int {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		la, lb := lines[order[a]], lines[order[b]]
		if c := bytes.Compare(la.ProductID[:], lb.ProductID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(variantKey(la), variantKey(lb)) < 0
	})
	return order
}

func variantKey(l Line) []byte {
	if l.VariantID == nil {
		return nil
	}
	return l.VariantID[:]
}
