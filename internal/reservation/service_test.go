package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lojapet/lojapet-core/internal/ledger"
)

// memState is the shared mutable world behind the fakes. memRunner serialises
// transactions with a mutex and restores a snapshot on rollback, which is the
// same observable behaviour the row locks and the database transaction give
// the real repository.
type memProduct struct {
	stock         int64
	promoSold     int64
	promoCap      *int64
	quantityBound bool
}

type memOrder struct {
	status string
	lines  []Line
}

type memState struct {
	products  map[uuid.UUID]memProduct
	variants  map[uuid.UUID]int64
	orders    map[uuid.UUID]memOrder
	movements []ledger.Movement
}

func newMemState() *memState {
	return &memState{
		products: make(map[uuid.UUID]memProduct),
		variants: make(map[uuid.UUID]int64),
		orders:   make(map[uuid.UUID]memOrder),
	}
}

func (s *memState) snapshot() *memState {
	cp := newMemState()
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.variants {
		cp.variants[k] = v
	}
	for k, v := range s.orders {
		cp.orders[k] = memOrder{status: v.status, lines: append([]Line(nil), v.lines...)}
	}
	cp.movements = append([]ledger.Movement(nil), s.movements...)
	return cp
}

func (s *memState) restore(snap *memState) {
	s.products = snap.products
	s.variants = snap.variants
	s.orders = snap.orders
	s.movements = snap.movements
}

// ledgerSum returns the running sum of movements for one stock pool.
func (s *memState) ledgerSum(productID uuid.UUID, variantID *uuid.UUID) int64 {
	var sum int64
	for _, m := range s.movements {
		if m.ProductID != productID {
			continue
		}
		if (m.VariantID == nil) != (variantID == nil) {
			continue
		}
		if variantID != nil && *m.VariantID != *variantID {
			continue
		}
		sum += m.Quantity
	}
	return sum
}

type memRunner struct {
	mu    sync.Mutex
	state *memState
}

func (r *memRunner) WithTx(ctx context.Context, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.state.snapshot()
	if err := fn(ctx); err != nil {
		r.state.restore(snap)
		return err
	}
	return nil
}

type memRepo struct {
	state *memState
}

func (r *memRepo) LockProduct(_ context.Context, productID uuid.UUID) (ProductStock, error) {
	p, ok := r.state.products[productID]
	if !ok {
		return ProductStock{}, errors.New("product not found")
	}
	return ProductStock{Stock: p.stock, PromoSold: p.promoSold, PromoCap: p.promoCap, QuantityBound: p.quantityBound}, nil
}

func (r *memRepo) LockVariant(_ context.Context, variantID uuid.UUID) (int64, error) {
	stock, ok := r.state.variants[variantID]
	if !ok {
		return 0, errors.New("variant not found")
	}
	return stock, nil
}

func (r *memRepo) UpdateProduct(_ context.Context, productID uuid.UUID, stock, promoSold int64) error {
	p := r.state.products[productID]
	p.stock = stock
	p.promoSold = promoSold
	r.state.products[productID] = p
	return nil
}

func (r *memRepo) UpdateVariantStock(_ context.Context, variantID uuid.UUID, stock int64) error {
	r.state.variants[variantID] = stock
	return nil
}

func (r *memRepo) LockOrder(_ context.Context, orderID uuid.UUID) (OrderHead, error) {
	o, ok := r.state.orders[orderID]
	if !ok {
		return OrderHead{}, errors.New("order not found")
	}
	return OrderHead{ID: orderID, Status: o.status}, nil
}

func (r *memRepo) OrderLines(_ context.Context, orderID uuid.UUID) ([]Line, error) {
	return append([]Line(nil), r.state.orders[orderID].lines...), nil
}

func (r *memRepo) MarkCancelled(_ context.Context, orderID uuid.UUID) error {
	o := r.state.orders[orderID]
	o.status = statusCancelled
	r.state.orders[orderID] = o
	return nil
}

type memLedger struct {
	state *memState
}

func (l *memLedger) Record(_ context.Context, m ledger.Movement) error {
	l.state.movements = append(l.state.movements, m)
	return nil
}

func newTestService(state *memState) *Service {
	runner := &memRunner{state: state}
	return NewService(runner, &memRepo{state: state}, &memLedger{state: state}, fixedClock{}, nil, time.Second)
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func seedProduct(state *memState, stock int64) uuid.UUID {
	id := uuid.New()
	state.products[id] = memProduct{stock: stock}
	state.movements = append(state.movements, ledger.Movement{
		ID:        uuid.New(),
		ProductID: id,
		Type:      ledger.MovementIn,
		Quantity:  stock,
		Reason:    "initial stock",
	})
	return id
}

func TestReserveDecrementsStockAndAppendsMovement(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)

	orderID := uuid.New()
	resID, err := svc.Reserve(context.Background(), orderID, []Line{
		{ProductID: productID, Quantity: 3},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, resID)

	require.Equal(t, int64(7), state.products[productID].stock)
	require.Equal(t, state.products[productID].stock, state.ledgerSum(productID, nil))

	last := state.movements[len(state.movements)-1]
	require.Equal(t, ledger.MovementOut, last.Type)
	require.Equal(t, int64(-3), last.Quantity)
	require.Equal(t, "order:"+orderID.String(), last.Reference)
}

func TestReserveRejectsEmptyOrder(t *testing.T) {
	svc := newTestService(newMemState())
	_, err := svc.Reserve(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, ErrNoLines)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)
	movementsBefore := len(state.movements)

	for _, qty := range []int64{0, -5} {
		_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
			{ProductID: productID, Quantity: qty},
		})
		var iqe *InvalidQuantityError
		require.ErrorAs(t, err, &iqe)
		require.Equal(t, 0, iqe.Line)
		require.Equal(t, qty, iqe.Quantity)
	}

	// Rejected before any transaction: stock untouched, nothing appended.
	require.Equal(t, int64(10), state.products[productID].stock)
	require.Len(t, state.movements, movementsBefore)
}

func TestReserveRejectsBadLineAmongGoodOnes(t *testing.T) {
	state := newMemState()
	first := seedProduct(state, 10)
	second := seedProduct(state, 10)
	svc := newTestService(state)

	_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: first, Quantity: 2},
		{ProductID: second, Quantity: -1},
	})
	var iqe *InvalidQuantityError
	require.ErrorAs(t, err, &iqe)
	require.Equal(t, 1, iqe.Line)
	require.Equal(t, int64(10), state.products[first].stock)
	require.Equal(t, int64(10), state.products[second].stock)
}

func TestReserveConcurrentContention(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
				{ProductID: productID, Quantity: 6},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		var ise *InsufficientStockError
		require.ErrorAs(t, err, &ise)
		require.Equal(t, int64(6), ise.Requested)
		require.Equal(t, int64(4), ise.Available)
		insufficient++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.Equal(t, int64(4), state.products[productID].stock)
	require.Equal(t, state.products[productID].stock, state.ledgerSum(productID, nil))
}

func TestReservePartialFailureRollsBackWholeOrder(t *testing.T) {
	state := newMemState()
	first := seedProduct(state, 10)
	second := seedProduct(state, 1)
	svc := newTestService(state)

	movementsBefore := len(state.movements)
	_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: first, Quantity: 2},
		{ProductID: second, Quantity: 5},
	})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, second, ise.ProductID)

	// Nothing moved, including lines that individually had stock.
	require.Equal(t, int64(10), state.products[first].stock)
	require.Equal(t, int64(1), state.products[second].stock)
	require.Len(t, state.movements, movementsBefore)
}

func TestReservePromotionHeadroom(t *testing.T) {
	maxUnits := int64(5)
	state := newMemState()
	productID := seedProduct(state, 100)
	p := state.products[productID]
	p.promoCap = &maxUnits
	p.promoSold = 4
	p.quantityBound = true
	state.products[productID] = p
	svc := newTestService(state)

	_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: productID, Quantity: 2, PromoApplied: true},
	})
	var pee *PromotionExhaustedError
	require.ErrorAs(t, err, &pee)
	require.Equal(t, int64(4), pee.Sold)
	require.Equal(t, int64(5), pee.Cap)

	// Counter and stock untouched after the rejection.
	require.Equal(t, int64(4), state.products[productID].promoSold)
	require.Equal(t, int64(100), state.products[productID].stock)

	// One unit still fits under the cap.
	_, err = svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: productID, Quantity: 1, PromoApplied: true},
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), state.products[productID].promoSold)
}

func TestReservePromoCounterWithoutQuantityBound(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)

	// Time-bound promotions track sold units but have no headroom check.
	_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: productID, Quantity: 8, PromoApplied: true},
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), state.products[productID].promoSold)
}

func TestReserveVariantPoolIsIndependent(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 2)
	variantID := uuid.New()
	state.variants[variantID] = 20
	state.movements = append(state.movements, ledger.Movement{
		ID: uuid.New(), ProductID: productID, VariantID: &variantID,
		Type: ledger.MovementIn, Quantity: 20, Reason: "initial stock",
	})
	svc := newTestService(state)

	// Variant line draws from the variant pool even though the product pool
	// could not cover it.
	_, err := svc.Reserve(context.Background(), uuid.New(), []Line{
		{ProductID: productID, VariantID: &variantID, Quantity: 5},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), state.products[productID].stock)
	require.Equal(t, int64(15), state.variants[variantID])
	require.Equal(t, int64(15), state.ledgerSum(productID, &variantID))
	require.Equal(t, int64(2), state.ledgerSum(productID, nil))
}

func TestReleaseRestoresStockAndQuota(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	p := state.products[productID]
	p.quantityBound = true
	state.products[productID] = p
	svc := newTestService(state)

	orderID := uuid.New()
	lines := []Line{{ProductID: productID, Quantity: 3, PromoApplied: true}}
	_, err := svc.Reserve(context.Background(), orderID, lines)
	require.NoError(t, err)
	state.orders[orderID] = memOrder{status: statusPending, lines: lines}

	released, err := svc.Release(context.Background(), orderID)
	require.NoError(t, err)
	require.True(t, released)

	require.Equal(t, int64(10), state.products[productID].stock)
	require.Equal(t, int64(0), state.products[productID].promoSold)
	require.Equal(t, statusCancelled, state.orders[orderID].status)
	require.Equal(t, int64(10), state.ledgerSum(productID, nil))

	last := state.movements[len(state.movements)-1]
	require.Equal(t, ledger.MovementIn, last.Type)
	require.Equal(t, "order cancelled", last.Reason)
}

func TestReleaseIsIdempotent(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)

	orderID := uuid.New()
	lines := []Line{{ProductID: productID, Quantity: 4}}
	_, err := svc.Reserve(context.Background(), orderID, lines)
	require.NoError(t, err)
	state.orders[orderID] = memOrder{status: statusPending, lines: lines}

	released, err := svc.Release(context.Background(), orderID)
	require.NoError(t, err)
	require.True(t, released)
	movements := len(state.movements)

	// Second release sees the cancelled status and does nothing.
	released, err = svc.Release(context.Background(), orderID)
	require.NoError(t, err)
	require.False(t, released)
	require.Equal(t, int64(10), state.products[productID].stock)
	require.Len(t, state.movements, movements)
}

func TestReleaseRejectsCompletedOrder(t *testing.T) {
	state := newMemState()
	orderID := uuid.New()
	state.orders[orderID] = memOrder{status: "completed"}
	svc := newTestService(state)

	_, err := svc.Release(context.Background(), orderID)
	require.ErrorIs(t, err, ErrNotReleasable)
}

func TestReleaseRejectsCorruptedLine(t *testing.T) {
	state := newMemState()
	productID := seedProduct(state, 10)
	svc := newTestService(state)

	orderID := uuid.New()
	state.orders[orderID] = memOrder{status: statusPending, lines: []Line{
		{ProductID: productID, Quantity: 0},
	}}

	released, err := svc.Release(context.Background(), orderID)
	var iqe *InvalidQuantityError
	require.ErrorAs(t, err, &iqe)
	require.False(t, released)
	require.Equal(t, statusPending, state.orders[orderID].status)
	require.Equal(t, int64(10), state.products[productID].stock)
}

func TestLockOrderIsDeterministic(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	v := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	lines := []Line{
		{ProductID: b, Quantity: 1},
		{ProductID: a, VariantID: &v, Quantity: 1},
		{ProductID: a, Quantity: 1},
	}
	// Product a before b; within a, the variant-less line sorts first.
	require.Equal(t, []int{2, 1, 0}, lockOrderOf(lines))
}
