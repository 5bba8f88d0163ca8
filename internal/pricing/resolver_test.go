package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lojapet/lojapet-core/internal/catalog"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func moneyPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func baseProduct() catalog.Product {
	return catalog.Product{
		ID:    uuid.New(),
		Name:  "Ração Premium",
		Price: money("120.00"),
	}
}

func TestResolveBasePrice(t *testing.T) {
	p := baseProduct()
	quote := Resolve(p, nil, time.Now())
	require.True(t, quote.UnitPrice.Equal(money("120.00")))
	require.False(t, quote.PromoApplied)
}

func TestResolveTimeBoundPromotion(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	p := baseProduct()
	p.PromoPrice = moneyPtr("99.90")
	p.PromoKind = catalog.PromotionByTime
	p.PromoExpiresAt = &expires

	quote := Resolve(p, nil, expires.Add(-time.Hour))
	require.True(t, quote.UnitPrice.Equal(money("99.90")))
	require.True(t, quote.PromoApplied)

	quote = Resolve(p, nil, expires.Add(time.Hour))
	require.True(t, quote.UnitPrice.Equal(money("120.00")))
	require.False(t, quote.PromoApplied)

	// The boundary instant itself is still active.
	quote = Resolve(p, nil, expires)
	require.True(t, quote.PromoApplied)
}

func TestResolveQuantityBoundPromotion(t *testing.T) {
	maxUnits := int64(5)

	p := baseProduct()
	p.PromoPrice = moneyPtr("99.90")
	p.PromoKind = catalog.PromotionByQuantity
	p.PromoQuantityCap = &maxUnits
	p.PromoQuantitySold = 4

	quote := Resolve(p, nil, time.Now())
	require.True(t, quote.PromoApplied)

	p.PromoQuantitySold = 5
	quote = Resolve(p, nil, time.Now())
	require.False(t, quote.PromoApplied)
	require.True(t, quote.UnitPrice.Equal(money("120.00")))
}

func TestResolveEitherConditionDeactivates(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	maxUnits := int64(10)

	p := baseProduct()
	p.PromoPrice = moneyPtr("99.90")
	p.PromoKind = catalog.PromotionByTime
	p.PromoExpiresAt = &expires
	p.PromoQuantityCap = &maxUnits
	p.PromoQuantitySold = 3

	// Time-bound promo past its expiry is inactive even with cap headroom.
	require.False(t, PromotionActive(p, expires.Add(time.Minute)))

	// Quantity-bound promo at its cap is inactive even before the expiry.
	p.PromoKind = catalog.PromotionByQuantity
	p.PromoQuantitySold = 10
	require.False(t, PromotionActive(p, expires.Add(-time.Hour)))
}

func TestResolveVariantPriceWins(t *testing.T) {
	p := baseProduct()
	p.PromoPrice = moneyPtr("99.90")
	p.PromoKind = catalog.PromotionByTime

	v := catalog.Variant{
		ID:             uuid.New(),
		ProductID:      p.ID,
		SKU:            "RAC-PREM-25KG",
		Price:          money("260.00"),
		CompareAtPrice: moneyPtr("280.00"),
	}

	quote := Resolve(p, &v, time.Now())
	require.True(t, quote.UnitPrice.Equal(money("260.00")))
	require.False(t, quote.PromoApplied)
	require.NotNil(t, quote.CompareAt)
	require.True(t, quote.CompareAt.Equal(money("280.00")))
}

func TestResolveNoPromoPrice(t *testing.T) {
	p := baseProduct()
	p.PromoKind = catalog.PromotionByTime
	require.False(t, PromotionActive(p, time.Now()))
}
