// Package pricing computes the effective unit price of a product or variant
// at a point in time. It is a pure function of committed catalog state; prices
// it returns are frozen onto order items and never recomputed.
package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lojapet/lojapet-core/internal/catalog"
)

// Quote is the resolved price for one order line.
type Quote struct {
	UnitPrice decimal.Decimal
	// CompareAt is informational only (variant strike-through pricing).
	CompareAt *decimal.Decimal
	// PromoApplied records that the promotional price was used, which later
	// drives promotion-quota accounting during reservation and release.
	PromoApplied bool
}

// PromotionActive reports whether the product's promotional price applies at
// asOf. With both an expiry and a cap set, either condition alone deactivates
// the promotion.
func PromotionActive(p catalog.Product, asOf time.Time) bool {
	if p.PromoPrice == nil {
		return false
	}
	if p.PromoKind == catalog.PromotionByTime && p.PromoExpiresAt != nil && asOf.After(*p.PromoExpiresAt) {
		return false
	}
	if p.PromoKind == catalog.PromotionByQuantity && p.PromoQuantityCap != nil && p.PromoQuantitySold >= *p.PromoQuantityCap {
		return false
	}
	return true
}

// Resolve computes the unit price for a line. A variant's own price takes
// precedence over the product's pricing; promotions apply only to
// variant-less lines.
func Resolve(p catalog.Product, v *catalog.Variant, asOf time.Time) Quote {
	if v != nil {
		return Quote{UnitPrice: v.Price, CompareAt: v.CompareAtPrice}
	}
	if PromotionActive(p, asOf) {
		return Quote{UnitPrice: *p.PromoPrice, PromoApplied: true}
	}
	return Quote{UnitPrice: p.Price}
}

// CatalogPort is the read surface the resolver needs.
type CatalogPort interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	GetVariant(ctx context.Context, productID, variantID uuid.UUID) (catalog.Variant, error)
}

// Resolver resolves prices from the catalog by id, verifying variant
// ownership on the way.
type Resolver struct {
	catalog CatalogPort
}

// NewResolver builds Resolver.
func NewResolver(cat CatalogPort) *Resolver {
	return &Resolver{catalog: cat}
}

// ResolveUnitPrice implements the external resolveUnitPrice contract.
func (r *Resolver) ResolveUnitPrice(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, asOf time.Time) (Quote, error) {
	p, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return Quote{}, err
	}
	if variantID == nil {
		return Resolve(p, nil, asOf), nil
	}
	v, err := r.catalog.GetVariant(ctx, productID, *variantID)
	if err != nil {
		return Quote{}, err
	}
	return Resolve(p, &v, asOf), nil
}
