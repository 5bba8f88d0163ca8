package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PromotionKind distinguishes how a promotional price expires.
type PromotionKind string

const (
	// PromotionByTime keeps the promo price active until a fixed instant.
	PromotionByTime PromotionKind = "by-time"
	// PromotionByQuantity keeps the promo price active while cumulative
	// sold units stay below the cap.
	PromotionByQuantity PromotionKind = "by-quantity"
)

// Product is a sellable catalog entry. Stock and PromoQuantitySold are
// denormalised projections owned by the reservation and ledger code paths;
// catalog writes never touch them.
type Product struct {
	ID                uuid.UUID
	Code              string
	Slug              string
	Name              string
	Description       string
	Price             decimal.Decimal
	PromoPrice        *decimal.Decimal
	PromoKind         PromotionKind
	PromoExpiresAt    *time.Time
	PromoQuantityCap  *int64
	PromoQuantitySold int64
	Stock             int64
	MinStock          int64
	Available         bool
	CategoryID        uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Variant is independently stocked and priced; its price always wins over the
// parent product's pricing, promotional or not.
type Variant struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	Name           string
	SKU            string
	Price          decimal.Decimal
	CompareAtPrice *decimal.Decimal
	Stock          int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Category groups products. It cannot be deleted while referenced.
type Category struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Image is a display asset attached to a product.
type Image struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	URL       string
	Alt       string
	IsMain    bool
	Position  int
}

// LowStockEntry is a row of the restock report.
type LowStockEntry struct {
	ProductID uuid.UUID
	Name      string
	Stock     int64
	MinStock  int64
}

var (
	// ErrSlugTaken indicates a duplicate product or category slug.
	ErrSlugTaken = errors.New("catalog: slug already in use")
	// ErrSKUTaken indicates a duplicate variant SKU.
	ErrSKUTaken = errors.New("catalog: sku already in use")
	// ErrCategoryInUse prevents deleting a category still referenced by products.
	ErrCategoryInUse = errors.New("catalog: category referenced by products")
	// ErrVariantMismatch indicates the variant does not belong to the product.
	ErrVariantMismatch = errors.New("catalog: variant does not belong to product")
)
