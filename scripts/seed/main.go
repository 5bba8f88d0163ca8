package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lojapet/lojapet-core/internal/app"
	"github.com/lojapet/lojapet-core/internal/catalog"
	"github.com/lojapet/lojapet-core/internal/ledger"
	"github.com/lojapet/lojapet-core/internal/orders"
	"github.com/lojapet/lojapet-core/internal/platform/db"
	"github.com/lojapet/lojapet-core/internal/reservation"
	"github.com/lojapet/lojapet-core/internal/shared"
)

type seedVariant struct {
	name  string
	sku   string
	price string
	stock int64
}

type seedProduct struct {
	code       string
	name       string
	desc       string
	price      string
	promoPrice string
	promoKind  catalog.PromotionKind
	promoCap   int64
	promoDays  int
	stock      int64
	variants   []seedVariant
}

var catalogData = map[string][]seedProduct{
	"Ração para Cães": {
		{
			code: "RAC-PREM", name: "Ração Premium para Cães Adultos",
			desc:  "Ração super premium para cães adultos de porte médio.",
			price: "120.00", stock: 50,
			variants: []seedVariant{
				{name: "10kg", sku: "RAC-PREM-10KG", price: "120.00", stock: 50},
				{name: "25kg", sku: "RAC-PREM-25KG", price: "260.00", stock: 20},
			},
		},
		{
			code: "RAC-LIGHT", name: "Ração Light para Cães",
			desc:  "Baixo teor de gordura para controle de peso.",
			price: "150.00", promoPrice: "129.90", promoKind: catalog.PromotionByTime, promoDays: 14, stock: 40,
		},
	},
	"Brinquedos": {
		{
			code: "BRQ-CORDA", name: "Brinquedo de Corda",
			desc:  "Corda trançada resistente para cães.",
			price: "29.90", promoPrice: "19.90", promoKind: catalog.PromotionByQuantity, promoCap: 30, stock: 100,
		},
	},
}

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer database.Close()

	clock := shared.SystemClock{}
	catalogService := catalog.NewService(catalog.NewRepository(database), nil)
	ledgerRepo := ledger.NewRepository(database)
	ledgerService := ledger.NewService(database, ledgerRepo, clock, nil)

	var demoProductID uuid.UUID

	for categoryName, products := range catalogData {
		fmt.Printf("→ Seeding %s...\n", categoryName)
		cat, err := catalogService.CreateCategory(ctx, catalog.Category{Name: categoryName})
		if err != nil {
			log.Fatalf("seed category %s: %v", categoryName, err)
		}

		for _, sp := range products {
			product := catalog.Product{
				Code:        sp.code,
				Name:        sp.name,
				Description: sp.desc,
				Price:       decimal.RequireFromString(sp.price),
				MinStock:    5,
				Available:   true,
				CategoryID:  cat.ID,
			}
			if sp.promoPrice != "" {
				promo := decimal.RequireFromString(sp.promoPrice)
				product.PromoPrice = &promo
				product.PromoKind = sp.promoKind
				if sp.promoKind == catalog.PromotionByTime {
					expires := clock.Now().AddDate(0, 0, sp.promoDays)
					product.PromoExpiresAt = &expires
				}
				if sp.promoKind == catalog.PromotionByQuantity {
					maxUnits := sp.promoCap
					product.PromoQuantityCap = &maxUnits
				}
			}

			created, err := catalogService.CreateProduct(ctx, product)
			if err != nil {
				log.Fatalf("seed product %s: %v", sp.name, err)
			}
			if demoProductID == uuid.Nil && sp.stock > 0 {
				demoProductID = created.ID
			}

			// Initial stock arrives through the ledger so the running
			// sum matches the cached quantity from day one.
			if sp.stock > 0 {
				if _, err := ledgerService.Append(ctx, ledger.AppendInput{
					ProductID: created.ID,
					Type:      ledger.MovementIn,
					Quantity:  sp.stock,
					Reason:    "initial stock",
					ActorID:   "seed",
				}); err != nil {
					log.Fatalf("seed stock %s: %v", sp.name, err)
				}
			}

			for _, sv := range sp.variants {
				variant, err := catalogService.CreateVariant(ctx, catalog.Variant{
					ProductID: created.ID,
					Name:      sv.name,
					SKU:       sv.sku,
					Price:     decimal.RequireFromString(sv.price),
				})
				if err != nil {
					log.Fatalf("seed variant %s: %v", sv.sku, err)
				}
				if sv.stock > 0 {
					variantID := variant.ID
					if _, err := ledgerService.Append(ctx, ledger.AppendInput{
						ProductID: created.ID,
						VariantID: &variantID,
						Type:      ledger.MovementIn,
						Quantity:  sv.stock,
						Reason:    "initial stock",
						ActorID:   "seed",
					}); err != nil {
						log.Fatalf("seed variant stock %s: %v", sv.sku, err)
					}
				}
			}
		}
	}

	seedDemoOrder(ctx, database, catalogService, ledgerRepo, clock, cfg.ReserveTimeout, demoProductID)

	fmt.Printf("Done at %s\n", time.Now().Format(time.RFC3339))
}

// seedDemoOrder runs one order through its full cycle: create with a frozen
// price, then cancel so the compensating movements land in the ledger and the
// seeded stock is left untouched.
func seedDemoOrder(ctx context.Context, database *db.DB, catalogService *catalog.Service, ledgerRepo *ledger.Repository, clock shared.Clock, reserveTimeout time.Duration, productID uuid.UUID) {
	if productID == uuid.Nil {
		return
	}
	fmt.Println("→ Seeding demo order...")

	reservationService := reservation.NewService(database, reservation.NewRepository(database), ledgerRepo, clock, nil, reserveTimeout)
	idempotency := shared.NewIdempotencyStore(database.Pool())
	ordersService := orders.NewService(database, orders.NewRepository(database), catalogService, reservationService, clock, idempotency, nil)

	demoUser := uuid.New()
	order, err := ordersService.Create(ctx, orders.CreateRequest{
		UserID:         demoUser,
		Lines:          []orders.CreateLine{{ProductID: productID, Quantity: 2}},
		IdempotencyKey: "seed:demo-order:" + demoUser.String(),
	})
	if err != nil {
		log.Fatalf("seed demo order: %v", err)
	}
	if _, err := ordersService.Transition(ctx, order.ID, orders.StatusCancelled); err != nil {
		log.Fatalf("cancel demo order: %v", err)
	}
	fmt.Printf("  order %s: total %s, cancelled with stock restored\n", order.ID, order.Total)
}
