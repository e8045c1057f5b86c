// Package main provides a CLI tool for seeding the ledger with demo stock.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"pharmledger/internal/app"
	"pharmledger/internal/config"
	appctx "pharmledger/internal/core/context"
	"pharmledger/internal/core/types"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/pkg/logger"
)

const seedUserID = "seed"

type productSeed struct {
	name         string
	unitsPerPack int64
	packsPerBox  int64
	price        string
	// shelf and backroom boxes, received daysAgo, expiring in months
	shelf, backroom int64
	daysAgo         int
	expiryMonths    int
}

var demoProducts = []productSeed{
	{"Paracetamol 500mg", 10, 10, "0.25", 2, 5, 30, 18},
	{"Amoxicillin 500mg", 7, 3, "1.10", 3, 4, 12, 9},
	{"Ibuprofen 200mg", 12, 4, "0.40", 2, 2, 90, 1},
	{"Cetirizine 10mg", 10, 3, "0.35", 1, 3, 5, 24},
	{"Omeprazole 20mg", 14, 2, "0.80", 1, 1, 45, 6},
}

var demoPolicies = []struct {
	name string
	rate string
}{
	{"Senior citizen", "20"},
	{"Staff", "10"},
	{"Loyalty card", "5"},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext(appctx.OriginCLI))
	ctx = logger.WithLogger(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	if err := seedProducts(ctx, a.Inventory, log); err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}
	if err := seedPolicies(ctx, a.Sales, log); err != nil {
		log.Fatalw("failed to seed discount policies", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedProducts(ctx context.Context, svc *inventory.Service, log *logger.Logger) error {
	now := time.Now().UTC()

	for _, s := range demoProducts {
		existing, err := svc.ListProducts(ctx, inventory.ProductFilter{Search: s.name, Limit: 1})
		if err != nil {
			return err
		}
		if len(existing) > 0 && strings.EqualFold(existing[0].Name, s.name) {
			log.Infow("product already exists", "name", s.name, "product_id", existing[0].ID)
			continue
		}

		p := &inventory.Product{
			Name:         s.name,
			UnitsPerPack: s.unitsPerPack,
			PacksPerBox:  s.packsPerBox,
			SellingPrice: types.MustMoney(s.price),
		}
		if err := svc.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}

		received := now.AddDate(0, 0, -s.daysAgo)
		expiry := now.AddDate(0, s.expiryMonths, 0)
		for loc, boxes := range map[inventory.Location]int64{
			inventory.LocationShelf:    s.shelf,
			inventory.LocationBackroom: s.backroom,
		} {
			if boxes == 0 {
				continue
			}
			if _, err := svc.ReceiveBatch(ctx, inventory.ReceiveRequest{
				ProductID:    p.ID,
				Containers:   boxes,
				Location:     loc,
				ReceivedDate: received,
				ExpiryDate:   &expiry,
				UserID:       seedUserID,
				Remarks:      "demo stock",
			}); err != nil {
				return fmt.Errorf("receive %s: %w", s.name, err)
			}
		}
		log.Infow("product seeded", "name", s.name, "product_id", p.ID)
	}
	return nil
}

func seedPolicies(ctx context.Context, svc *sales.Service, log *logger.Logger) error {
	existing, err := svc.ListDiscountPolicies(ctx, false)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = true
	}

	for _, s := range demoPolicies {
		if have[strings.ToLower(s.name)] {
			continue
		}
		p := &sales.DiscountPolicy{Name: s.name, Rate: decimal.RequireFromString(s.rate), IsActive: true}
		if err := svc.CreateDiscountPolicy(ctx, p); err != nil {
			return fmt.Errorf("create policy %s: %w", s.name, err)
		}
		log.Infow("discount policy seeded", "name", s.name, "rate", s.rate)
	}
	return nil
}
