// Package seed loads the demo catalog and customers.
package seed

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
)

// Users returns the demo customers.
func Users(now time.Time) []user.User {
	return []user.User{
		{Name: "Alisa Salimianova", Email: "alisa@example.com", Cart: map[int64]int{}, RegisteredAt: now},
		{Name: "John Doe", Email: "john@example.com", Cart: map[int64]int{}, RegisteredAt: now},
	}
}

// Products returns the demo catalog.
func Products(now time.Time) []product.Product {
	return []product.Product{
		{
			SKU:          "IPHONE-15-PRO",
			Name:         "iPhone 15 Pro",
			Description:  "Latest Apple smartphone with A17 Pro chip",
			Manufacturer: "Apple",
			Price:        decimal.RequireFromString("999.99"),
			Category:     product.CategoryElectronics,
			Stock:        50,
			Rating:       4.8,
			RatingCount:  1200,
			Active:       true,
			CreatedAt:    now,
		},
		{
			SKU:          "MBA-M2-13",
			Name:         "MacBook Air M2",
			Description:  "Apple laptop with M2 chip, 13-inch",
			Manufacturer: "Apple",
			Price:        decimal.RequireFromString("1199.99"),
			Category:     product.CategoryElectronics,
			Stock:        30,
			Rating:       4.7,
			RatingCount:  850,
			Active:       true,
			CreatedAt:    now,
		},
		{
			SKU:          "DP-BOOK-1",
			Name:         "Design Patterns Book",
			Description:  "Gang of Four design patterns book",
			Manufacturer: "Addison-Wesley",
			Price:        decimal.RequireFromString("49.99"),
			Category:     product.CategoryBooks,
			Stock:        100,
			Rating:       4.9,
			RatingCount:  1500,
			Active:       true,
			CreatedAt:    now,
		},
		{
			SKU:          "NIKE-AIRMAX-270",
			Name:         "Nike Air Max",
			Description:  "Running shoes with air cushioning",
			Manufacturer: "Nike",
			Price:        decimal.RequireFromString("129.99"),
			Category:     product.CategorySports,
			Stock:        200,
			Rating:       4.5,
			RatingCount:  2300,
			Active:       true,
			CreatedAt:    now,
		},
	}
}

// Load stores the demo users and products. Each collection is seeded only
// when its store is empty, so Load is safe to run on every start.
func Load(ctx context.Context, products product.Repository, users user.Repository, now time.Time) error {
	lg := zctx.From(ctx)

	existingUsers, err := users.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list users")
	}
	if len(existingUsers) == 0 {
		for _, u := range Users(now) {
			if err := users.Save(ctx, &u); err != nil {
				return errors.Wrapf(err, "save user %s", u.Email)
			}
			lg.Info("Seeded user", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
		}
	}

	existingProducts, err := products.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	if len(existingProducts) == 0 {
		for _, p := range Products(now) {
			if err := products.Save(ctx, &p); err != nil {
				return errors.Wrapf(err, "save product %s", p.SKU)
			}
			lg.Info("Seeded product", zap.Int64("product_id", p.ID), zap.String("sku", p.SKU))
		}
	}

	return nil
}
