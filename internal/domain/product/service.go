package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/fault"
)

// MaxPriceLimit is the upper bound accepted by the price filter.
var MaxPriceLimit = decimal.NewFromInt(10000)

// ParsePriceLimit parses a price filter value in [0, MaxPriceLimit].
func ParsePriceLimit(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fault.InvalidArgumentf("malformed price %q", s)
	}
	if d.IsNegative() || d.GreaterThan(MaxPriceLimit) {
		return decimal.Zero, fault.InvalidArgumentf("price must be between 0 and %s", MaxPriceLimit)
	}
	return d, nil
}

// CreateRequest holds the input for adding a product to the catalog.
type CreateRequest struct {
	SKU          string
	Name         string
	Description  string
	Manufacturer string
	Price        decimal.Decimal
	Category     Category
	Stock        int
}

// Service exposes catalog browsing and management on top of a Repository.
type Service struct {
	products Repository
	now      func() time.Time
}

// NewService creates a catalog Service backed by the given Repository.
func NewService(products Repository) *Service {
	return &Service{products: products, now: time.Now}
}

// Get returns an active product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, NotFound(id)
	}
	return p, nil
}

// ListActive returns every active product in catalog order.
func (s *Service) ListActive(ctx context.Context) ([]Product, error) {
	all, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return activeOnly(all), nil
}

// ByCategory returns active products of the given category.
func (s *Service) ByCategory(ctx context.Context, c Category) ([]Product, error) {
	if _, err := ParseCategory(string(c)); err != nil {
		return nil, err
	}
	found, err := s.products.FindByCategory(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "find by category")
	}
	return activeOnly(found), nil
}

// UnderPrice returns active products priced at or below maxPrice.
func (s *Service) UnderPrice(ctx context.Context, maxPrice decimal.Decimal) ([]Product, error) {
	if maxPrice.IsNegative() || maxPrice.GreaterThan(MaxPriceLimit) {
		return nil, fault.InvalidArgumentf("price must be between 0 and %s", MaxPriceLimit)
	}
	all, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(all))
	for _, p := range all {
		if p.Price.LessThanOrEqual(maxPrice) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Validate checks the fields of a new catalog entry.
func (r CreateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.SKU) == "":
		return fault.InvalidArgumentf("sku required")
	case strings.TrimSpace(r.Name) == "":
		return fault.InvalidArgumentf("name required")
	case r.Price.IsNegative():
		return fault.InvalidArgumentf("price must not be negative")
	case r.Stock < 0:
		return fault.InvalidArgumentf("stock must not be negative")
	}
	_, err := ParseCategory(string(r.Category))
	return err
}

// Create validates and stores a new active product.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.products.FindBySKU(ctx, req.SKU)
	switch {
	case err == nil:
		return nil, fault.InvalidArgumentf("product with sku %s already exists (id %d)", req.SKU, existing.ID)
	case !errors.Is(err, fault.ErrNotFound):
		return nil, errors.Wrap(err, "find by sku")
	}

	p := &Product{
		SKU:          req.SKU,
		Name:         req.Name,
		Description:  req.Description,
		Manufacturer: req.Manufacturer,
		Price:        req.Price,
		Category:     req.Category,
		Stock:        req.Stock,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.products.Save(ctx, p); err != nil {
		return nil, errors.Wrap(err, "save product")
	}

	zctx.From(ctx).Info("Product created",
		zap.Int64("product_id", p.ID),
		zap.String("sku", p.SKU),
	)
	return p, nil
}

// Bounds for catalog edits.
const (
	MinNameLength        = 3
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
)

var (
	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.NewFromInt(1_000_000)
)

// UpdateRequest holds a partial catalog edit. Nil fields are unchanged.
type UpdateRequest struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Active      *bool
}

// Validate checks the fields that are set.
func (r UpdateRequest) Validate() error {
	if r.Name == nil && r.Description == nil && r.Price == nil && r.Active == nil {
		return fault.InvalidArgumentf("nothing to update")
	}
	if r.Name != nil {
		if n := len([]rune(strings.TrimSpace(*r.Name))); n < MinNameLength || n > MaxNameLength {
			return fault.InvalidArgumentf("name must be between %d and %d characters", MinNameLength, MaxNameLength)
		}
	}
	if r.Description != nil && len([]rune(*r.Description)) > MaxDescriptionLength {
		return fault.InvalidArgumentf("description must be at most %d characters", MaxDescriptionLength)
	}
	if r.Price != nil && (r.Price.LessThan(MinPrice) || r.Price.GreaterThan(MaxPrice)) {
		return fault.InvalidArgumentf("price must be between %s and %s", MinPrice, MaxPrice)
	}
	return nil
}

// Update applies a partial edit to a product's descriptive fields and
// price. Stock and ratings are untouched.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	patch := Patch{
		Description: req.Description,
		Price:       req.Price,
		Active:      req.Active,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		patch.Name = &name
	}

	p, err := s.products.Patch(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Product updated",
		zap.Int64("product_id", id),
		zap.String("price", p.Price.String()),
		zap.Bool("active", p.Active),
	)
	return p, nil
}

// Deactivate hides a product from listings and ordering.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	inactive := false
	if _, err := s.products.Patch(ctx, id, Patch{Active: &inactive}); err != nil {
		return err
	}
	zctx.From(ctx).Info("Product deactivated", zap.Int64("product_id", id))
	return nil
}

// Restock adds quantity units to a product's stock.
func (s *Service) Restock(ctx context.Context, id int64, quantity int) (*Product, error) {
	if quantity <= 0 {
		return nil, fault.InvalidArgumentf("restock quantity must be greater than 0")
	}
	if err := s.products.Release(ctx, []StockChange{{ProductID: id, Quantity: quantity}}); err != nil {
		return nil, err
	}
	return s.products.Get(ctx, id)
}

// Rate records a 1..5 rating for a product.
func (s *Service) Rate(ctx context.Context, id int64, rating int) (*Product, error) {
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}
	p, err := s.products.Rate(ctx, id, rating)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Product rated",
		zap.Int64("product_id", id),
		zap.Int("rating", rating),
		zap.Float64("mean", p.Rating),
		zap.Int("count", p.RatingCount),
	)
	return p, nil
}

func activeOnly(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}
