package product

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/fault"
)

// Category groups catalog items for browsing and recommendations.
type Category string

const (
	CategoryElectronics Category = "ELECTRONICS"
	CategoryClothing    Category = "CLOTHING"
	CategoryBooks       Category = "BOOKS"
	CategorySports      Category = "SPORTS"
	CategoryHome        Category = "HOME"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryBooks,
	CategorySports,
	CategoryHome,
}

// DisplayName returns the human-readable category name.
func (c Category) DisplayName() string {
	switch c {
	case CategoryElectronics:
		return "Electronics"
	case CategoryClothing:
		return "Clothing"
	case CategoryBooks:
		return "Books"
	case CategorySports:
		return "Sports"
	case CategoryHome:
		return "Home"
	default:
		return string(c)
	}
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fault.InvalidArgumentf("unknown category %q", s)
}

// Rating bounds accepted by ApplyRating.
const (
	MinRating = 1
	MaxRating = 5
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID           int64
	SKU          string
	Name         string
	Description  string
	Manufacturer string
	Price        decimal.Decimal
	Category     Category
	Stock        int
	Rating       float64
	RatingCount  int
	Active       bool
	CreatedAt    time.Time
}

// ValidateRating checks that v lies within [MinRating, MaxRating].
func ValidateRating(v int) error {
	if v < MinRating || v > MaxRating {
		return fault.InvalidArgumentf("rating must be between %d and %d, got %d", MinRating, MaxRating, v)
	}
	return nil
}

// ApplyRating folds v into the running mean.
func (p *Product) ApplyRating(v int) error {
	if err := ValidateRating(v); err != nil {
		return err
	}
	total := p.Rating*float64(p.RatingCount) + float64(v)
	p.RatingCount++
	p.Rating = total / float64(p.RatingCount)
	return nil
}

// NotFound returns the error reported for a missing product.
func NotFound(id int64) error {
	return fault.NotFound("product", id)
}

// StockChange is a quantity to take from or return to a product's stock.
type StockChange struct {
	ProductID int64
	Quantity  int
}

// Patch lists the descriptive fields to overwrite. Nil fields are left as
// stored. Stock and rating are never part of a patch.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Active      *bool
}

// Apply copies the set fields of patch onto p.
func (patch Patch) Apply(p *Product) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
}

// Repository is the catalog store. It is the sole mutator of stock and rating.
type Repository interface {
	// Save stores p. A zero ID is replaced with a fresh, monotonically
	// increasing one; an existing ID fully replaces the stored record.
	Save(ctx context.Context, p *Product) error
	Get(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// List returns every product in catalog order (ascending ID).
	List(ctx context.Context) ([]Product, error)
	FindByCategory(ctx context.Context, c Category) ([]Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	// Patch writes only the fields set in p and returns the updated record.
	// Concurrent stock and rating changes are preserved.
	Patch(ctx context.Context, id int64, p Patch) (*Product, error)

	// Reserve atomically checks and decrements stock for every change.
	// Either all changes apply or none do; a shortfall is reported as
	// *fault.InsufficientStockError.
	Reserve(ctx context.Context, changes []StockChange) error
	// Release returns stock, the inverse of Reserve.
	Release(ctx context.Context, changes []StockChange) error
	// Rate applies a rating to the product's running mean and returns the
	// updated record.
	Rate(ctx context.Context, id int64, rating int) (*Product, error)
}
