// Package recommend ranks catalog products by rating.
package recommend

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
)

// MaxForUser caps personal recommendations.
const MaxForUser = 5

// Service computes product recommendations from the catalog and order history.
type Service struct {
	products product.Repository
	users    user.Repository
	orders   order.Repository
}

// NewService creates a recommendation Service.
func NewService(products product.Repository, users user.Repository, orders order.Repository) *Service {
	return &Service{products: products, users: users, orders: orders}
}

// TopRated returns up to limit active products, best rated first. Equal
// ratings keep catalog order. A non-positive limit returns every product.
func (s *Service) TopRated(ctx context.Context, limit int) ([]product.Product, error) {
	all, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return rank(all, func(product.Product) bool { return true }, limit), nil
}

// ForUser suggests products from the categories the user has bought from,
// excluding products already bought. Cancelled orders are ignored.
func (s *Service) ForUser(ctx context.Context, userID int64) ([]product.Product, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	history, err := s.orders.FindByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find orders by user")
	}

	bought := make(map[int64]struct{})
	for i := range history {
		if !history[i].Completed() {
			continue
		}
		for _, l := range history[i].Lines {
			bought[l.ProductID] = struct{}{}
		}
	}
	if len(bought) == 0 {
		return []product.Product{}, nil
	}

	all, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	categories := make(map[product.Category]struct{})
	for _, p := range all {
		if _, ok := bought[p.ID]; ok {
			categories[p.Category] = struct{}{}
		}
	}

	return rank(all, func(p product.Product) bool {
		if _, ok := bought[p.ID]; ok {
			return false
		}
		_, ok := categories[p.Category]
		return ok
	}, MaxForUser), nil
}

// rank filters active products with keep and orders them by rating. The input
// is in ascending ID order, so a stable sort breaks ties by catalog order.
func rank(all []product.Product, keep func(product.Product) bool, limit int) []product.Product {
	out := make([]product.Product, 0, len(all))
	for _, p := range all {
		if p.Active && keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
