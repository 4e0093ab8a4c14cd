package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/pricing"
	"github.com/xenking/eshop/internal/domain/product"
)

// CartItem is a cart line priced at the current catalog price.
type CartItem struct {
	Product  product.Product
	Quantity int
	Subtotal decimal.Decimal
}

// CartView is a user's cart with live prices.
type CartView struct {
	UserID int64
	Items  []CartItem
	Total  decimal.Decimal
}

// Service manages registration and carts.
type Service struct {
	users    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a user Service.
func NewService(users Repository, products product.Repository) *Service {
	return &Service{users: users, products: products, now: time.Now}
}

// Register creates a user with a unique email.
func (s *Service) Register(ctx context.Context, name, email string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fault.InvalidArgumentf("name required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fault.InvalidArgumentf("malformed email %q", email)
	}

	u := &User{
		Name:         name,
		Email:        strings.ToLower(addr.Address),
		Cart:         map[int64]int{},
		RegisteredAt: s.now(),
	}
	if err := s.users.Save(ctx, u); err != nil {
		if errors.Is(err, fault.ErrInvalidArgument) {
			return nil, err
		}
		return nil, errors.Wrap(err, "save user")
	}

	zctx.From(ctx).Info("User registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.users.Get(ctx, id)
}

// AddToCart adds an active product to the user's cart.
func (s *Service) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*CartView, error) {
	if quantity <= 0 {
		return nil, fault.InvalidArgumentf("quantity must be greater than 0 for product %d", productID)
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, product.NotFound(productID)
	}

	u, err := s.users.Update(ctx, userID, func(u *User) error {
		return u.AddToCart(productID, quantity)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, u)
}

// RemoveFromCart drops a product from the user's cart.
func (s *Service) RemoveFromCart(ctx context.Context, userID, productID int64) (*CartView, error) {
	u, err := s.users.Update(ctx, userID, func(u *User) error {
		u.RemoveFromCart(productID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, u)
}

// ClearCart empties the user's cart.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.users.Update(ctx, userID, func(u *User) error {
		u.ClearCart()
		return nil
	})
	return err
}

// Cart returns the user's cart priced at current catalog prices.
func (s *Service) Cart(ctx context.Context, userID int64) (*CartView, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, u)
}

func (s *Service) view(ctx context.Context, u *User) (*CartView, error) {
	lines := u.CartLines()
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart products")
	}
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	v := &CartView{UserID: u.ID, Items: make([]CartItem, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		sub := pricing.LineTotal(p.Price, l.Quantity)
		v.Items = append(v.Items, CartItem{Product: p, Quantity: l.Quantity, Subtotal: sub})
		v.Total = v.Total.Add(sub)
	}
	return v, nil
}
