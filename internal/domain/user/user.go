package user

import (
	"context"
	"sort"
	"time"

	"github.com/xenking/eshop/internal/domain/fault"
)

// CartLine is a product reference with a positive quantity.
type CartLine struct {
	ProductID int64
	Quantity  int
}

// User is a registered customer with a cart and an order history.
type User struct {
	ID    int64
	Name  string
	Email string
	// Cart maps product id to quantity; a product appears at most once.
	Cart map[int64]int
	// OrderIDs is append-only.
	OrderIDs     []int64
	RegisteredAt time.Time
}

// AddToCart adds quantity units of a product to the cart.
func (u *User) AddToCart(productID int64, quantity int) error {
	if quantity <= 0 {
		return fault.InvalidArgumentf("quantity must be greater than 0 for product %d", productID)
	}
	if u.Cart == nil {
		u.Cart = make(map[int64]int)
	}
	u.Cart[productID] += quantity
	return nil
}

// RemoveFromCart drops a product from the cart.
func (u *User) RemoveFromCart(productID int64) {
	delete(u.Cart, productID)
}

// ClearCart empties the cart.
func (u *User) ClearCart() {
	clear(u.Cart)
}

// ConsumeCart removes ordered quantities from the cart. Lines whose quantity
// drops to zero are deleted.
func (u *User) ConsumeCart(lines []CartLine) {
	for _, l := range lines {
		left, ok := u.Cart[l.ProductID]
		if !ok {
			continue
		}
		if left -= l.Quantity; left > 0 {
			u.Cart[l.ProductID] = left
		} else {
			delete(u.Cart, l.ProductID)
		}
	}
}

// CartLines returns the cart ordered by product id.
func (u *User) CartLines() []CartLine {
	lines := make([]CartLine, 0, len(u.Cart))
	for id, qty := range u.Cart {
		lines = append(lines, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

// AppendOrder records a successfully placed order.
func (u *User) AppendOrder(orderID int64) {
	u.OrderIDs = append(u.OrderIDs, orderID)
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Cart = make(map[int64]int, len(u.Cart))
	for k, v := range u.Cart {
		c.Cart[k] = v
	}
	c.OrderIDs = append([]int64(nil), u.OrderIDs...)
	return &c
}

// NotFound returns the error reported for a missing user.
func NotFound(id int64) error {
	return fault.NotFound("user", id)
}

// Repository persists users.
type Repository interface {
	// Save stores u. A zero ID is replaced with a fresh, monotonically
	// increasing one; an existing ID fully replaces the stored record.
	// An email already used by another user is rejected with
	// fault.ErrInvalidArgument.
	Save(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Update applies fn to the stored user as one atomic read-modify-write.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, id int64, fn func(u *User) error) (*User, error)
}
