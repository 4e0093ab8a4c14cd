package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/product"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the permitted next states for each status. Delivered may
// only be re-affirmed; Cancelled is terminal.
var transitions = map[Status][]Status{
	StatusProcessing: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusDelivered},
	StatusCancelled:  nil,
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", fault.InvalidArgumentf("unknown order status %q", s)
	}
	return st, nil
}

// CanTransition reports whether an order in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Line is an order line with product name and price snapshotted at order
// creation.
type Line struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Order is a placed customer order. Pricing fields never change after
// creation.
type Order struct {
	ID               int64
	UserID           int64
	Lines            []Line
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	DeliveryCost     decimal.Decimal
	Total            decimal.Decimal
	Status           Status
	PaymentMethod    string
	PaymentReference string
	DeliveryMethod   string
	DeliveryDays     int
	ShippingAddress  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transition moves the order to next, enforcing the status state machine.
func (o *Order) Transition(next Status, now time.Time) error {
	if !o.Status.CanTransition(next) {
		return fault.InvalidStatef("order %d cannot move from %s to %s", o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Completed reports whether the order counts towards loyalty discounts.
func (o *Order) Completed() bool {
	return o.Status != StatusCancelled
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}

// NotFound returns the error reported for a missing order.
func NotFound(id int64) error {
	return fault.NotFound("order", id)
}

// Repository persists orders.
type Repository interface {
	// Save stores o. A zero ID is replaced with a fresh, monotonically
	// increasing one; an existing ID fully replaces the stored record.
	Save(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	// List returns every order in ascending ID order.
	List(ctx context.Context) ([]Order, error)
	FindByUser(ctx context.Context, userID int64) ([]Order, error)
	FindByStatus(ctx context.Context, status Status) ([]Order, error)
	// Update applies fn to the stored order as one atomic read-modify-write.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, id int64, fn func(o *Order) error) (*Order, error)
}

// StockReturner is implemented by stores that can return stock to the
// catalog in the same transaction as an order write. fn returns the changes
// to add back; when fn or the stock write fails nothing is written.
type StockReturner interface {
	UpdateReturningStock(ctx context.Context, id int64, fn func(o *Order) ([]product.StockChange, error)) (*Order, error)
}
