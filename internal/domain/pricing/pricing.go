// Package pricing computes order totals: item subtotal, loyalty discount and
// delivery cost. All arithmetic is fixed-point.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/delivery"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Item is a priced line for subtotal calculation.
type Item struct {
	ProductID int64
	Price     decimal.Decimal
	Quantity  int
}

// Tier grants Percent off the subtotal once a user has MinOrders completed
// orders.
type Tier struct {
	MinOrders int
	Percent   decimal.Decimal
}

// Tiers is a loyalty discount schedule. The highest satisfied tier wins.
type Tiers []Tier

// DefaultTiers grants 5% from the 5th completed order and 10% from the 10th.
var DefaultTiers = Tiers{
	{MinOrders: 10, Percent: decimal.NewFromInt(10)},
	{MinOrders: 5, Percent: decimal.NewFromInt(5)},
}

// Percent returns the discount percentage for a user with orderCount
// completed orders.
func (t Tiers) Percent(orderCount int) decimal.Decimal {
	best := -1
	percent := zero
	for _, tier := range t {
		if orderCount >= tier.MinOrders && tier.MinOrders > best {
			best = tier.MinOrders
			percent = tier.Percent
		}
	}
	return percent
}

// Discount returns the loyalty discount on subtotal. It never exceeds the
// subtotal.
func (t Tiers) Discount(subtotal decimal.Decimal, orderCount int) decimal.Decimal {
	amount := subtotal.Mul(t.Percent(orderCount)).Div(hundred)
	return decimal.Min(floorAtZero(amount), floorAtZero(subtotal))
}

// Sorted returns a copy ordered by descending MinOrders.
func (t Tiers) Sorted() Tiers {
	out := append(Tiers(nil), t...)
	sort.Slice(out, func(i, j int) bool { return out[i].MinOrders > out[j].MinOrders })
	return out
}

// Quote is a fully priced order.
type Quote struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	DeliveryCost decimal.Decimal
	DeliveryDays int
	// Total is Subtotal - Discount + DeliveryCost, rounded to two decimal
	// places and floored at zero.
	Total decimal.Decimal
}

// Calculate prices items for a user with orderCount completed orders
// delivered by method. Rounding happens once, on the total.
func Calculate(items []Item, orderCount int, tiers Tiers, method delivery.Method) Quote {
	subtotal := Subtotal(items)
	discount := tiers.Discount(subtotal, orderCount)
	dq := method.Quote(subtotal)

	total := floorAtZero(subtotal.Sub(discount).Add(dq.Cost)).Round(2)

	return Quote{
		Subtotal:     subtotal,
		Discount:     discount,
		DeliveryCost: dq.Cost,
		DeliveryDays: dq.LeadDays,
		Total:        total,
	}
}

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(LineTotal(item.Price, item.Quantity))
	}
	return sum
}

// LineTotal returns price * quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
