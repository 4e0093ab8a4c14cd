package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/eshop/internal/domain/delivery"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTiers_Percent(t *testing.T) {
	tests := []struct {
		orders int
		want   string
	}{
		{0, "0"},
		{4, "0"},
		{5, "5"},
		{9, "5"},
		{10, "10"},
		{42, "10"},
	}
	for _, tt := range tests {
		got := DefaultTiers.Percent(tt.orders)
		assert.True(t, d(tt.want).Equal(got), "orders=%d got %s", tt.orders, got)
	}
}

func TestTiers_PercentUnordered(t *testing.T) {
	tiers := Tiers{
		{MinOrders: 5, Percent: d("5")},
		{MinOrders: 10, Percent: d("10")},
	}
	assert.True(t, d("10").Equal(tiers.Percent(12)))
	assert.Equal(t, 10, tiers.Sorted()[0].MinOrders)
}

func TestSubtotal(t *testing.T) {
	items := []Item{
		{ProductID: 1, Price: d("0.10"), Quantity: 3},
		{ProductID: 2, Price: d("0.20"), Quantity: 1},
		{ProductID: 3, Price: d("19.99"), Quantity: 2},
	}
	assert.True(t, d("40.48").Equal(Subtotal(items)))
	assert.True(t, Subtotal(nil).IsZero())
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		items        []Item
		orders       int
		method       delivery.Method
		wantSubtotal string
		wantDiscount string
		wantDelivery string
		wantTotal    string
		wantDays     int
	}{
		{
			name:         "new customer standard minimum fee",
			items:        []Item{{ProductID: 1, Price: d("10.00"), Quantity: 2}},
			orders:       0,
			method:       delivery.Standard{},
			wantSubtotal: "20.00",
			wantDiscount: "0",
			wantDelivery: "2.00",
			wantTotal:    "22.00",
			wantDays:     5,
		},
		{
			name:         "silver tier at exactly five orders",
			items:        []Item{{ProductID: 1, Price: d("100.00"), Quantity: 1}},
			orders:       5,
			method:       delivery.Standard{},
			wantSubtotal: "100.00",
			wantDiscount: "5.00",
			wantDelivery: "5.00",
			wantTotal:    "100.00",
			wantDays:     5,
		},
		{
			name:         "gold tier at exactly ten orders express",
			items:        []Item{{ProductID: 1, Price: d("49.99"), Quantity: 2}},
			orders:       10,
			method:       delivery.Express{},
			wantSubtotal: "99.98",
			wantDiscount: "9.998",
			wantDelivery: "10.00",
			wantTotal:    "99.98",
			wantDays:     1,
		},
		{
			name:         "rounding happens once at the total",
			items:        []Item{{ProductID: 1, Price: d("10.01"), Quantity: 1}},
			orders:       5,
			method:       delivery.Express{},
			wantSubtotal: "10.01",
			wantDiscount: "0.5005",
			wantDelivery: "10.00",
			wantTotal:    "19.51",
			wantDays:     1,
		},
		{
			name:         "empty cart still pays minimum delivery",
			items:        nil,
			orders:       0,
			method:       delivery.Standard{},
			wantSubtotal: "0",
			wantDiscount: "0",
			wantDelivery: "2.00",
			wantTotal:    "2.00",
			wantDays:     5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Calculate(tt.items, tt.orders, DefaultTiers, tt.method)

			assert.True(t, d(tt.wantSubtotal).Equal(q.Subtotal), "subtotal %s", q.Subtotal)
			assert.True(t, d(tt.wantDiscount).Equal(q.Discount), "discount %s", q.Discount)
			assert.True(t, d(tt.wantDelivery).Equal(q.DeliveryCost), "delivery %s", q.DeliveryCost)
			assert.True(t, d(tt.wantTotal).Equal(q.Total), "total %s", q.Total)
			assert.Equal(t, tt.wantDays, q.DeliveryDays)

			// Total is the once-rounded sum of its parts and never negative.
			want := q.Subtotal.Sub(q.Discount).Add(q.DeliveryCost).Round(2)
			assert.True(t, want.Equal(q.Total))
			assert.False(t, q.Total.IsNegative())
		})
	}
}

func TestDiscount_NeverExceedsSubtotal(t *testing.T) {
	tiers := Tiers{{MinOrders: 0, Percent: d("150")}}
	got := tiers.Discount(d("20"), 0)
	assert.True(t, d("20").Equal(got))
}
