package fault

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NotFound("product", 7), "not_found"},
		{"wrapped not found", errors.Wrap(NotFound("user", 1), "get user"), "not_found"},
		{"invalid argument", InvalidArgumentf("rating %d out of range", 6), "invalid_argument"},
		{"insufficient stock", &InsufficientStockError{ProductID: 1, Available: 3, Requested: 4}, "insufficient_stock"},
		{"payment declined", &PaymentDeclinedError{Method: "PayPal", Amount: decimal.Zero}, "payment_declined"},
		{"forbidden", Forbiddenf("order %d", 1), "forbidden"},
		{"invalid state", InvalidStatef("delivered"), "invalid_state"},
		{"internal", errors.New("connection reset"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
			assert.Equal(t, tt.want != "internal", IsExpected(tt.err))
		})
	}
}

func TestInsufficientStockError(t *testing.T) {
	err := errors.Wrap(&InsufficientStockError{ProductID: 3, Name: "Book", Available: 3, Requested: 4}, "place order")

	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(3), stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Contains(t, err.Error(), "available 3, requested 4")
}

func TestPaymentDeclinedError_Message(t *testing.T) {
	err := &PaymentDeclinedError{
		Method: "Credit Card",
		Amount: decimal.RequireFromString("0.5"),
		Reason: "amount out of range",
	}
	assert.Equal(t, "payment of 0.50 via Credit Card declined: amount out of range", err.Error())
	assert.NotErrorIs(t, err, ErrInsufficientStock)
}
