package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/domain/fault"
)

func TestCreditCard_Process(t *testing.T) {
	tests := []struct {
		amount   string
		accepted bool
	}{
		{"0.99", false},
		{"1.00", true},
		{"250.50", true},
		{"10000.00", true},
		{"10000.01", false},
		{"-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			res, err := CreditCard{}.Process(context.Background(), decimal.RequireFromString(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, res.Accepted)
			if tt.accepted {
				assert.NotEmpty(t, res.Reference)
			} else {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestPayPal_Process(t *testing.T) {
	tests := []struct {
		amount   string
		accepted bool
	}{
		{"0", false},
		{"-0.01", false},
		{"0.01", true},
		{"25000", true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			res, err := PayPal{}.Process(context.Background(), decimal.RequireFromString(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, res.Accepted)
		})
	}
}

func TestProcess_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := PayPal{Delay: time.Second}.Process(ctx, decimal.NewFromInt(10))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMethods_Lookup(t *testing.T) {
	methods := Methods{Delay: time.Millisecond}

	m, err := methods.Lookup("credit_card")
	require.NoError(t, err)
	assert.Equal(t, "Credit Card", m.Name())
	assert.Equal(t, CreditCard{Delay: time.Millisecond}, m)

	m, err = methods.Lookup("PayPal")
	require.NoError(t, err)
	assert.Equal(t, "paypal", m.Code())

	_, err = methods.Lookup("bitcoin")
	require.ErrorIs(t, err, fault.ErrInvalidArgument)
}

func TestRefund(t *testing.T) {
	amount := decimal.NewFromInt(20)
	res, err := CreditCard{}.Process(context.Background(), amount)
	require.NoError(t, err)
	require.NoError(t, CreditCard{}.Refund(context.Background(), amount, res))
	require.NoError(t, PayPal{}.Refund(context.Background(), amount, Result{}))
}
