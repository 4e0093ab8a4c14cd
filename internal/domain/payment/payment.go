// Package payment implements the shop's payment methods.
//
// Settlement is simulated: no gateway is contacted. A production collaborator
// would implement the same contract against a real gateway.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/fault"
)

// Result is the outcome of a charge. A rejected charge is a normal outcome,
// not an error.
type Result struct {
	Accepted bool
	// Reference identifies an accepted charge for refunds.
	Reference string
	// Reason explains a rejection.
	Reason string
}

// Method is a payment option. The set of implementations is closed:
// CreditCard and PayPal.
type Method interface {
	// Code is the stable identifier used in requests.
	Code() string
	// Name is the display name recorded on orders.
	Name() string
	// Process charges amount. It returns an error only when ctx ends before
	// settlement completes.
	Process(ctx context.Context, amount decimal.Decimal) (Result, error)
	// Refund compensates a previously accepted charge.
	Refund(ctx context.Context, amount decimal.Decimal, res Result) error

	sealed()
}

var (
	creditCardMin = decimal.RequireFromString("1.00")
	creditCardMax = decimal.RequireFromString("10000.00")
)

// CreditCard accepts charges within [1.00, 10000.00].
type CreditCard struct {
	// Delay simulates the settlement round-trip.
	Delay time.Duration
}

func (CreditCard) Code() string { return "credit_card" }
func (CreditCard) Name() string { return "Credit Card" }

func (c CreditCard) Process(ctx context.Context, amount decimal.Decimal) (Result, error) {
	if amount.LessThan(creditCardMin) || amount.GreaterThan(creditCardMax) {
		return record(ctx, c, amount, Result{
			Reason: "amount must be between " + creditCardMin.StringFixed(2) + " and " + creditCardMax.StringFixed(2),
		}), nil
	}
	return settle(ctx, c, amount, c.Delay)
}

func (c CreditCard) Refund(ctx context.Context, amount decimal.Decimal, res Result) error {
	return refund(ctx, c, amount, res)
}

func (CreditCard) sealed() {}

// PayPal accepts any positive charge.
type PayPal struct {
	// Delay simulates the settlement round-trip.
	Delay time.Duration
}

func (PayPal) Code() string { return "paypal" }
func (PayPal) Name() string { return "PayPal" }

func (p PayPal) Process(ctx context.Context, amount decimal.Decimal) (Result, error) {
	if !amount.IsPositive() {
		return record(ctx, p, amount, Result{Reason: "amount must be positive"}), nil
	}
	return settle(ctx, p, amount, p.Delay)
}

func (p PayPal) Refund(ctx context.Context, amount decimal.Decimal, res Result) error {
	return refund(ctx, p, amount, res)
}

func (PayPal) sealed() {}

// Methods resolves payment methods by code with a shared settlement delay.
type Methods struct {
	Delay time.Duration
}

// Lookup returns the payment method registered under code.
func (m Methods) Lookup(code string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case CreditCard{}.Code():
		return CreditCard{Delay: m.Delay}, nil
	case PayPal{}.Code():
		return PayPal{Delay: m.Delay}, nil
	default:
		return nil, fault.InvalidArgumentf("unknown payment method %q", code)
	}
}

func settle(ctx context.Context, m Method, amount decimal.Decimal, delay time.Duration) (Result, error) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return record(ctx, m, amount, Result{Accepted: true, Reference: uuid.NewString()}), nil
}

func record(ctx context.Context, m Method, amount decimal.Decimal, res Result) Result {
	lg := zctx.From(ctx).With(
		zap.String("method", m.Name()),
		zap.String("amount", amount.StringFixed(2)),
	)
	if res.Accepted {
		lg.Info("Payment accepted", zap.String("reference", res.Reference))
	} else {
		lg.Info("Payment rejected", zap.String("reason", res.Reason))
	}
	return res
}

func refund(ctx context.Context, m Method, amount decimal.Decimal, res Result) error {
	if !res.Accepted {
		return nil
	}
	zctx.From(ctx).Info("Payment refunded",
		zap.String("method", m.Name()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reference", res.Reference),
	)
	return nil
}
