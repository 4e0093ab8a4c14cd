// Package delivery implements the shop's delivery methods.
package delivery

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/fault"
)

// Quote is the cost and lead time of delivering an order.
type Quote struct {
	Cost     decimal.Decimal
	LeadDays int
}

// Method is a delivery option. The set of implementations is closed:
// Standard and Express.
type Method interface {
	// Code is the stable identifier used in requests.
	Code() string
	// Name is the display name recorded on orders.
	Name() string
	// Quote prices delivery for an order with the given items subtotal.
	Quote(subtotal decimal.Decimal) Quote

	sealed()
}

var (
	standardRate    = decimal.RequireFromString("0.05")
	standardMinimum = decimal.RequireFromString("2.00")
	expressFlat     = decimal.RequireFromString("10.00")
)

// Standard costs 5% of the subtotal with a 2.00 minimum and takes 5 days.
type Standard struct{}

func (Standard) Code() string { return "standard" }
func (Standard) Name() string { return "Standard Delivery" }

func (Standard) Quote(subtotal decimal.Decimal) Quote {
	return Quote{
		Cost:     decimal.Max(standardMinimum, subtotal.Mul(standardRate)),
		LeadDays: 5,
	}
}

func (Standard) sealed() {}

// Express costs a flat 10.00 and takes 1 day.
type Express struct{}

func (Express) Code() string { return "express" }
func (Express) Name() string { return "Express Delivery" }

func (Express) Quote(decimal.Decimal) Quote {
	return Quote{Cost: expressFlat, LeadDays: 1}
}

func (Express) sealed() {}

// Parse resolves a delivery method by its code.
func Parse(code string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case Standard{}.Code():
		return Standard{}, nil
	case Express{}.Code():
		return Express{}, nil
	default:
		return nil, fault.InvalidArgumentf("unknown delivery method %q", code)
	}
}
