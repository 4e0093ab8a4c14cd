// Package fault defines the error taxonomy shared by the shop domain packages.
//
// Every expected outcome is matched with errors.Is against one of the
// sentinel values below. Anything that does not match is an internal fault.
package fault

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is matched by errors for absent users, products and orders.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is matched by errors for malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientStock is matched when a line requests more than is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentDeclined is matched when the payment method rejects the charge.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrForbidden is matched when an order does not belong to the caller.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState is matched when an order status transition is not permitted.
	ErrInvalidState = errors.New("invalid state")
)

// NotFoundError names the missing entity. Key is set instead of ID for
// lookups by a natural key such as an email or SKU.
type NotFoundError struct {
	Entity string
	ID     int64
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound returns a NotFoundError for the given entity kind and id.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NotFoundKey returns a NotFoundError for a lookup by natural key.
func NotFoundKey(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// InsufficientStockError reports the offending product with its available
// and requested quantities.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): available %d, requested %d",
		e.ProductID, e.Name, e.Available, e.Requested)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PaymentDeclinedError describes a rejected charge.
type PaymentDeclinedError struct {
	Method string
	Amount decimal.Decimal
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment of %s via %s declined: %s", e.Amount.StringFixed(2), e.Method, e.Reason)
}

// Is reports whether target is ErrPaymentDeclined.
func (e *PaymentDeclinedError) Is(target error) bool {
	return target == ErrPaymentDeclined
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...any) error {
	return errors.Wrapf(ErrForbidden, format, args...)
}

// InvalidStatef wraps ErrInvalidState with a formatted message.
func InvalidStatef(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

var expected = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrInsufficientStock,
	ErrPaymentDeclined,
	ErrForbidden,
	ErrInvalidState,
}

// IsExpected reports whether err is a business outcome rather than a fault.
// Expected outcomes are surfaced to the caller and never logged as errors.
func IsExpected(err error) bool {
	return Kind(err) != "internal"
}

// Kind returns a short label for err, used for log fields and metric
// attributes. Unknown errors are reported as "internal".
func Kind(err error) string {
	for _, e := range expected {
		if errors.Is(err, e) {
			switch e {
			case ErrNotFound:
				return "not_found"
			case ErrInvalidArgument:
				return "invalid_argument"
			case ErrInsufficientStock:
				return "insufficient_stock"
			case ErrPaymentDeclined:
				return "payment_declined"
			case ErrForbidden:
				return "forbidden"
			case ErrInvalidState:
				return "invalid_state"
			}
		}
	}
	return "internal"
}
