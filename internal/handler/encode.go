package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
)

// Money is always rendered as a string with two decimals so clients never
// round-trip it through a float.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("manufacturer", func(e *jx.Encoder) { e.Str(p.Manufacturer) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(string(p.Category)) })
		e.Field("category_name", func(e *jx.Encoder) { e.Str(p.Category.DisplayName()) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("rating", func(e *jx.Encoder) { e.Float64(p.Rating) })
		e.Field("rating_count", func(e *jx.Encoder) { e.Int(p.RatingCount) })
	})
}

func encodeProducts(e *jx.Encoder, ps []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range ps {
			encodeProduct(e, p)
		}
	})
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(u.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(u.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
		e.Field("order_ids", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range u.OrderIDs {
					e.Int64(id)
				}
			})
		})
		e.Field("registered_at", func(e *jx.Encoder) { encodeTime(e, u.RegisteredAt) })
	})
}

func encodeCart(e *jx.Encoder, v *user.CartView) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(v.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range v.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product", func(e *jx.Encoder) { encodeProduct(e, item.Product) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, item.Subtotal) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, v.Total) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
						e.Field("product_name", func(e *jx.Encoder) { e.Str(l.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, l.Subtotal) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, o.Discount) })
		e.Field("delivery_cost", func(e *jx.Encoder) { encodeMoney(e, o.DeliveryCost) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("payment_reference", func(e *jx.Encoder) { e.Str(o.PaymentReference) })
		e.Field("delivery_method", func(e *jx.Encoder) { e.Str(o.DeliveryMethod) })
		e.Field("delivery_days", func(e *jx.Encoder) { e.Int(o.DeliveryDays) })
		e.Field("shipping_address", func(e *jx.Encoder) { e.Str(o.ShippingAddress) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}
