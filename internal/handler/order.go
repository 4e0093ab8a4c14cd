package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/eshop/internal/domain/delivery"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/payment"
)

// checkoutBody is the payment and delivery part shared by order requests.
type checkoutBody struct {
	paymentCode  string
	deliveryCode string
	address      string
}

func (b *checkoutBody) decodeField(d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "payment_method":
		b.paymentCode, err = d.Str()
	case "delivery_method":
		b.deliveryCode, err = d.Str()
	case "shipping_address":
		b.address, err = d.Str()
	default:
		return false, nil
	}
	return true, err
}

func (h *Handler) resolveMethods(b checkoutBody) (payment.Method, delivery.Method, error) {
	pm, err := h.payments.Lookup(b.paymentCode)
	if err != nil {
		return nil, nil, err
	}
	dm, err := delivery.Parse(b.deliveryCode)
	if err != nil {
		return nil, nil, err
	}
	return pm, dm, nil
}

// PlaceOrder places an order for explicit items.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var (
		userID int64
		items  []order.Item
		body   checkoutBody
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if ok, err := body.decodeField(d, key); ok {
			return err
		}
		switch key {
		case "user_id":
			v, err := d.Int64()
			userID = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item order.Item
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "product_id":
						item.ProductID, err = d.Int64()
					case "quantity":
						item.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				items = append(items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}

	pm, dm, err := h.resolveMethods(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:          userID,
		Items:           items,
		Payment:         pm,
		Delivery:        dm,
		ShippingAddress: body.address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// Checkout places an order for the user's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body checkoutBody
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if ok, err := body.decodeField(d, key); ok {
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, r, err)
		return
	}

	pm, dm, err := h.resolveMethods(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          userID,
		Payment:         pm,
		Delivery:        dm,
		ShippingAddress: body.address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns an order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UserOrders lists a user's orders.
func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.UserOrders(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, list) })
}

// decodeCaller reads the acting user from {"user_id": n}.
func decodeCaller(r *http.Request) (int64, error) {
	var userID int64
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "user_id" {
			v, err := d.Int64()
			userID = v
			return err
		}
		return d.Skip()
	})
	return userID, err
}

// CancelOrder cancels the caller's order and restores stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := decodeCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.CancelOrder(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// RepeatOrder copies the caller's order into their cart.
func (h *Handler) RepeatOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := decodeCaller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.RepeatOrder(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderStatus moves an order to a new fulfilment status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var raw string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "status" {
			v, err := d.Str()
			raw = v
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
