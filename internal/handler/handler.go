// Package handler exposes the shop services over HTTP with JSON bodies.
package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/payment"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/recommend"
	"github.com/xenking/eshop/internal/domain/user"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// Payments resolves payment method codes from requests.
	Payments payment.Methods
	// TopRatedLimit is used when a top-rated query has no limit.
	TopRatedLimit int
}

// Handler serves the shop API, delegating business logic to the domain
// services.
type Handler struct {
	products  *product.Service
	users     *user.Service
	orders    *order.Service
	recommend *recommend.Service

	payments      payment.Methods
	topRatedLimit int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products *product.Service,
	users *user.Service,
	orders *order.Service,
	rec *recommend.Service,
) *Handler {
	limit := cfg.TopRatedLimit
	if limit <= 0 {
		limit = 10
	}
	return &Handler{
		products:      products,
		users:         users,
		orders:        orders,
		recommend:     rec,
		payments:      cfg.Payments,
		topRatedLimit: limit,
	}
}

// Register adds all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/products", h.CreateProduct)
	mux.HandleFunc("GET /api/products/top", h.TopRated)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("PATCH /api/products/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.DeactivateProduct)
	mux.HandleFunc("POST /api/products/{id}/ratings", h.RateProduct)
	mux.HandleFunc("POST /api/products/{id}/stock", h.RestockProduct)

	mux.HandleFunc("POST /api/users", h.RegisterUser)
	mux.HandleFunc("GET /api/users/{id}", h.GetUser)
	mux.HandleFunc("GET /api/users/{id}/cart", h.GetCart)
	mux.HandleFunc("POST /api/users/{id}/cart", h.AddToCart)
	mux.HandleFunc("DELETE /api/users/{id}/cart", h.ClearCart)
	mux.HandleFunc("DELETE /api/users/{id}/cart/{productId}", h.RemoveFromCart)
	mux.HandleFunc("POST /api/users/{id}/checkout", h.Checkout)
	mux.HandleFunc("GET /api/users/{id}/orders", h.UserOrders)
	mux.HandleFunc("GET /api/users/{id}/recommendations", h.Recommendations)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/repeat", h.RepeatOrder)
	mux.HandleFunc("PUT /api/orders/{id}/status", h.UpdateOrderStatus)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.InvalidArgumentf("malformed %s %q", name, raw)
	}
	return id, nil
}

// decodeBody reads the request body and passes an object decoder to fn.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		if errors.Is(err, fault.ErrInvalidArgument) {
			return err
		}
		return fault.InvalidArgumentf("malformed request body: %s", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// statusOf maps domain outcomes to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrInvalidState), errors.Is(err, fault.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, fault.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal faults are logged and their details hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}

	var stockErr *fault.InsufficientStockError
	hasStock := errors.As(err, &stockErr)

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("kind", func(e *jx.Encoder) { e.Str(fault.Kind(err)) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			if hasStock {
				e.Field("product_id", func(e *jx.Encoder) { e.Int64(stockErr.ProductID) })
				e.Field("available", func(e *jx.Encoder) { e.Int(stockErr.Available) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(stockErr.Requested) })
			}
		})
	})
}
