package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/product"
)

// ListProducts returns active products, optionally filtered by category and
// maximum price.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		list []product.Product
		err  error
	)
	if raw := q.Get("category"); raw != "" {
		c, perr := product.ParseCategory(raw)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		list, err = h.products.ByCategory(ctx, c)
	} else {
		list, err = h.products.ListActive(ctx)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if raw := q.Get("max_price"); raw != "" {
		limit, err := product.ParsePriceLimit(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filtered := list[:0]
		for _, p := range list {
			if p.Price.LessThanOrEqual(limit) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, list) })
}

// GetProduct returns one active product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// TopRated returns the best rated active products.
func (h *Handler) TopRated(w http.ResponseWriter, r *http.Request) {
	limit := h.topRatedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, fault.InvalidArgumentf("malformed limit %q", raw))
			return
		}
		limit = n
	}
	list, err := h.recommend.TopRated(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, list) })
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.CreateRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			req.SKU, err = d.Str()
		case "name":
			req.Name, err = d.Str()
		case "description":
			req.Description, err = d.Str()
		case "manufacturer":
			req.Manufacturer, err = d.Str()
		case "price":
			req.Price, err = decodeDecimal(d)
		case "category":
			var raw string
			if raw, err = d.Str(); err == nil {
				req.Category, err = product.ParseCategory(raw)
			}
		case "stock":
			req.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// UpdateProduct applies a partial edit. Absent fields are left unchanged.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req product.UpdateRequest
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			req.Name = &v
			return err
		case "description":
			v, err := d.Str()
			req.Description = &v
			return err
		case "price":
			v, err := decodeDecimal(d)
			req.Price = &v
			return err
		case "active":
			v, err := d.Bool()
			req.Active = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// DeactivateProduct hides a product from the catalog.
func (h *Handler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Deactivate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RateProduct records a 1..5 rating.
func (h *Handler) RateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rating := 0
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "rating" {
			v, err := d.Int()
			rating = v
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Rate(r.Context(), id, rating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// RestockProduct adds units to a product's stock.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity := 0
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "quantity" {
			v, err := d.Int()
			quantity = v
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Restock(r.Context(), id, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// decodeDecimal accepts a JSON string or number.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, fault.InvalidArgumentf("expected a decimal value")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fault.InvalidArgumentf("malformed decimal %q", raw)
	}
	return v, nil
}
