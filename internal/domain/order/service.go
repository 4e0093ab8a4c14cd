package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/delivery"
	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/payment"
	"github.com/xenking/eshop/internal/domain/pricing"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
)

// ErrEmptyItems is returned when an order has no lines.
var ErrEmptyItems = errors.Wrap(fault.ErrInvalidArgument, "items required")

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// Is reports whether target is fault.ErrInvalidArgument.
func (e *InvalidQuantityError) Is(target error) bool {
	return target == fault.ErrInvalidArgument
}

// Item is a requested product and quantity.
type Item struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID          int64
	Items           []Item
	Payment         payment.Method
	Delivery        delivery.Method
	ShippingAddress string
}

// CheckoutRequest places an order for everything in the user's cart.
type CheckoutRequest struct {
	UserID          int64
	Payment         payment.Method
	Delivery        delivery.Method
	ShippingAddress string
}

// Option configures a Service.
type Option func(*Service)

// WithTiers overrides the loyalty discount schedule.
func WithTiers(t pricing.Tiers) Option {
	return func(s *Service) { s.tiers = t }
}

// WithPaymentTimeout bounds each payment call. A payment that does not
// settle in time is treated as declined. Zero disables the bound.
func WithPaymentTimeout(d time.Duration) Option {
	return func(s *Service) { s.paymentTimeout = d }
}

// WithClock overrides the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracerProvider = tp
		s.meterProvider = mp
	}
}

// Service is the order placement pipeline. It validates orders against live
// stock, prices them, takes payment, reserves stock and persists the result.
type Service struct {
	products product.Repository
	users    user.Repository
	orders   Repository

	tiers          pricing.Tiers
	paymentTimeout time.Duration
	now            func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	outcomes       metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	users user.Repository,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:       products,
		users:          users,
		orders:         orders,
		tiers:          pricing.DefaultTiers,
		paymentTimeout: 30 * time.Second,
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const scope = "github.com/xenking/eshop/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(scope)

	outcomes, err := s.meterProvider.Meter(scope).Int64Counter("eshop.order.operations",
		metric.WithDescription("Order operations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create outcomes counter")
	}
	s.outcomes = outcomes

	return s, nil
}

// PlaceOrder runs the order pipeline for an explicit list of items.
// It is not idempotent: every successful call creates a new order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int64("eshop.user_id", req.UserID)),
	)
	defer span.End()

	o, err := s.place(ctx, req, false)
	s.observe(ctx, span, "place", err)
	return o, err
}

// Checkout places an order for the contents of the user's cart and removes
// the ordered lines from the cart on success.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.Int64("eshop.user_id", req.UserID)),
	)
	defer span.End()

	o, err := s.checkout(ctx, req)
	s.observe(ctx, span, "checkout", err)
	return o, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	lines := u.CartLines()
	if len(lines) == 0 {
		return nil, fault.InvalidArgumentf("cart of user %d is empty", u.ID)
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return s.place(ctx, PlaceOrderRequest{
		UserID:          req.UserID,
		Items:           items,
		Payment:         req.Payment,
		Delivery:        req.Delivery,
		ShippingAddress: req.ShippingAddress,
	}, true)
}

func (s *Service) place(ctx context.Context, req PlaceOrderRequest, fromCart bool) (*Order, error) {
	// Resolve the customer before judging the request.
	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	// Batch fetch all products; inactive products cannot be ordered.
	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}
	products := make([]product.Product, len(req.Items))
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok || !p.Active {
			return nil, product.NotFound(item.ProductID)
		}
		products[i] = p
	}

	// All-or-nothing availability check before anything is mutated.
	for i, item := range req.Items {
		if products[i].Stock < item.Quantity {
			return nil, &fault.InsufficientStockError{
				ProductID: item.ProductID,
				Name:      products[i].Name,
				Available: products[i].Stock,
				Requested: item.Quantity,
			}
		}
	}

	completed, err := s.completedOrders(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	priced := make([]pricing.Item, len(req.Items))
	for i, item := range req.Items {
		priced[i] = pricing.Item{
			ProductID: item.ProductID,
			Price:     products[i].Price,
			Quantity:  item.Quantity,
		}
	}
	quote := pricing.Calculate(priced, completed, s.tiers, req.Delivery)

	// Payment runs without any stock lock held.
	receipt, err := s.charge(ctx, req.Payment, quote.Total)
	if err != nil {
		return nil, err
	}

	changes := make([]product.StockChange, len(req.Items))
	for i, item := range req.Items {
		changes[i] = product.StockChange{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.products.Reserve(ctx, changes); err != nil {
		// A concurrent order took the stock after the pre-check.
		s.refund(ctx, req.Payment, quote.Total, receipt)
		return nil, errors.Wrap(err, "reserve stock")
	}

	now := s.now()
	o := &Order{
		UserID:           u.ID,
		Lines:            make([]Line, len(req.Items)),
		Subtotal:         quote.Subtotal,
		Discount:         quote.Discount,
		DeliveryCost:     quote.DeliveryCost,
		Total:            quote.Total,
		Status:           StatusProcessing,
		PaymentMethod:    req.Payment.Name(),
		PaymentReference: receipt.Reference,
		DeliveryMethod:   req.Delivery.Name(),
		DeliveryDays:     quote.DeliveryDays,
		ShippingAddress:  strings.TrimSpace(req.ShippingAddress),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, item := range req.Items {
		o.Lines[i] = Line{
			ProductID:   item.ProductID,
			ProductName: products[i].Name,
			Quantity:    item.Quantity,
			UnitPrice:   products[i].Price,
			Subtotal:    pricing.LineTotal(products[i].Price, item.Quantity),
		}
	}

	if err := s.orders.Save(ctx, o); err != nil {
		s.release(ctx, changes)
		s.refund(ctx, req.Payment, quote.Total, receipt)
		return nil, errors.Wrap(err, "save order")
	}

	consumed := make([]user.CartLine, len(req.Items))
	for i, item := range req.Items {
		consumed[i] = user.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if _, err := s.users.Update(ctx, u.ID, func(u *user.User) error {
		u.AppendOrder(o.ID)
		if fromCart {
			u.ConsumeCart(consumed)
		}
		return nil
	}); err != nil {
		s.abandon(ctx, o.ID)
		s.release(ctx, changes)
		s.refund(ctx, req.Payment, quote.Total, receipt)
		return nil, errors.Wrap(err, "append order to user")
	}

	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.Int("lines", len(o.Lines)),
		zap.String("total", o.Total.StringFixed(2)),
		zap.Int("completed_orders", completed),
	)
	return o, nil
}

// CancelOrder cancels an order owned by userID and restores its stock.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int64) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder",
		trace.WithAttributes(
			attribute.Int64("eshop.order_id", orderID),
			attribute.Int64("eshop.user_id", userID),
		),
	)
	defer span.End()

	o, err := s.cancel(ctx, orderID, &userID)
	s.observe(ctx, span, "cancel", err)
	return o, err
}

// cancel restores stock and marks the order cancelled in one read-modify-write
// of the order. A nil owner skips the ownership check.
func (s *Service) cancel(ctx context.Context, orderID int64, owner *int64) (*Order, error) {
	check := func(o *Order) ([]product.StockChange, error) {
		if owner != nil && o.UserID != *owner {
			return nil, fault.Forbiddenf("order %d does not belong to user %d", o.ID, *owner)
		}
		if o.Status == StatusDelivered {
			return nil, fault.InvalidStatef("cannot cancel delivered order %d", o.ID)
		}
		if !o.Status.CanTransition(StatusCancelled) {
			return nil, fault.InvalidStatef("order %d is already %s", o.ID, o.Status)
		}
		if err := o.Transition(StatusCancelled, s.now()); err != nil {
			return nil, err
		}
		return stockChanges(o.Lines), nil
	}

	var (
		o   *Order
		err error
	)
	if rs, ok := s.orders.(StockReturner); ok {
		o, err = rs.UpdateReturningStock(ctx, orderID, check)
	} else {
		o, err = s.cancelThenRelease(ctx, orderID, check)
	}
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order cancelled", zap.Int64("order_id", o.ID))
	return o, nil
}

// cancelThenRelease serves stores without StockReturner. Stock is returned
// inside the order update so a failed release aborts the status write; a
// failed status write after the release takes the stock again.
func (s *Service) cancelThenRelease(
	ctx context.Context,
	orderID int64,
	check func(o *Order) ([]product.StockChange, error),
) (*Order, error) {
	var (
		changes  []product.StockChange
		released bool
	)
	o, err := s.orders.Update(ctx, orderID, func(o *Order) error {
		var err error
		if changes, err = check(o); err != nil {
			return err
		}
		if err := s.products.Release(ctx, changes); err != nil {
			return errors.Wrap(err, "restore stock")
		}
		released = true
		return nil
	})
	if err != nil && released {
		if rerr := s.products.Reserve(context.WithoutCancel(ctx), changes); rerr != nil {
			zctx.From(ctx).Error("Re-reserve stock after failed cancel",
				zap.Int64("order_id", orderID),
				zap.Error(rerr),
			)
		}
	}
	return o, err
}

// UpdateStatus moves an order through its fulfilment states. Cancellation
// goes through the stock-restoring cancel path.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(
			attribute.Int64("eshop.order_id", orderID),
			attribute.String("eshop.status", string(next)),
		),
	)
	defer span.End()

	var (
		o   *Order
		err error
	)
	if next == StatusCancelled {
		o, err = s.cancel(ctx, orderID, nil)
	} else {
		o, err = s.orders.Update(ctx, orderID, func(o *Order) error {
			return o.Transition(next, s.now())
		})
	}
	s.observe(ctx, span, "update_status", err)
	return o, err
}

// RepeatOrder copies an order's lines into its owner's cart and returns the
// original order. Prices and stock are checked again only at checkout.
func (s *Service) RepeatOrder(ctx context.Context, orderID, userID int64) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.RepeatOrder",
		trace.WithAttributes(
			attribute.Int64("eshop.order_id", orderID),
			attribute.Int64("eshop.user_id", userID),
		),
	)
	defer span.End()

	o, err := s.repeat(ctx, orderID, userID)
	s.observe(ctx, span, "repeat", err)
	return o, err
}

func (s *Service) repeat(ctx context.Context, orderID, userID int64) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, fault.Forbiddenf("order %d does not belong to user %d", o.ID, userID)
	}

	if _, err := s.users.Update(ctx, userID, func(u *user.User) error {
		for _, l := range o.Lines {
			if err := u.AddToCart(l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "copy order to cart")
	}
	return o, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}

// UserOrders returns every order of an existing user.
func (s *Service) UserOrders(ctx context.Context, userID int64) ([]Order, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	orders, err := s.orders.FindByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find orders by user")
	}
	return orders, nil
}

func (s *Service) completedOrders(ctx context.Context, userID int64) (int, error) {
	history, err := s.orders.FindByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "find orders by user")
	}
	n := 0
	for i := range history {
		if history[i].Completed() {
			n++
		}
	}
	return n, nil
}

func (s *Service) charge(ctx context.Context, m payment.Method, amount decimal.Decimal) (payment.Result, error) {
	payCtx := ctx
	if s.paymentTimeout > 0 {
		var cancel context.CancelFunc
		payCtx, cancel = context.WithTimeout(ctx, s.paymentTimeout)
		defer cancel()
	}

	res, err := m.Process(payCtx, amount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return payment.Result{}, &fault.PaymentDeclinedError{
				Method: m.Name(),
				Amount: amount,
				Reason: "payment timed out",
			}
		}
		return payment.Result{}, errors.Wrap(err, "process payment")
	}
	if !res.Accepted {
		return payment.Result{}, &fault.PaymentDeclinedError{
			Method: m.Name(),
			Amount: amount,
			Reason: res.Reason,
		}
	}
	return res, nil
}

func (s *Service) refund(ctx context.Context, m payment.Method, amount decimal.Decimal, res payment.Result) {
	if err := m.Refund(context.WithoutCancel(ctx), amount, res); err != nil {
		zctx.From(ctx).Error("Refund payment",
			zap.String("reference", res.Reference),
			zap.Error(err),
		)
	}
}

func (s *Service) release(ctx context.Context, changes []product.StockChange) {
	if err := s.products.Release(context.WithoutCancel(ctx), changes); err != nil {
		zctx.From(ctx).Error("Release reserved stock", zap.Error(err))
	}
}

// abandon marks an order that could not be linked to its user as cancelled.
func (s *Service) abandon(ctx context.Context, orderID int64) {
	if _, err := s.orders.Update(context.WithoutCancel(ctx), orderID, func(o *Order) error {
		return o.Transition(StatusCancelled, s.now())
	}); err != nil {
		zctx.From(ctx).Error("Abandon order", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// observe records the outcome of an operation. Business rejections are
// logged at info level; only internal faults are errors.
func (s *Service) observe(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = fault.Kind(err)
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))

	switch {
	case err == nil:
	case fault.IsExpected(err):
		span.SetAttributes(attribute.String("eshop.outcome", outcome))
		zctx.From(ctx).Info("Order request rejected",
			zap.String("operation", op),
			zap.String("outcome", outcome),
			zap.String("reason", err.Error()),
		)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zctx.From(ctx).Error("Order request failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}

func validate(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	seen := make(map[int64]struct{}, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
		if _, dup := seen[item.ProductID]; dup {
			return fault.InvalidArgumentf("product %d appears more than once", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	switch {
	case req.Payment == nil:
		return fault.InvalidArgumentf("payment method required")
	case req.Delivery == nil:
		return fault.InvalidArgumentf("delivery method required")
	case strings.TrimSpace(req.ShippingAddress) == "":
		return fault.InvalidArgumentf("shipping address required")
	}
	return nil
}

func stockChanges(lines []Line) []product.StockChange {
	changes := make([]product.StockChange, len(lines))
	for i, l := range lines {
		changes[i] = product.StockChange{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return changes
}
