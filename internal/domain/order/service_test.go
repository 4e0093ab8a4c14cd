package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/domain/delivery"
	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/payment"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	products *memory.ProductStore
	users    *memory.UserStore
	orders   order.Repository
	svc      *order.Service
}

func newFixture(t *testing.T, opts ...order.Option) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewProductStore(),
		users:    memory.NewUserStore(),
		orders:   memory.NewOrderStore(),
	}
	f.build(t, opts...)
	return f
}

func (f *fixture) build(t *testing.T, opts ...order.Option) {
	t.Helper()
	opts = append([]order.Option{order.WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := order.NewService(f.products, f.users, f.orders, opts...)
	require.NoError(t, err)
	f.svc = svc
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:      name,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: product.CategoryElectronics,
		Stock:    stock,
		Active:   true,
	}
	require.NoError(t, f.products.Save(context.Background(), p))
	return p
}

func (f *fixture) user(t *testing.T, email string) *user.User {
	t.Helper()
	u := &user.User{Name: email, Email: email, Cart: map[int64]int{}}
	require.NoError(t, f.users.Save(context.Background(), u))
	return u
}

// history stores n past orders for a user directly.
func (f *fixture) history(t *testing.T, userID int64, n int, status order.Status) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.orders.Save(context.Background(), &order.Order{
			UserID: userID,
			Status: status,
			Total:  decimal.NewFromInt(1),
		}))
	}
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	all, err := f.orders.List(context.Background())
	require.NoError(t, err)
	return len(all)
}

func place(userID int64, items ...order.Item) order.PlaceOrderRequest {
	return order.PlaceOrderRequest{
		UserID:          userID,
		Items:           items,
		Payment:         payment.CreditCard{},
		Delivery:        delivery.Standard{},
		ShippingAddress: "1 Main St",
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 5)

	tests := []struct {
		name string
		req  order.PlaceOrderRequest
	}{
		{"no items", place(u.ID)},
		{"zero quantity", place(u.ID, order.Item{ProductID: p.ID, Quantity: 0})},
		{"negative quantity", place(u.ID, order.Item{ProductID: p.ID, Quantity: -1})},
		{"duplicate product", place(u.ID,
			order.Item{ProductID: p.ID, Quantity: 1},
			order.Item{ProductID: p.ID, Quantity: 1},
		)},
		{"no payment", func() order.PlaceOrderRequest {
			r := place(u.ID, order.Item{ProductID: p.ID, Quantity: 1})
			r.Payment = nil
			return r
		}()},
		{"no delivery", func() order.PlaceOrderRequest {
			r := place(u.ID, order.Item{ProductID: p.ID, Quantity: 1})
			r.Delivery = nil
			return r
		}()},
		{"no address", func() order.PlaceOrderRequest {
			r := place(u.ID, order.Item{ProductID: p.ID, Quantity: 1})
			r.ShippingAddress = "  "
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), tt.req)
			require.ErrorIs(t, err, fault.ErrInvalidArgument)
		})
	}
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID))
	require.ErrorIs(t, err, order.ErrEmptyItems)
}

func TestPlaceOrder_UnknownUserBeforeValidation(t *testing.T) {
	f := newFixture(t)

	for _, req := range []order.PlaceOrderRequest{
		place(42),
		place(42, order.Item{ProductID: 7, Quantity: 0}),
		{UserID: 42, Items: []order.Item{{ProductID: 7, Quantity: 1}}},
	} {
		_, err := f.svc.PlaceOrder(context.Background(), req)
		var nf *fault.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "user", nf.Entity)
		assert.Equal(t, int64(42), nf.ID)
	}
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: 7, Quantity: 0}))

	var iqErr *order.InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(7), iqErr.ProductID)
}

func TestPlaceOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 5)

	_, err := f.svc.PlaceOrder(context.Background(), place(99, order.Item{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, fault.ErrNotFound)

	_, err = f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: 99, Quantity: 1}))
	var nf *fault.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Entity)
	assert.Equal(t, int64(99), nf.ID)
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 5)
	p.Active = false
	require.NoError(t, f.products.Save(context.Background(), p))

	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, fault.ErrNotFound)
}

func TestPlaceOrder_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	phone := f.product(t, "Phone", "999.99", 50)
	book := f.product(t, "Book", "49.99", 100)

	o, err := f.svc.PlaceOrder(ctx, place(u.ID,
		order.Item{ProductID: phone.ID, Quantity: 1},
		order.Item{ProductID: book.ID, Quantity: 2},
	))
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, u.ID, o.UserID)
	assert.Equal(t, "Credit Card", o.PaymentMethod)
	assert.NotEmpty(t, o.PaymentReference)
	assert.Equal(t, "Standard Delivery", o.DeliveryMethod)
	assert.Equal(t, 5, o.DeliveryDays)
	assert.Equal(t, fixedNow, o.CreatedAt)

	require.Len(t, o.Lines, 2)
	assert.Equal(t, "Phone", o.Lines[0].ProductName)
	assert.True(t, dec("999.99").Equal(o.Lines[0].UnitPrice))
	assert.True(t, dec("99.98").Equal(o.Lines[1].Subtotal))

	// 1099.97 + 5% standard delivery (54.9985), no discount.
	assert.True(t, dec("1099.97").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, o.Discount.IsZero())
	assert.True(t, dec("1154.97").Equal(o.Total), "total %s", o.Total)

	assert.Equal(t, 49, f.stock(t, phone.ID))
	assert.Equal(t, 98, f.stock(t, book.ID))

	stored, err := f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{o.ID}, stored.OrderIDs)

	// Later price changes do not touch the snapshot.
	phone.Price = dec("1.00")
	require.NoError(t, f.products.Save(ctx, phone))
	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, dec("999.99").Equal(got.Lines[0].UnitPrice))
}

func TestPlaceOrder_DiscountTiers(t *testing.T) {
	tests := []struct {
		name         string
		completed    int
		cancelled    int
		wantDiscount string
		wantTotal    string
	}{
		{"no history", 0, 0, "0", "105.00"},
		{"four orders", 4, 0, "0", "105.00"},
		{"exactly five", 5, 0, "5.00", "100.00"},
		{"cancelled orders do not count", 4, 3, "0", "105.00"},
		{"nine orders", 9, 0, "5.00", "100.00"},
		{"exactly ten", 10, 0, "10.00", "95.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := f.user(t, "a@example.com")
			p := f.product(t, "Widget", "100.00", 10)
			f.history(t, u.ID, tt.completed, order.StatusDelivered)
			f.history(t, u.ID, tt.cancelled, order.StatusCancelled)

			o, err := f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: p.ID, Quantity: 1}))
			require.NoError(t, err)
			assert.True(t, dec(tt.wantDiscount).Equal(o.Discount), "discount %s", o.Discount)
			assert.True(t, dec(tt.wantTotal).Equal(o.Total), "total %s", o.Total)
		})
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "10.00", 10)
	b := f.product(t, "B", "10.00", 2)

	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID,
		order.Item{ProductID: a.ID, Quantity: 3},
		order.Item{ProductID: b.ID, Quantity: 5},
	))

	var stockErr *fault.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_PaymentDeclined(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Server", "9999.00", 3)

	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: p.ID, Quantity: 2}))

	var declined *fault.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "Credit Card", declined.Method)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Zero(t, f.orderCount(t))

	// PayPal has no upper bound.
	req := place(u.ID, order.Item{ProductID: p.ID, Quantity: 2})
	req.Payment = payment.PayPal{}
	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "PayPal", o.PaymentMethod)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestPlaceOrder_PaymentTimeout(t *testing.T) {
	f := newFixture(t, order.WithPaymentTimeout(10*time.Millisecond))
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 3)

	req := place(u.ID, order.Item{ProductID: p.ID, Quantity: 1})
	req.Payment = payment.CreditCard{Delay: time.Second}
	_, err := f.svc.PlaceOrder(context.Background(), req)

	require.ErrorIs(t, err, fault.ErrPaymentDeclined)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	alisa := f.user(t, "alisa@example.com")
	john := f.user(t, "john@example.com")
	p := f.product(t, "Widget", "10.00", 8)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, uid := range []int64{alisa.ID, john.ID} {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), place(uid, order.Item{ProductID: p.ID, Quantity: 5}))
		}(i, uid)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, fault.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

type failingOrderStore struct {
	order.Repository
	saveErr error
}

func (s *failingOrderStore) Save(ctx context.Context, o *order.Order) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Repository.Save(ctx, o)
}

func TestPlaceOrder_SaveFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.orders = &failingOrderStore{Repository: memory.NewOrderStore(), saveErr: errors.New("disk full")}
	f.build(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 4)

	_, err := f.svc.PlaceOrder(context.Background(), place(u.ID, order.Item{ProductID: p.ID, Quantity: 3}))
	require.Error(t, err)
	assert.False(t, fault.IsExpected(err))
	assert.Equal(t, 4, f.stock(t, p.ID))

	stored, err := f.users.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OrderIDs)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 10)

	o, err := f.svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, 7, f.stock(t, p.ID))

	cancelled, err := f.svc.CancelOrder(ctx, o.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	// A second cancel must not return the stock again.
	_, err = f.svc.CancelOrder(ctx, o.ID, u.ID)
	require.ErrorIs(t, err, fault.ErrInvalidState)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

// txOrderStore returns stock through the catalog from inside its update,
// the way a transactional store does.
type txOrderStore struct {
	order.Repository
	products  *memory.ProductStore
	calls     int
	returnErr error
}

func (s *txOrderStore) UpdateReturningStock(
	ctx context.Context,
	id int64,
	fn func(o *order.Order) ([]product.StockChange, error),
) (*order.Order, error) {
	s.calls++
	return s.Repository.Update(ctx, id, func(o *order.Order) error {
		changes, err := fn(o)
		if err != nil {
			return err
		}
		if s.returnErr != nil {
			return s.returnErr
		}
		return s.products.Release(ctx, changes)
	})
}

// countingProducts counts stock releases made outside the order store.
type countingProducts struct {
	*memory.ProductStore
	releases int
}

func (p *countingProducts) Release(ctx context.Context, changes []product.StockChange) error {
	p.releases++
	return p.ProductStore.Release(ctx, changes)
}

func TestCancelOrder_ReturnsStockWithOrderWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := &txOrderStore{Repository: memory.NewOrderStore(), products: f.products}
	counting := &countingProducts{ProductStore: f.products}
	f.orders = store
	svc, err := order.NewService(counting, f.users, store, order.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 10)
	o, err := svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 4}))
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, p.ID))

	// A failed stock write leaves the order as it was.
	store.returnErr = errors.New("connection reset")
	_, err = svc.CancelOrder(ctx, o.ID, u.ID)
	require.Error(t, err)
	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, 6, f.stock(t, p.ID))

	store.returnErr = nil
	cancelled, err := svc.CancelOrder(ctx, o.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Equal(t, 2, store.calls)
	assert.Zero(t, counting.releases)

	_, err = svc.UpdateStatus(ctx, o.ID, order.StatusCancelled)
	require.ErrorIs(t, err, fault.ErrInvalidState)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

// failingUpdateStore fails every order write after fn has run.
type failingUpdateStore struct {
	order.Repository
}

func (s *failingUpdateStore) Update(ctx context.Context, id int64, fn func(o *order.Order) error) (*order.Order, error) {
	o, err := s.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	return nil, errors.New("write failed")
}

func TestCancelOrder_FailedWriteTakesStockBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 10)
	o, err := f.svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 3}))
	require.NoError(t, err)

	f.orders = &failingUpdateStore{Repository: f.orders}
	f.build(t)

	_, err = f.svc.CancelOrder(ctx, o.ID, u.ID)
	require.Error(t, err)
	assert.Equal(t, 7, f.stock(t, p.ID))

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
}

func TestCancelOrder_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "a@example.com")
	other := f.user(t, "b@example.com")
	p := f.product(t, "Widget", "10.00", 10)

	o, err := f.svc.PlaceOrder(ctx, place(owner.ID, order.Item{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, 999, owner.ID)
	require.ErrorIs(t, err, fault.ErrNotFound)

	_, err = f.svc.CancelOrder(ctx, o.ID, other.ID)
	require.ErrorIs(t, err, fault.ErrForbidden)
	assert.Equal(t, 8, f.stock(t, p.ID))

	for _, st := range []order.Status{order.StatusConfirmed, order.StatusShipped, order.StatusDelivered} {
		_, err = f.svc.UpdateStatus(ctx, o.ID, st)
		require.NoError(t, err)
	}
	_, err = f.svc.CancelOrder(ctx, o.ID, owner.ID)
	require.ErrorIs(t, err, fault.ErrInvalidState)
	assert.Equal(t, 8, f.stock(t, p.ID))

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 10)

	o, err := f.svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 4}))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.ID, order.StatusDelivered)
	require.ErrorIs(t, err, fault.ErrInvalidState)

	got, err := f.svc.UpdateStatus(ctx, o.ID, order.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)

	got, err = f.svc.UpdateStatus(ctx, o.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	_, err = f.svc.UpdateStatus(ctx, 404, order.StatusConfirmed)
	require.ErrorIs(t, err, fault.ErrNotFound)
}

func TestRepeatOrderThenCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	other := f.user(t, "b@example.com")
	p := f.product(t, "Widget", "10.00", 20)

	first, err := f.svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.svc.RepeatOrder(ctx, first.ID, other.ID)
	require.ErrorIs(t, err, fault.ErrForbidden)

	// Existing cart quantities are added to.
	_, err = f.users.Update(ctx, u.ID, func(u *user.User) error { return u.AddToCart(p.ID, 1) })
	require.NoError(t, err)

	repeated, err := f.svc.RepeatOrder(ctx, first.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, repeated.ID)
	assert.Equal(t, 18, f.stock(t, p.ID), "repeat does not touch stock")

	stored, err := f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Cart[p.ID])

	// Checkout prices at the current catalog price.
	price := dec("20.00")
	updated, err := product.NewService(f.products).Update(ctx, p.ID, product.UpdateRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 18, updated.Stock)

	second, err := f.svc.Checkout(ctx, order.CheckoutRequest{
		UserID:          u.ID,
		Payment:         payment.PayPal{},
		Delivery:        delivery.Express{},
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, dec("60.00").Equal(second.Subtotal), "subtotal %s", second.Subtotal)
	assert.True(t, dec("70.00").Equal(second.Total), "total %s", second.Total)
	assert.Equal(t, 15, f.stock(t, p.ID))

	stored, err = f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Cart)
	assert.Equal(t, []int64{first.ID, second.ID}, stored.OrderIDs)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com")

	_, err := f.svc.Checkout(context.Background(), order.CheckoutRequest{
		UserID:          u.ID,
		Payment:         payment.CreditCard{},
		Delivery:        delivery.Standard{},
		ShippingAddress: "1 Main St",
	})
	require.ErrorIs(t, err, fault.ErrInvalidArgument)
}

func TestCheckout_FailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 1)

	_, err := f.users.Update(ctx, u.ID, func(u *user.User) error { return u.AddToCart(p.ID, 2) })
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, order.CheckoutRequest{
		UserID:          u.ID,
		Payment:         payment.CreditCard{},
		Delivery:        delivery.Standard{},
		ShippingAddress: "1 Main St",
	})
	require.ErrorIs(t, err, fault.ErrInsufficientStock)

	stored, err := f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Cart[p.ID])
}

func TestUserOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "a@example.com")
	p := f.product(t, "Widget", "10.00", 10)

	_, err := f.svc.UserOrders(ctx, 42)
	require.ErrorIs(t, err, fault.ErrNotFound)

	orders, err := f.svc.UserOrders(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	for i := 0; i < 2; i++ {
		_, err := f.svc.PlaceOrder(ctx, place(u.ID, order.Item{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
	}
	orders, err = f.svc.UserOrders(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
