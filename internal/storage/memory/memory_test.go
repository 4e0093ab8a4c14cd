package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/user"
)

func seedProduct(t *testing.T, s *ProductStore, sku string, stock int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:      sku,
		Name:     "Product " + sku,
		Price:    decimal.RequireFromString("10.00"),
		Category: product.CategoryBooks,
		Stock:    stock,
		Active:   true,
	}
	require.NoError(t, s.Save(context.Background(), p))
	return p
}

func TestProductStore_AssignsIncreasingIDs(t *testing.T) {
	s := NewProductStore()
	a := seedProduct(t, s, "A", 1)
	b := seedProduct(t, s, "B", 1)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
}

func TestProductStore_DuplicateSKU(t *testing.T) {
	s := NewProductStore()
	seedProduct(t, s, "A", 1)

	err := s.Save(context.Background(), &product.Product{SKU: "A", Name: "dup"})
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
}

func TestProductStore_FindBySKU(t *testing.T) {
	s := NewProductStore()
	p := seedProduct(t, s, "A", 1)

	got, err := s.FindBySKU(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.FindBySKU(context.Background(), "missing")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestProductStore_GetReturnsCopy(t *testing.T) {
	s := NewProductStore()
	p := seedProduct(t, s, "A", 5)

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	got.Stock = 0

	again, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, again.Stock)
}

func TestProductStore_ReserveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	a := seedProduct(t, s, "A", 10)
	b := seedProduct(t, s, "B", 2)

	err := s.Reserve(ctx, []product.StockChange{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 5},
	})
	var stockErr *fault.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	require.NoError(t, s.Reserve(ctx, []product.StockChange{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 2},
	}))
	got, _ = s.Get(ctx, a.ID)
	assert.Equal(t, 7, got.Stock)
	got, _ = s.Get(ctx, b.ID)
	assert.Equal(t, 0, got.Stock)

	require.NoError(t, s.Release(ctx, []product.StockChange{{ProductID: a.ID, Quantity: 3}}))
	got, _ = s.Get(ctx, a.ID)
	assert.Equal(t, 10, got.Stock)
}

func TestProductStore_ReserveUnknownProduct(t *testing.T) {
	s := NewProductStore()
	err := s.Reserve(context.Background(), []product.StockChange{{ProductID: 99, Quantity: 1}})
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestProductStore_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	a := seedProduct(t, s, "A", 50)
	b := seedProduct(t, s, "B", 50)

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate line order to exercise lock ordering.
			changes := []product.StockChange{
				{ProductID: a.ID, Quantity: 1},
				{ProductID: b.ID, Quantity: 1},
			}
			if i%2 == 0 {
				changes[0], changes[1] = changes[1], changes[0]
			}
			if s.Reserve(ctx, changes) == nil {
				success.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), success.Load())
	got, _ := s.Get(ctx, a.ID)
	assert.Equal(t, 0, got.Stock)
	got, _ = s.Get(ctx, b.ID)
	assert.Equal(t, 0, got.Stock)
}

func TestProductStore_Rate(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	p := seedProduct(t, s, "A", 1)

	for _, r := range []int{4, 5, 3, 4, 5} {
		_, err := s.Rate(ctx, p.ID, r)
		require.NoError(t, err)
	}
	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.2, got.Rating, 1e-9)
	assert.Equal(t, 5, got.RatingCount)

	_, err = s.Rate(ctx, p.ID, 6)
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)

	got, _ = s.Get(ctx, p.ID)
	assert.InDelta(t, 4.2, got.Rating, 1e-9)
	assert.Equal(t, 5, got.RatingCount)

	_, err = s.Rate(ctx, 99, 3)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestUserStore_EmailUnique(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	u := &user.User{Name: "Alisa", Email: "alisa@example.com"}
	require.NoError(t, s.Save(ctx, u))
	assert.Equal(t, int64(1), u.ID)

	err := s.Save(ctx, &user.User{Name: "Other", Email: "ALISA@example.com"})
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)

	got, err := s.FindByEmail(ctx, "Alisa@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	u := &user.User{Name: "John", Email: "john@example.com"}
	require.NoError(t, s.Save(ctx, u))

	got, err := s.Update(ctx, u.ID, func(u *user.User) error {
		return u.AddToCart(3, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Cart[3])

	_, err = s.Update(ctx, u.ID, func(u *user.User) error {
		u.ClearCart()
		return fault.InvalidArgumentf("rejected")
	})
	require.Error(t, err)

	stored, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Cart[3], "failed update must not be written")

	_, err = s.Update(ctx, 42, func(*user.User) error { return nil })
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestOrderStore_FindAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()

	for _, uid := range []int64{1, 2, 1} {
		require.NoError(t, s.Save(ctx, &order.Order{UserID: uid, Status: order.StatusProcessing}))
	}

	mine, err := s.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, int64(1), mine[0].ID)
	assert.Equal(t, int64(3), mine[1].ID)

	_, err = s.Update(ctx, 2, func(o *order.Order) error {
		o.Status = order.StatusConfirmed
		return nil
	})
	require.NoError(t, err)

	confirmed, err := s.FindByStatus(ctx, order.StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, int64(2), confirmed[0].ID)

	_, err = s.Get(ctx, 9)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}
