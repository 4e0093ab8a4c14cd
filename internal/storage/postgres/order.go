package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/product"
)

const (
	orderColumns = `id, user_id, lines, subtotal, discount, delivery_cost, total, status,
		payment_method, payment_reference, delivery_method, delivery_days, shipping_address,
		created_at, updated_at`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY id`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	findOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY id`

	findOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY id`

	insertOrderSQL = `INSERT INTO orders (user_id, lines, subtotal, discount, delivery_cost, total, status,
		payment_method, payment_reference, delivery_method, delivery_days, shipping_address,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	updateOrderSQL = `UPDATE orders SET user_id = $2, lines = $3, subtotal = $4, discount = $5,
		delivery_cost = $6, total = $7, status = $8, payment_method = $9, payment_reference = $10,
		delivery_method = $11, delivery_days = $12, shipping_address = $13, created_at = $14,
		updated_at = $15
		WHERE id = $1`
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ order.StockReturner = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Save persists an order. The order lines are serialized to JSON for storage
// in the JSONB column. A zero ID is assigned by the identity column.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	linesJSON, err := marshalLines(o.Lines)
	if err != nil {
		return err
	}

	if o.ID == 0 {
		err := r.pool.QueryRow(ctx, insertOrderSQL,
			o.UserID, linesJSON, o.Subtotal, o.Discount, o.DeliveryCost, o.Total, string(o.Status),
			o.PaymentMethod, o.PaymentReference, o.DeliveryMethod, o.DeliveryDays, o.ShippingAddress,
			o.CreatedAt, o.UpdatedAt,
		).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("creating order for user %d: %w", o.UserID, err)
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL, updateArgs(o, linesJSON)...)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.NotFound(o.ID)
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.NotFound(id)
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// List returns all orders ordered by ID.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// FindByUser returns the user's orders ordered by ID.
func (r *OrderRepository) FindByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, findOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("finding orders of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// FindByStatus returns orders in the given status ordered by ID.
func (r *OrderRepository) FindByStatus(ctx context.Context, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, findOrdersByStatusSQL, string(status))
	if err != nil {
		return nil, fmt.Errorf("finding %s orders: %w", status, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update locks the order row, applies fn and writes the result in one
// transaction.
func (r *OrderRepository) Update(ctx context.Context, id int64, fn func(o *order.Order) error) (*order.Order, error) {
	return r.update(ctx, id, func(_ pgx.Tx, o *order.Order) error {
		return fn(o)
	})
}

// UpdateReturningStock locks the order row, applies fn and adds the stock
// changes it returns back to the products in the same transaction as the
// order write. A failed stock write leaves the order untouched.
func (r *OrderRepository) UpdateReturningStock(
	ctx context.Context,
	id int64,
	fn func(o *order.Order) ([]product.StockChange, error),
) (*order.Order, error) {
	return r.update(ctx, id, func(tx pgx.Tx, o *order.Order) error {
		changes, err := fn(o)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		merged, err := mergeChanges(changes)
		if err != nil {
			return err
		}
		return releaseStock(ctx, tx, merged)
	})
}

func (r *OrderRepository) update(
	ctx context.Context,
	id int64,
	fn func(tx pgx.Tx, o *order.Order) error,
) (*order.Order, error) {
	var updated order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getOrderForUpdateSQL, id)
		if err != nil {
			return fmt.Errorf("locking order %d: %w", id, err)
		}
		o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.NotFound(id)
			}
			return fmt.Errorf("locking order %d: %w", id, err)
		}

		if err := fn(tx, &o); err != nil {
			return err
		}
		o.ID = id

		linesJSON, err := marshalLines(o.Lines)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, updateOrderSQL, updateArgs(&o, linesJSON)...); err != nil {
			return fmt.Errorf("updating order %d: %w", id, err)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func updateArgs(o *order.Order, linesJSON []byte) []any {
	return []any{
		o.ID, o.UserID, linesJSON, o.Subtotal, o.Discount, o.DeliveryCost, o.Total, string(o.Status),
		o.PaymentMethod, o.PaymentReference, o.DeliveryMethod, o.DeliveryDays, o.ShippingAddress,
		o.CreatedAt, o.UpdatedAt,
	}
}

func marshalLines(lines []order.Line) ([]byte, error) {
	if lines == nil {
		lines = []order.Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshaling order lines: %w", err)
	}
	return data, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Subtotal, &o.Discount, &o.DeliveryCost, &o.Total, &status,
		&o.PaymentMethod, &o.PaymentReference, &o.DeliveryMethod, &o.DeliveryDays, &o.ShippingAddress,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling lines of order %d: %w", o.ID, err)
	}
	return o, nil
}
