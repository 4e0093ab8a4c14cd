package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/user"
)

const (
	userColumns = `id, name, email, cart, order_ids, registered_at`

	listUsersSQL = `SELECT ` + userColumns + ` FROM users ORDER BY id`

	getUserSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getUserForUpdateSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	findUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	insertUserSQL = `INSERT INTO users (name, email, cart, order_ids, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	updateUserSQL = `UPDATE users SET name = $2, email = $3, cart = $4, order_ids = $5, registered_at = $6
		WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL. The cart
// is stored as a JSONB object keyed by product ID.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Save inserts u when its ID is zero and replaces the stored row otherwise.
func (r *UserRepository) Save(ctx context.Context, u *user.User) error {
	cartJSON, err := marshalCart(u.Cart)
	if err != nil {
		return err
	}
	orderIDs := u.OrderIDs
	if orderIDs == nil {
		orderIDs = []int64{}
	}

	if u.ID == 0 {
		err := r.pool.QueryRow(ctx, insertUserSQL, u.Name, u.Email, cartJSON, orderIDs, u.RegisteredAt).Scan(&u.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fault.InvalidArgumentf("email %s already registered", u.Email)
			}
			return fmt.Errorf("inserting user: %w", err)
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, updateUserSQL, u.ID, u.Name, u.Email, cartJSON, orderIDs, u.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fault.InvalidArgumentf("email %s already registered", u.Email)
		}
		return fmt.Errorf("updating user %d: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.NotFound(u.ID)
	}
	return nil
}

// Get returns a user by ID.
func (r *UserRepository) Get(ctx context.Context, id int64) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.NotFound(id)
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// List returns all users ordered by ID.
func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return pgx.CollectRows(rows, scanUser)
}

// FindByEmail looks a user up by email, ignoring case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, findUserByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundKey("user", email)
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	return &u, nil
}

// Update locks the user row, applies fn and writes the result in one
// transaction.
func (r *UserRepository) Update(ctx context.Context, id int64, fn func(u *user.User) error) (*user.User, error) {
	var updated user.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getUserForUpdateSQL, id)
		if err != nil {
			return fmt.Errorf("locking user %d: %w", id, err)
		}
		u, err := pgx.CollectExactlyOneRow(rows, scanUser)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.NotFound(id)
			}
			return fmt.Errorf("locking user %d: %w", id, err)
		}

		email := u.Email
		if err := fn(&u); err != nil {
			return err
		}
		u.ID = id
		u.Email = email

		cartJSON, err := marshalCart(u.Cart)
		if err != nil {
			return err
		}
		orderIDs := u.OrderIDs
		if orderIDs == nil {
			orderIDs = []int64{}
		}
		if _, err := tx.Exec(ctx, updateUserSQL, u.ID, u.Name, u.Email, cartJSON, orderIDs, u.RegisteredAt); err != nil {
			return fmt.Errorf("updating user %d: %w", id, err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func marshalCart(cart map[int64]int) ([]byte, error) {
	if cart == nil {
		cart = map[int64]int{}
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return nil, fmt.Errorf("marshaling cart: %w", err)
	}
	return data, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u        user.User
		cartJSON []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &cartJSON, &u.OrderIDs, &u.RegisteredAt); err != nil {
		return u, err
	}
	u.Cart = make(map[int64]int)
	if len(cartJSON) > 0 {
		if err := json.Unmarshal(cartJSON, &u.Cart); err != nil {
			return u, fmt.Errorf("unmarshaling cart of user %d: %w", u.ID, err)
		}
	}
	return u, nil
}
