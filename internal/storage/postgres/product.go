package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/product"
)

const (
	productColumns = `id, sku, name, description, manufacturer, price, category,
		stock_quantity, rating, rating_count, active, created_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	findProductsByCategorySQL = `SELECT ` + productColumns + ` FROM products WHERE category = $1 ORDER BY id`

	findProductBySKUSQL = `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	insertProductSQL = `INSERT INTO products (sku, name, description, manufacturer, price, category,
		stock_quantity, rating, rating_count, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	updateProductSQL = `UPDATE products SET sku = $2, name = $3, description = $4, manufacturer = $5,
		price = $6, category = $7, stock_quantity = $8, rating = $9, rating_count = $10,
		active = $11, created_at = $12
		WHERE id = $1`

	upsertProductBySKUSQL = `INSERT INTO products (sku, name, description, manufacturer, price, category,
		stock_quantity, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, now())
		ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		manufacturer = EXCLUDED.manufacturer, price = EXCLUDED.price, category = EXCLUDED.category,
		active = TRUE`

	patchProductSQL = `UPDATE products SET name = COALESCE($2::text, name),
		description = COALESCE($3::text, description), price = COALESCE($4::numeric, price),
		active = COALESCE($5::boolean, active)
		WHERE id = $1
		RETURNING ` + productColumns

	reserveStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	releaseStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2 WHERE id = $1`

	stockOfSQL = `SELECT name, stock_quantity FROM products WHERE id = $1`

	rateProductSQL = `UPDATE products
		SET rating = (rating * rating_count + $2) / (rating_count + 1), rating_count = rating_count + 1
		WHERE id = $1
		RETURNING ` + productColumns
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Save inserts p when its ID is zero and replaces the stored row otherwise.
func (r *ProductRepository) Save(ctx context.Context, p *product.Product) error {
	if p.ID == 0 {
		err := r.pool.QueryRow(ctx, insertProductSQL,
			p.SKU, p.Name, p.Description, p.Manufacturer, p.Price, string(p.Category),
			p.Stock, p.Rating, p.RatingCount, p.Active, p.CreatedAt,
		).Scan(&p.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fault.InvalidArgumentf("sku %q already used", p.SKU)
			}
			return fmt.Errorf("inserting product %q: %w", p.SKU, err)
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.SKU, p.Name, p.Description, p.Manufacturer, p.Price, string(p.Category),
		p.Stock, p.Rating, p.RatingCount, p.Active, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fault.InvalidArgumentf("sku %q already used", p.SKU)
		}
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.NotFound(p.ID)
	}
	return nil
}

// Get returns a single product by its identifier.
func (r *ProductRepository) Get(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.NotFound(id)
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindByCategory returns products in category c ordered by ID.
func (r *ProductRepository) FindByCategory(ctx context.Context, c product.Category) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, findProductsByCategorySQL, string(c))
	if err != nil {
		return nil, fmt.Errorf("finding products in %s: %w", c, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindBySKU returns the product with the given SKU.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, findProductBySKUSQL, sku)
	if err != nil {
		return nil, fmt.Errorf("finding product by sku %q: %w", sku, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundKey("product", sku)
		}
		return nil, fmt.Errorf("finding product by sku %q: %w", sku, err)
	}
	return &p, nil
}

// Patch updates the set fields of p in a single statement. Stock and rating
// columns are not written.
func (r *ProductRepository) Patch(ctx context.Context, id int64, p product.Patch) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, patchProductSQL, id, p.Name, p.Description, p.Price, p.Active)
	if err != nil {
		return nil, fmt.Errorf("patching product %d: %w", id, err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.NotFound(id)
		}
		return nil, fmt.Errorf("patching product %d: %w", id, err)
	}
	return &out, nil
}

// UpsertBySKU inserts or refreshes catalog rows keyed by SKU in one batch.
// Stock is only written for new SKUs; existing rows keep their live stock,
// ratings and IDs.
func (r *ProductRepository) UpsertBySKU(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductBySKUSQL,
			p.SKU, p.Name, p.Description, p.Manufacturer, p.Price, string(p.Category), p.Stock,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	for _, p := range products {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upserting product %q: %w", p.SKU, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing upsert batch: %w", err)
	}
	return nil
}

// Reserve decrements stock for every change in one transaction. Rows are
// updated in ascending ID order so concurrent reservations lock in the same
// order.
func (r *ProductRepository) Reserve(ctx context.Context, changes []product.StockChange) error {
	merged, err := mergeChanges(changes)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range merged {
			tag, err := tx.Exec(ctx, reserveStockSQL, c.ProductID, c.Quantity)
			if err != nil {
				return fmt.Errorf("reserving stock of product %d: %w", c.ProductID, err)
			}
			if tag.RowsAffected() == 1 {
				continue
			}

			var (
				name      string
				available int
			)
			if err := tx.QueryRow(ctx, stockOfSQL, c.ProductID).Scan(&name, &available); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return product.NotFound(c.ProductID)
				}
				return fmt.Errorf("reading stock of product %d: %w", c.ProductID, err)
			}
			return &fault.InsufficientStockError{
				ProductID: c.ProductID,
				Name:      name,
				Available: available,
				Requested: c.Quantity,
			}
		}
		return nil
	})
}

// Release returns stock taken by Reserve.
func (r *ProductRepository) Release(ctx context.Context, changes []product.StockChange) error {
	merged, err := mergeChanges(changes)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return releaseStock(ctx, tx, merged)
	})
}

// releaseStock adds merged quantities back within tx.
func releaseStock(ctx context.Context, tx pgx.Tx, merged []product.StockChange) error {
	for _, c := range merged {
		tag, err := tx.Exec(ctx, releaseStockSQL, c.ProductID, c.Quantity)
		if err != nil {
			return fmt.Errorf("releasing stock of product %d: %w", c.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return product.NotFound(c.ProductID)
		}
	}
	return nil
}

// Rate folds rating into the product's running mean in a single statement.
func (r *ProductRepository) Rate(ctx context.Context, id int64, rating int) (*product.Product, error) {
	if err := product.ValidateRating(rating); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, rateProductSQL, id, float64(rating))
	if err != nil {
		return nil, fmt.Errorf("rating product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.NotFound(id)
		}
		return nil, fmt.Errorf("rating product %d: %w", id, err)
	}
	return &p, nil
}

// mergeChanges sums quantities per product and sorts by product ID.
func mergeChanges(changes []product.StockChange) ([]product.StockChange, error) {
	byID := make(map[int64]int, len(changes))
	for _, c := range changes {
		if c.Quantity <= 0 {
			return nil, fault.InvalidArgumentf("quantity must be greater than 0 for product %d", c.ProductID)
		}
		byID[c.ProductID] += c.Quantity
	}
	out := make([]product.StockChange, 0, len(byID))
	for id, qty := range byID {
		out = append(out, product.StockChange{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		category string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Manufacturer, &p.Price, &category,
		&p.Stock, &p.Rating, &p.RatingCount, &p.Active, &p.CreatedAt,
	)
	p.Category = product.Category(category)
	return p, err
}
