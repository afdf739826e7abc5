package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, category, stock, image_url, asin, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE ($1 = '' OR category = $1) ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, stock = $6,
			image_url = $7, asin = $8, updated_at = $9
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	// adjustStockSQL never lets stock go below zero: the guard and the write
	// are one statement on one row.
	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (asin) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
			category = EXCLUDED.category, image_url = EXCLUDED.image_url, updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Importer   = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products, newest first.
func (r *ProductRepository) List(ctx context.Context, filter product.Filter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, filter.Category)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Stock,
		p.ImageURL, nullString(p.ASIN), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "products_asin_key") {
			return &product.ValidationError{Field: "asin", Reason: "already in use"}
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update overwrites the editable fields of a product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Stock,
		p.ImageURL, nullString(p.ASIN), p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "products_asin_key") {
			return &product.ValidationError{Field: "asin", Reason: "already in use"}
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// AdjustStock adds delta to the stock counter and returns the new value.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, adjustStockSQL, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if isOutOfRange(err) {
		return 0, &product.ValidationError{Field: "stock", Reason: "exceeds maximum"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjusting stock of %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return 0, product.ErrNotFound
	}
	return 0, product.ErrInsufficientStock
}

// Upsert inserts a product or refreshes the one with the same ASIN. Stock
// and identity of an existing product are kept. p.ID is set to the stored
// identifier.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) (bool, error) {
	if p.ASIN == "" {
		return false, errors.New("upsert requires an ASIN")
	}
	var inserted bool
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Stock,
		p.ImageURL, p.ASIN, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upserting product %q: %w", p.ASIN, err)
	}
	return inserted, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p    product.Product
		asin *string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock,
		&p.ImageURL, &asin, &p.CreatedAt, &p.UpdatedAt,
	)
	p.ASIN = fromNullString(asin)
	return p, err
}
