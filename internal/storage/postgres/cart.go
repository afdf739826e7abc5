package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	// getOrCreateCartSQL always returns the row: the no-op update makes
	// RETURNING fire on conflict too.
	getOrCreateCartSQL = `INSERT INTO carts (id, account_id) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING id, account_id, items, created_at, updated_at`

	saveCartSQL = `UPDATE carts SET items = $2, updated_at = $3 WHERE account_id = $1`

	clearCartSQL = `UPDATE carts SET items = '[]', updated_at = NOW() WHERE account_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Items
// live in a JSONB document so every save replaces the whole list.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the account's cart, creating an empty one if needed.
func (r *CartRepository) GetOrCreate(ctx context.Context, accountID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getOrCreateCartSQL, uuid.New().String(), accountID)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", accountID, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", accountID, err)
	}
	return &c, nil
}

// Save replaces the cart's item list.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}
	if _, err := r.pool.Exec(ctx, saveCartSQL, c.AccountID, itemsJSON, c.UpdatedAt); err != nil {
		return fmt.Errorf("saving cart of %q: %w", c.AccountID, err)
	}
	return nil
}

// Clear empties the cart. A missing cart is already empty.
func (r *CartRepository) Clear(ctx context.Context, accountID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, accountID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", accountID, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c     cart.Cart
		items []byte
	)
	if err := row.Scan(&c.ID, &c.AccountID, &items, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return c, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	return c, nil
}
