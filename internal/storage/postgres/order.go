package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	orderColumns = `id, order_number, account_id, items, total, shipping_address,
		payment_method, status, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByAccountSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`

	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	markPaidSQL = `UPDATE orders SET status = 'paid', payment_method = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + orderColumns

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`

	restockSQL = `UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`

	productStockSQL = `SELECT name, stock FROM products WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Place decrements stock for every item and inserts the order in a single
// transaction. Products are locked in ID order so concurrent placements
// cannot deadlock.
func (r *OrderRepository) Place(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range quantities(o.Items) {
			tag, err := tx.Exec(ctx, decrementStockSQL, c.ProductID, c.Quantity)
			if err != nil {
				return fmt.Errorf("decrementing stock of %q: %w", c.ProductID, err)
			}
			if tag.RowsAffected() == 0 {
				return shortage(ctx, tx, c)
			}
		}

		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Number, o.AccountID, itemsJSON, o.Total, addrJSON,
			o.PaymentMethod, o.Status, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "orders_order_number_key") {
				return order.ErrDuplicateNumber
			}
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		return nil
	})
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByAccount returns the account's orders, newest first.
func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByAccountSQL, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", accountID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Transition moves an order from one status to another. The write only
// happens if the stored status still equals from.
func (r *OrderRepository) Transition(ctx context.Context, id string, from, to order.Status, restock bool) (*order.Order, error) {
	var updated order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.conditional(ctx, tx, id, transitionOrderSQL, id, from, to)
		if err != nil {
			return err
		}
		if restock {
			if err := returnStock(ctx, tx, o.Items); err != nil {
				return err
			}
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an order still in status from.
func (r *OrderRepository) Delete(ctx context.Context, id string, from order.Status, restock bool) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.conditional(ctx, tx, id, deleteOrderSQL, id, from)
		if err != nil {
			return err
		}
		if restock {
			return returnStock(ctx, tx, o.Items)
		}
		return nil
	})
}

// MarkPaid moves a pending order to paid and records the method.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, method order.PaymentMethod) (*order.Order, error) {
	var paid *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.conditional(ctx, tx, id, markPaidSQL, id, method)
		paid = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// conditional runs a status-guarded statement returning the order row. No
// row means the order is gone or its status moved on.
func (r *OrderRepository) conditional(ctx context.Context, tx pgx.Tx, id, sql string, args ...any) (*order.Order, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStatusChanged
}

// quantities sums item quantities per product, sorted by product ID.
func quantities(items []order.Item) []product.StockChange {
	byID := make(map[string]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Quantity
	}
	out := make([]product.StockChange, 0, len(byID))
	for id, qty := range byID {
		out = append(out, product.StockChange{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// shortage explains a rejected decrement. The caller rolls back.
func shortage(ctx context.Context, tx pgx.Tx, c product.StockChange) error {
	var (
		name  string
		stock int
	)
	err := tx.QueryRow(ctx, productStockSQL, c.ProductID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return &order.ProductNotFoundError{ProductID: c.ProductID}
	}
	if err != nil {
		return fmt.Errorf("reading stock of %q: %w", c.ProductID, err)
	}
	return &product.InsufficientStockError{
		ProductID: c.ProductID,
		Name:      name,
		Available: stock,
		Requested: c.Quantity,
	}
}

// returnStock adds item quantities back. Products deleted since the order
// was placed are skipped.
func returnStock(ctx context.Context, tx pgx.Tx, items []order.Item) error {
	for _, c := range quantities(items) {
		if _, err := tx.Exec(ctx, restockSQL, c.ProductID, c.Quantity); err != nil {
			return fmt.Errorf("restocking %q: %w", c.ProductID, err)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		items    []byte
		shipping []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.AccountID, &items, &o.Total, &shipping,
		&o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	return o, nil
}
