package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// PaymentMethod is the closed set of accepted payment tags.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPayPal     PaymentMethod = "paypal"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentPayPal:
		return true
	}
	return false
}

// Order is an immutable purchase record. Only Status and PaymentMethod
// change after creation.
type Order struct {
	ID              string
	Number          string
	AccountID       string
	Items           []Item
	Total           decimal.Decimal
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a line item with the catalog price frozen at creation time.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineTotal returns price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingAddress is the delivery snapshot stored with an order.
type ShippingAddress struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyItems is returned when an order has no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrInvalidState is the class of errors for operations the current
	// status does not allow.
	ErrInvalidState = errors.New("invalid order state")
	// ErrStatusChanged is returned by conditional writes when the stored
	// status no longer matches the one the caller read.
	ErrStatusChanged = errors.Wrap(ErrInvalidState, "order status changed concurrently")
	// ErrDuplicateNumber is returned by Repository.Place when the order
	// number collides with an existing one.
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item quantity outside
// [1, product.MaxStock].
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", product.MaxStock, e.ProductID)
}

// InvalidInputError indicates a missing or malformed request field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports an operation rejected because of the order's status.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s order in status %q", e.Op, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Place decrements stock for every item and inserts the order in one
	// transaction. A decrement that would go below zero aborts everything
	// and returns *product.InsufficientStockError.
	Place(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByAccount returns the account's orders, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]Order, error)
	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// Transition moves an order from one status to another if it is still
	// in from. With restock set, item quantities go back to stock in the
	// same transaction.
	Transition(ctx context.Context, id string, from, to Status, restock bool) (*Order, error)
	// Delete removes an order if it is still in status from, optionally
	// returning its quantities to stock in the same transaction.
	Delete(ctx context.Context, id string, from Status, restock bool) error
	// MarkPaid moves a pending order to paid and records the method.
	MarkPaid(ctx context.Context, id string, method PaymentMethod) (*Order, error)
}
