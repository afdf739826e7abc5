package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// ErrDeclined is returned when the simulated charge fails. The order is
// left unchanged and the caller may retry.
var ErrDeclined = errors.New("payment declined, please try again")

// DefaultSuccessRate is the probability that a simulated charge succeeds.
const DefaultSuccessRate = 0.9

// Intent is a simulated payment intent handed to the client before
// confirmation.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       decimal.Decimal
	Currency     string
}

// Result is the outcome of a successful confirmation.
type Result struct {
	Order *order.Order
	// AlreadyPaid is set when the order was paid before this call. No new
	// charge was drawn and no notification was sent.
	AlreadyPaid bool
}

// Status is the payment view of an order.
type Status struct {
	Status order.Status
	Paid   bool
}

// Orders is the slice of order storage the payment flow needs.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	MarkPaid(ctx context.Context, id string, method order.PaymentMethod) (*order.Order, error)
}

// Carts empties an account's cart after a successful payment.
type Carts interface {
	Clear(ctx context.Context, accountID string) error
}

// Notifier receives paid orders for confirmation delivery. Notify must not
// block.
type Notifier interface {
	Notify(o *order.Order)
}
