package product

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxStock is the largest stock counter, and the largest single
// adjustment, the store accepts.
const MaxStock = math.MaxInt32

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a stock change would drive the
	// counter below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned for non-positive stock requests.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
	ImageURL    string
	// ASIN links the product to the external review source. Empty when the
	// product has no external listing.
	ASIN      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsufficientStockError reports a product whose live stock does not cover
// the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested", name, e.Available, e.Requested)
}

// Is reports ErrInsufficientStock as a match so callers can test with
// errors.Is without unwrapping the concrete type.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError describes a rejected product field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// Filter narrows product listings.
type Filter struct {
	Category string
}

// StockChange is a single product quantity used by batch stock operations.
type StockChange struct {
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// AdjustStock adds delta to the stock counter in a single statement and
	// returns the new value. It returns ErrInsufficientStock when the result
	// would be negative and ErrNotFound when the product does not exist.
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}

// Importer inserts or refreshes products keyed by ASIN. Used by bulk catalog
// tooling; the request path never calls it.
type Importer interface {
	Upsert(ctx context.Context, p *Product) (created bool, err error)
}
