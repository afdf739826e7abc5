package cart

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// MaxQuantity bounds a single cart line.
const MaxQuantity = math.MaxInt32

var (
	// ErrItemNotFound is returned when a cart has no line for the product.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity is returned for line quantities outside
	// [1, MaxQuantity].
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
)

// Item is a stored cart line: a live product reference and a quantity.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is the per-account shopping cart. Items are unique by product.
type Cart struct {
	ID        string
	AccountID string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Cart) find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Line is a cart item joined with the live product. Product is nil when
// the referenced product has been deleted.
type Line struct {
	ProductID string
	Quantity  int
	Product   *product.Product
}

// Available reports whether the product still exists and covers the
// quantity.
func (l Line) Available() bool {
	return l.Product != nil && l.Product.Stock >= l.Quantity
}

// View is a cart enriched with live product data.
type View struct {
	Cart  *Cart
	Lines []Line
}

// Repository persists carts. Save replaces the whole item list, so
// concurrent writers resolve as last-writer-wins.
type Repository interface {
	// GetOrCreate returns the account's cart, creating an empty one on
	// first access.
	GetOrCreate(ctx context.Context, accountID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, accountID string) error
}
