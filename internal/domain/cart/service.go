package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// Service manages carts and their enrichment with catalog data.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products, now: time.Now}
}

// Get returns the account's cart, creating it if needed.
func (s *Service) Get(ctx context.Context, accountID string) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.view(ctx, c)
}

// Add puts quantity units of a product into the cart, merging with an
// existing line for the same product.
func (s *Service) Add(ctx context.Context, accountID, productID string, quantity int) (*View, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	c, err := s.carts.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if i := c.find(productID); i >= 0 {
		if quantity > MaxQuantity-c.Items[i].Quantity {
			return nil, ErrInvalidQuantity
		}
		c.Items[i].Quantity += quantity
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity})
	}
	return s.save(ctx, c)
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, accountID, productID string, quantity int) (*View, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}
	c, err := s.carts.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	i := c.find(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	c.Items[i].Quantity = quantity
	return s.save(ctx, c)
}

// Remove drops the product's line. Removing an absent product is not an
// error.
func (s *Service) Remove(ctx context.Context, accountID, productID string) (*View, error) {
	c, err := s.carts.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if i := c.find(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	return s.save(ctx, c)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, accountID string) error {
	if err := s.carts.Clear(ctx, accountID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func validQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}

func (s *Service) save(ctx context.Context, c *Cart) (*View, error) {
	c.UpdatedAt = s.now().UTC()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return s.view(ctx, c)
}

// view joins lines with live products. Missing products are reported on
// the line instead of failing the read.
func (s *Service) view(ctx context.Context, c *Cart) (*View, error) {
	v := &View{Cart: c, Lines: make([]Line, len(c.Items))}
	if len(c.Items) == 0 {
		return v, nil
	}

	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	for i, it := range c.Items {
		v.Lines[i] = Line{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product:   byID[it.ProductID],
		}
	}
	return v, nil
}
