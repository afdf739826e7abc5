package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockRequest asks whether a product can cover a quantity.
type StockRequest struct {
	ProductID string
	Quantity  int
}

// StockStatus is the advisory answer to a StockRequest. Nothing is reserved.
type StockStatus struct {
	ProductID         string
	Available         bool
	CurrentStock      int
	RequestedQuantity int
	// Message is set when the product could not be resolved.
	Message string
}

// Catalog encapsulates catalog administration and stock bookkeeping.
type Catalog struct {
	repo Repository
	now  func() time.Time
}

// NewCatalog creates a Catalog backed by the given Repository.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo, now: time.Now}
}

// List returns products matching filter.
func (c *Catalog) List(ctx context.Context, filter Filter) ([]Product, error) {
	products, err := c.repo.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Get returns a single product.
func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	return c.repo.GetByID(ctx, id)
}

// Create validates and stores a new product, assigning its ID.
func (c *Catalog) Create(ctx context.Context, p Product) (*Product, error) {
	p = normalize(p)
	if err := validate(p); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := c.repo.Create(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return &p, nil
}

// Update replaces the editable fields of an existing product.
func (c *Catalog) Update(ctx context.Context, p Product) (*Product, error) {
	existing, err := c.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	p = normalize(p)
	if err := validate(p); err != nil {
		return nil, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = c.now().UTC()
	if err := c.repo.Update(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return &p, nil
}

// Delete removes a product. Carts referencing it keep a dangling entry
// which readers must tolerate.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.repo.Delete(ctx, id)
}

// CheckStock reports, per request, whether current stock covers the
// requested quantity. The answer is advisory and may be stale by the time
// an order is placed.
func (c *Catalog) CheckStock(ctx context.Context, reqs []StockRequest) ([]StockStatus, error) {
	if len(reqs) == 0 {
		return []StockStatus{}, nil
	}

	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ProductID
	}
	fetched, err := c.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]StockStatus, len(reqs))
	for i, r := range reqs {
		p, ok := byID[r.ProductID]
		if !ok {
			out[i] = StockStatus{
				ProductID:         r.ProductID,
				RequestedQuantity: r.Quantity,
				Message:           "product not found",
			}
			continue
		}
		out[i] = StockStatus{
			ProductID:         r.ProductID,
			Available:         p.Stock >= r.Quantity,
			CurrentStock:      p.Stock,
			RequestedQuantity: r.Quantity,
		}
	}
	return out, nil
}

// AdjustStock applies delta to the product's stock counter. Negative
// deltas fail with ErrInsufficientStock instead of going below zero.
func (c *Catalog) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	if delta > MaxStock || delta < -MaxStock {
		return 0, &ValidationError{Field: "delta", Reason: fmt.Sprintf("must be within ±%d", MaxStock)}
	}
	stock, err := c.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return 0, c.insufficient(ctx, id, -delta)
		}
		return 0, err
	}
	return stock, nil
}

// Decrement removes quantity units if, and only if, enough are in stock.
func (c *Catalog) Decrement(ctx context.Context, id string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return c.AdjustStock(ctx, id, -quantity)
}

// insufficient builds a descriptive error for a rejected decrement. The
// re-read is best effort; the rejection itself already happened atomically.
func (c *Catalog) insufficient(ctx context.Context, id string, requested int) error {
	e := &InsufficientStockError{ProductID: id, Requested: requested}
	if p, err := c.repo.GetByID(ctx, id); err == nil {
		e.Name = p.Name
		e.Available = p.Stock
	}
	return e
}

func normalize(p Product) Product {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	p.ASIN = strings.TrimSpace(p.ASIN)
	p.Price = p.Price.Round(2)
	return p
}

func validate(p Product) error {
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case p.Description == "":
		return &ValidationError{Field: "description", Reason: "required"}
	case p.Category == "":
		return &ValidationError{Field: "category", Reason: "required"}
	case p.Price.LessThan(decimal.Zero):
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case p.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	case p.Stock > MaxStock:
		return &ValidationError{Field: "stock", Reason: fmt.Sprintf("must not exceed %d", MaxStock)}
	}
	return nil
}
