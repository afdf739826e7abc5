package product

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]*Product
}

func newMemRepo(products ...Product) *memRepo {
	r := &memRepo{byID: make(map[string]*Product)}
	for i := range products {
		p := products[i]
		r.byID[p.ID] = &p
	}
	return r
}

func (r *memRepo) List(_ context.Context, f Filter) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Product
	for _, p := range r.byID {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Product
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) Create(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.Stock+delta < 0 {
		return 0, ErrInsufficientStock
	}
	p.Stock += delta
	return p.Stock, nil
}

func widget(stock int) Product {
	return Product{
		ID:          "p1",
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.RequireFromString("10.00"),
		Category:    "tools",
		Stock:       stock,
	}
}

func TestCatalog_Create(t *testing.T) {
	repo := newMemRepo()
	c := NewCatalog(repo)
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	p, err := c.Create(context.Background(), Product{
		Name:        "  Lamp ",
		Description: "Desk lamp",
		Price:       decimal.RequireFromString("19.999"),
		Category:    "home",
		Stock:       3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Lamp", p.Name)
	assert.True(t, decimal.RequireFromString("20.00").Equal(p.Price))
	assert.Equal(t, c.now(), p.CreatedAt)

	stored, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
}

func TestCatalog_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		p     Product
		field string
	}{
		{"missing name", Product{Description: "d", Category: "c"}, "name"},
		{"missing description", Product{Name: "n", Category: "c"}, "description"},
		{"missing category", Product{Name: "n", Description: "d"}, "category"},
		{"negative price", Product{Name: "n", Description: "d", Category: "c", Price: decimal.NewFromInt(-1)}, "price"},
		{"negative stock", Product{Name: "n", Description: "d", Category: "c", Stock: -1}, "stock"},
		{"stock too large", Product{Name: "n", Description: "d", Category: "c", Stock: MaxStock + 1}, "stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog(newMemRepo())
			_, err := c.Create(context.Background(), tt.p)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCatalog_UpdateKeepsCreatedAt(t *testing.T) {
	orig := widget(5)
	orig.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(orig)
	c := NewCatalog(repo)

	upd := widget(7)
	upd.Price = decimal.RequireFromString("12.50")
	p, err := c.Update(context.Background(), upd)
	require.NoError(t, err)
	assert.Equal(t, orig.CreatedAt, p.CreatedAt)
	assert.Equal(t, 7, p.Stock)
}

func TestCatalog_UpdateNotFound(t *testing.T) {
	c := NewCatalog(newMemRepo())
	_, err := c.Update(context.Background(), widget(1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_CheckStock(t *testing.T) {
	c := NewCatalog(newMemRepo(widget(5)))

	got, err := c.CheckStock(context.Background(), []StockRequest{
		{ProductID: "p1", Quantity: 5},
		{ProductID: "p1", Quantity: 6},
		{ProductID: "nope", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.True(t, got[0].Available)
	assert.Equal(t, 5, got[0].CurrentStock)
	assert.False(t, got[1].Available)
	assert.Equal(t, 6, got[1].RequestedQuantity)
	assert.False(t, got[2].Available)
	assert.Equal(t, "product not found", got[2].Message)
}

func TestCatalog_CheckStockDoesNotReserve(t *testing.T) {
	repo := newMemRepo(widget(2))
	c := NewCatalog(repo)

	_, err := c.CheckStock(context.Background(), []StockRequest{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	p, err := repo.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestCatalog_Decrement(t *testing.T) {
	repo := newMemRepo(widget(5))
	c := NewCatalog(repo)
	ctx := context.Background()

	stock, err := c.Decrement(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	_, err = c.Decrement(ctx, "p1", 4)
	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, 3, isErr.Available)
	assert.Equal(t, 4, isErr.Requested)
	assert.Equal(t, "Widget", isErr.Name)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = c.Decrement(ctx, "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = c.Decrement(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_AdjustStockRestock(t *testing.T) {
	c := NewCatalog(newMemRepo(widget(0)))

	stock, err := c.AdjustStock(context.Background(), "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, stock)
}

func TestCatalog_AdjustStockOutOfRange(t *testing.T) {
	repo := newMemRepo(widget(5))
	c := NewCatalog(repo)
	ctx := context.Background()

	for _, delta := range []int{MaxStock + 1, -MaxStock - 1, math.MaxInt, math.MinInt} {
		_, err := c.AdjustStock(ctx, "p1", delta)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, "delta %d", delta)
		assert.Equal(t, "delta", vErr.Field)
	}

	_, err := c.Decrement(ctx, "p1", math.MaxInt)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	p, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestCatalog_ConcurrentDecrementNeverNegative(t *testing.T) {
	repo := newMemRepo(widget(10))
	c := NewCatalog(repo)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Decrement(context.Background(), "p1", 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := repo.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 0, p.Stock)
}
