//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = c.Terminate(ctx) }()

	endpoint, err := c.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres endpoint: %v\n", err)
		return 1
	}

	testPool, err = NewPool(ctx, "postgres://storefront:storefront@"+endpoint+"/storefront?sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}
	// Migrations must be idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations rerun: %v\n", err)
		return 1
	}

	return m.Run()
}

// --- Helpers ---

func seedProduct(t *testing.T, price string, stock int) *product.Product {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &product.Product{
		ID:          uuid.NewString(),
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.RequireFromString(price),
		Category:    "tools",
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, NewProductRepository(testPool).Create(context.Background(), p))
	return p
}

func seedAccount(t *testing.T) *account.Account {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.NewString()
	a := &account.Account{
		ID:           id,
		Username:     "user-" + id[:8],
		Email:        id[:8] + "@example.com",
		PasswordHash: "hash",
		Role:         auth.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewAccountRepository(testPool).Create(context.Background(), a))
	return a
}

func newOrder(accountID string, items ...order.Item) *order.Order {
	now := time.Now().UTC()
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return &order.Order{
		ID:        uuid.NewString(),
		Number:    order.NewNumber(),
		AccountID: accountID,
		Items:     items,
		Total:     total,
		ShippingAddress: order.ShippingAddress{
			Name: "Ada", Address: "1 St", City: "London", PostalCode: "N1", Phone: "1",
		},
		PaymentMethod: order.PaymentCreditCard,
		Status:        order.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func stock(t *testing.T, id string) int {
	t.Helper()
	p, err := NewProductRepository(testPool).GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// --- Products ---

func TestProductRepository_CRUD(t *testing.T) {
	repo := NewProductRepository(testPool)
	ctx := context.Background()
	p := seedProduct(t, "12.34", 3)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(got.Price))
	assert.Empty(t, got.ASIN)

	got.Name = "Renamed"
	got.ASIN = "ASIN-" + p.ID[:8]
	require.NoError(t, repo.Update(ctx, got))

	list, err := repo.List(ctx, product.Filter{Category: "tools"})
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, product.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, p.ID), product.ErrNotFound)
}

func TestProductRepository_AdjustStock(t *testing.T) {
	repo := NewProductRepository(testPool)
	ctx := context.Background()
	p := seedProduct(t, "1.00", 2)

	n, err := repo.AdjustStock(ctx, p.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = repo.AdjustStock(ctx, p.ID, -1)
	require.ErrorIs(t, err, product.ErrInsufficientStock)

	_, err = repo.AdjustStock(ctx, "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = repo.AdjustStock(ctx, p.ID, product.MaxStock)
	require.NoError(t, err)
	_, err = repo.AdjustStock(ctx, p.ID, 1)
	var vErr *product.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "stock", vErr.Field)
}

func TestProductRepository_Upsert(t *testing.T) {
	repo := NewProductRepository(testPool)
	ctx := context.Background()
	asin := "B0" + uuid.NewString()[:8]

	p := &product.Product{
		ID: uuid.NewString(), Name: "First", Description: "d", Price: decimal.NewFromInt(5),
		Category: "c", Stock: 7, ASIN: asin, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	created, err := repo.Upsert(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := p.ID

	again := *p
	again.ID = uuid.NewString()
	again.Name = "Second"
	again.Stock = 100
	created, err = repo.Upsert(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, again.ID)

	got, err := repo.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)
	assert.Equal(t, 7, got.Stock)
}

// --- Orders ---

func TestOrderRepository_PlaceDecrementsAndInserts(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "10.00", 5)

	o := newOrder(a.ID, order.Item{ProductID: p.ID, Name: p.Name, Quantity: 2, Price: p.Price})
	require.NoError(t, repo.Place(ctx, o))
	assert.Equal(t, 3, stock(t, p.ID))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.True(t, decimal.RequireFromString("20.00").Equal(got.Total))
	require.Len(t, got.Items, 1)
	assert.True(t, p.Price.Equal(got.Items[0].Price))
	assert.Equal(t, "London", got.ShippingAddress.City)
}

func TestOrderRepository_PlaceIsAllOrNothing(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	plenty := seedProduct(t, "1.00", 10)
	scarce := seedProduct(t, "1.00", 1)

	o := newOrder(a.ID,
		order.Item{ProductID: plenty.ID, Quantity: 3, Price: plenty.Price},
		order.Item{ProductID: scarce.ID, Quantity: 2, Price: scarce.Price},
	)
	err := repo.Place(ctx, o)

	var isErr *product.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, scarce.ID, isErr.ProductID)
	assert.Equal(t, 1, isErr.Available)
	assert.Equal(t, 10, stock(t, plenty.ID))
	assert.Equal(t, 1, stock(t, scarce.ID))
	_, err = repo.Get(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_PlaceMissingProduct(t *testing.T) {
	repo := NewOrderRepository(testPool)
	a := seedAccount(t)

	err := repo.Place(context.Background(), newOrder(a.ID, order.Item{ProductID: "gone", Quantity: 1, Price: decimal.NewFromInt(1)}))
	var pnf *order.ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
}

func TestOrderRepository_DuplicateNumber(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 5)

	first := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	require.NoError(t, repo.Place(ctx, first))

	second := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	second.Number = first.Number
	require.ErrorIs(t, repo.Place(ctx, second), order.ErrDuplicateNumber)
	assert.Equal(t, 4, stock(t, p.ID), "failed insert must roll back its decrement")
}

func TestOrderRepository_ConcurrentLastUnit(t *testing.T) {
	repo := NewOrderRepository(testPool)
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 1)

	const buyers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Place(context.Background(), newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price}))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, product.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, stock(t, p.ID))
}

func TestOrderRepository_TransitionAndRestock(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 5)
	o := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 2, Price: p.Price})
	require.NoError(t, repo.Place(ctx, o))

	_, err := repo.Transition(ctx, o.ID, order.StatusPaid, order.StatusShipped, false)
	require.ErrorIs(t, err, order.ErrStatusChanged)

	cancelled, err := repo.Transition(ctx, o.ID, order.StatusPending, order.StatusCancelled, true)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, stock(t, p.ID))

	_, err = repo.Transition(ctx, "missing", order.StatusPending, order.StatusPaid, false)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_MarkPaidIsConditional(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 5)
	o := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	require.NoError(t, repo.Place(ctx, o))

	paid, err := repo.MarkPaid(ctx, o.ID, order.PaymentPayPal)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, order.PaymentPayPal, paid.PaymentMethod)

	_, err = repo.MarkPaid(ctx, o.ID, order.PaymentPayPal)
	require.ErrorIs(t, err, order.ErrStatusChanged)
}

func TestOrderRepository_DeleteReleasesStock(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 5)
	o := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 3, Price: p.Price})
	require.NoError(t, repo.Place(ctx, o))

	require.ErrorIs(t, repo.Delete(ctx, o.ID, order.StatusPaid, true), order.ErrStatusChanged)
	require.NoError(t, repo.Delete(ctx, o.ID, order.StatusPending, true))
	assert.Equal(t, 5, stock(t, p.ID))
	require.ErrorIs(t, repo.Delete(ctx, o.ID, order.StatusPending, true), order.ErrNotFound)
}

func TestOrderRepository_ListNewestFirst(t *testing.T) {
	repo := NewOrderRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)
	p := seedProduct(t, "1.00", 5)

	older := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newOrder(a.ID, order.Item{ProductID: p.ID, Quantity: 1, Price: p.Price})
	require.NoError(t, repo.Place(ctx, older))
	require.NoError(t, repo.Place(ctx, newer))

	list, err := repo.ListByAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
}

// --- Accounts & carts ---

func TestAccountRepository_Unique(t *testing.T) {
	repo := NewAccountRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)

	dup := *a
	dup.ID = uuid.NewString()
	dup.Username = "someone-else"
	require.ErrorIs(t, repo.Create(ctx, &dup), account.ErrExists)

	got, err := repo.GetByEmail(ctx, a.Email)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got.Addresses = []account.Address{{Street: "s", City: "c", PostalCode: "p", IsDefault: true}}
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, again.Addresses, 1)
	assert.True(t, again.Addresses[0].IsDefault)
}

func TestCartRepository(t *testing.T) {
	repo := NewCartRepository(testPool)
	ctx := context.Background()
	a := seedAccount(t)

	c, err := repo.GetOrCreate(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c.Items = []cart.Item{{ProductID: "p1", Quantity: 2}}
	c.UpdatedAt = time.Now()
	require.NoError(t, repo.Save(ctx, c))

	again, err := repo.GetOrCreate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, c.Items, again.Items)

	require.NoError(t, repo.Clear(ctx, a.ID))
	cleared, err := repo.GetOrCreate(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)
}
