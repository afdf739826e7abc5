//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const testAdminCode = "integration-admin"

var (
	baseURL    string
	httpClient *http.Client
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

// Response types are declared locally so the tests only see the wire format.

type sessionResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

type productResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Stock    int     `json:"stock"`
}

type cartResponse struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Available bool   `json:"available"`
	} `json:"items"`
}

type orderResponse struct {
	ID          string  `json:"id"`
	OrderNumber string  `json:"orderNumber"`
	TotalAmount float64 `json:"totalAmount"`
	Status      string  `json:"status"`
	Summary     struct {
		Subtotal float64 `json:"subtotal"`
		Tax      float64 `json:"tax"`
		Shipping float64 `json:"shipping"`
		Total    float64 `json:"total"`
	} `json:"summary"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		WaitForService("redis", wait.ForLog("Ready to accept connections")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Printf("compose up: %v", err)
		return 1
	}

	pgAddr, err := serviceAddr(ctx, dc, "postgres", "5432/tcp")
	if err != nil {
		log.Printf("postgres address: %v", err)
		return 1
	}
	redisAddr, err := serviceAddr(ctx, dc, "redis", "6379/tcp")
	if err != nil {
		log.Printf("redis address: %v", err)
		return 1
	}

	cfg := &Config{
		Addr:        defaultAddr,
		DatabaseURL: fmt.Sprintf("postgres://shop:shop@%s/shop?sslmode=disable", pgAddr),
		RedisURL:    fmt.Sprintf("redis://%s/0", redisAddr),
		Auth: AuthConfig{
			JWTSecret:  "integration-secret",
			TokenTTL:   time.Hour,
			AdminCode:  testAdminCode,
			BcryptCost: 4,
		},
		Payment: PaymentConfig{SuccessRate: 1},
		Pricing: PricingConfig{TaxRate: 0.13, ShippingFee: 9.90},
		Mail: MailConfig{
			Workers:     1,
			QueueSize:   10,
			SendTimeout: time.Second,
		},
		Reviews: ReviewsConfig{
			CacheTTL: time.Minute,
			Timeout:  time.Second,
		},
		RateLimit: RateLimitConfig{Max: 100000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
	}

	a, err := New(ctx, zap.NewNop(), noopTelemetry{}, cfg)
	if err != nil {
		log.Printf("create app: %v", err)
		return 1
	}
	defer a.Close()

	a.health.Start(ctx, time.Second)
	a.health.SetReady(true)
	defer a.health.Stop()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	baseURL = srv.URL
	httpClient = &http.Client{Timeout: 10 * time.Second}

	return m.Run()
}

func serviceAddr(ctx context.Context, dc *tc.DockerCompose, service, port string) (string, error) {
	c, err := dc.ServiceContainer(ctx, service)
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func expect[T any](t *testing.T, resp *http.Response, status int) T {
	t.Helper()
	if resp.StatusCode != status {
		msg := decodeJSON[messageResponse](t, resp)
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, msg.Message)
	}
	return decodeJSON[T](t, resp)
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func registerCustomer(t *testing.T, name string) sessionResponse {
	t.Helper()
	resp := do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": name,
		"email":    uniqueEmail(name),
		"password": "secret123",
	})
	return expect[sessionResponse](t, resp, http.StatusCreated)
}

func registerAdmin(t *testing.T) sessionResponse {
	t.Helper()
	resp := do(t, http.MethodPost, "/api/auth/register-admin", "", map[string]any{
		"username":  "admin",
		"email":     uniqueEmail("admin"),
		"password":  "secret123",
		"adminCode": testAdminCode,
	})
	return expect[sessionResponse](t, resp, http.StatusCreated)
}

func createProduct(t *testing.T, adminToken, name string, price float64, stock int) productResponse {
	t.Helper()
	resp := do(t, http.MethodPost, "/api/products", adminToken, map[string]any{
		"name":        name,
		"description": name + " for testing",
		"price":       price,
		"category":    "testing",
		"stock":       stock,
		"imageUrl":    "/img/test.png",
	})
	return expect[productResponse](t, resp, http.StatusCreated)
}

func placeOrder(t *testing.T, token, productID string, quantity int) *http.Response {
	t.Helper()
	return do(t, http.MethodPost, "/api/orders", token, map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": quantity}},
		"shippingAddress": map[string]any{
			"name":       "Test Customer",
			"address":    "1 Main St",
			"city":       "Toronto",
			"postalCode": "M5V 1A1",
			"phone":      "555-0100",
		},
		"paymentMethod": "credit_card",
	})
}

func getProduct(t *testing.T, id string) productResponse {
	t.Helper()
	return expect[productResponse](t, do(t, http.MethodGet, "/api/products/"+id, "", nil), http.StatusOK)
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := do(t, http.MethodGet, path, "", nil)
			body := expect[map[string]any](t, resp, http.StatusOK)
			assert.Equal(t, "ok", body["status"])
		})
	}
}

func TestAuthFlow(t *testing.T) {
	email := uniqueEmail("alice")
	resp := do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "alice",
		"email":    email,
		"password": "secret123",
	})
	reg := expect[sessionResponse](t, resp, http.StatusCreated)
	assert.Equal(t, "customer", reg.Role)
	assert.NotEmpty(t, reg.Token)

	resp = do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "alice2",
		"email":    email,
		"password": "secret123",
	})
	expect[messageResponse](t, resp, http.StatusConflict)

	resp = do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "wrong-password"})
	expect[messageResponse](t, resp, http.StatusUnauthorized)

	resp = do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "secret123"})
	login := expect[sessionResponse](t, resp, http.StatusOK)

	me := expect[sessionResponse](t, do(t, http.MethodGet, "/api/auth/me", login.Token, nil), http.StatusOK)
	assert.Equal(t, reg.ID, me.ID)

	resp = do(t, http.MethodPost, "/api/auth/register-admin", "", map[string]any{
		"username":  "mallory",
		"email":     uniqueEmail("mallory"),
		"password":  "secret123",
		"adminCode": "guess",
	})
	expect[messageResponse](t, resp, http.StatusForbidden)
}

func TestProductAdministration(t *testing.T) {
	admin := registerAdmin(t)
	customer := registerCustomer(t, "bob")

	resp := do(t, http.MethodPost, "/api/products", customer.Token, map[string]any{
		"name": "Nope", "price": 1, "category": "testing", "stock": 1,
	})
	expect[messageResponse](t, resp, http.StatusForbidden)

	p := createProduct(t, admin.Token, "Desk Lamp", 24.50, 4)
	assert.Equal(t, 4, p.Stock)

	resp = do(t, http.MethodPut, "/api/products/"+p.ID, admin.Token, map[string]any{"price": 19.99})
	updated := expect[productResponse](t, resp, http.StatusOK)
	assert.Equal(t, "Desk Lamp", updated.Name)
	assert.InDelta(t, 19.99, updated.Price, 0.001)

	resp = do(t, http.MethodPost, "/api/products/"+p.ID+"/stock-adjustments", admin.Token, map[string]any{"delta": 6})
	stock := expect[map[string]any](t, resp, http.StatusOK)
	assert.EqualValues(t, 10, stock["currentStock"])

	resp = do(t, http.MethodPost, "/api/products/"+p.ID+"/stock-adjustments", admin.Token, map[string]any{"delta": -11})
	expect[messageResponse](t, resp, http.StatusBadRequest)
	assert.Equal(t, 10, getProduct(t, p.ID).Stock)

	resp = do(t, http.MethodGet, "/api/products?category=testing", "", nil)
	list := expect[[]productResponse](t, resp, http.StatusOK)
	assert.NotEmpty(t, list)

	resp = do(t, http.MethodGet, "/api/products/"+p.ID+"/reviews", "", nil)
	reviews := expect[[]map[string]any](t, resp, http.StatusOK)
	assert.NotEmpty(t, reviews)

	expect[messageResponse](t, do(t, http.MethodDelete, "/api/products/"+p.ID, admin.Token, nil), http.StatusOK)
	expect[messageResponse](t, do(t, http.MethodGet, "/api/products/"+p.ID, "", nil), http.StatusNotFound)
}

func TestCheckoutFlow(t *testing.T) {
	admin := registerAdmin(t)
	customer := registerCustomer(t, "carol")
	p := createProduct(t, admin.Token, "Coffee Mug", 10, 5)

	resp := do(t, http.MethodPost, "/api/cart/add", customer.Token, map[string]any{"productId": p.ID, "quantity": 2})
	cart := expect[cartResponse](t, resp, http.StatusOK)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Available)

	resp = placeOrder(t, customer.Token, p.ID, 2)
	o := expect[orderResponse](t, resp, http.StatusCreated)
	assert.Equal(t, "pending", o.Status)
	assert.InDelta(t, 20, o.TotalAmount, 0.001)
	assert.InDelta(t, 2.6, o.Summary.Tax, 0.001)
	assert.InDelta(t, 32.5, o.Summary.Total, 0.001)
	assert.Equal(t, 3, getProduct(t, p.ID).Stock)

	// Other customers cannot see the order.
	stranger := registerCustomer(t, "dave")
	expect[messageResponse](t, do(t, http.MethodGet, "/api/orders/"+o.ID, stranger.Token, nil), http.StatusForbidden)

	resp = do(t, http.MethodPost, "/api/payments/create-payment-intent", customer.Token, map[string]any{"orderId": o.ID})
	intent := expect[map[string]any](t, resp, http.StatusOK)
	assert.NotEmpty(t, intent["clientSecret"])

	resp = do(t, http.MethodPost, "/api/payments/confirm-payment", customer.Token, map[string]any{
		"orderId": o.ID, "paymentMethod": "credit_card",
	})
	paid := expect[map[string]any](t, resp, http.StatusOK)
	assert.Equal(t, true, paid["success"])
	assert.Equal(t, false, paid["alreadyPaid"])

	// Confirming again is idempotent.
	resp = do(t, http.MethodPost, "/api/payments/confirm-payment", customer.Token, map[string]any{
		"orderId": o.ID, "paymentMethod": "credit_card",
	})
	again := expect[map[string]any](t, resp, http.StatusOK)
	assert.Equal(t, true, again["alreadyPaid"])

	status := expect[map[string]any](t, do(t, http.MethodGet, "/api/payments/payment-status/"+o.ID, customer.Token, nil), http.StatusOK)
	assert.Equal(t, "paid", status["status"])
	assert.Equal(t, true, status["paid"])

	cart = expect[cartResponse](t, do(t, http.MethodGet, "/api/cart", customer.Token, nil), http.StatusOK)
	assert.Empty(t, cart.Items)

	// A paid order can no longer be deleted; the admin ships it.
	expect[messageResponse](t, do(t, http.MethodDelete, "/api/orders/"+o.ID, customer.Token, nil), http.StatusConflict)
	resp = do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", admin.Token, map[string]any{"status": "shipped"})
	shipped := expect[orderResponse](t, resp, http.StatusOK)
	assert.Equal(t, "shipped", shipped.Status)

	mine := expect[[]orderResponse](t, do(t, http.MethodGet, "/api/orders/my-orders", customer.Token, nil), http.StatusOK)
	require.Len(t, mine, 1)
	assert.Equal(t, o.ID, mine[0].ID)
}

func TestCancelRestoresStock(t *testing.T) {
	admin := registerAdmin(t)
	customer := registerCustomer(t, "erin")
	p := createProduct(t, admin.Token, "Notebook", 3.25, 4)

	o := expect[orderResponse](t, placeOrder(t, customer.Token, p.ID, 3), http.StatusCreated)
	assert.Equal(t, 1, getProduct(t, p.ID).Stock)

	resp := do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", customer.Token, map[string]any{"status": "cancelled"})
	cancelled := expect[orderResponse](t, resp, http.StatusOK)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, 4, getProduct(t, p.ID).Stock)

	// Cancelling twice must not restock twice.
	do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", customer.Token, map[string]any{"status": "cancelled"}).Body.Close()
	assert.Equal(t, 4, getProduct(t, p.ID).Stock)
}

func TestInsufficientStockLeavesInventory(t *testing.T) {
	admin := registerAdmin(t)
	customer := registerCustomer(t, "frank")
	p := createProduct(t, admin.Token, "Kettle", 30, 2)

	expect[messageResponse](t, placeOrder(t, customer.Token, p.ID, 3), http.StatusBadRequest)
	assert.Equal(t, 2, getProduct(t, p.ID).Stock)
}

func TestConcurrentLastUnit(t *testing.T) {
	admin := registerAdmin(t)
	p := createProduct(t, admin.Token, "Limited Edition", 99, 1)

	const buyers = 8
	tokens := make([]string, buyers)
	for i := range tokens {
		tokens[i] = registerCustomer(t, fmt.Sprintf("buyer%d", i)).Token
	}

	body, err := json.Marshal(map[string]any{
		"items": []map[string]any{{"productId": p.ID, "quantity": 1}},
		"shippingAddress": map[string]any{
			"name": "Buyer", "address": "1 Main St", "city": "Toronto", "postalCode": "M5V 1A1", "phone": "555-0100",
		},
		"paymentMethod": "paypal",
	})
	require.NoError(t, err)

	statuses := make([]int, buyers)
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			if err != nil {
				errs[i] = err
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := httpClient.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var created int
	for _, s := range statuses {
		switch s {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
		default:
			t.Errorf("unexpected status %d", s)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, getProduct(t, p.ID).Stock)
}
