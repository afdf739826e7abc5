// Package handler exposes the storefront domain over a JSON HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
)

// Catalog is implemented by *product.Catalog.
type Catalog interface {
	List(ctx context.Context, filter product.Filter) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
	Update(ctx context.Context, p product.Product) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	CheckStock(ctx context.Context, reqs []product.StockRequest) ([]product.StockStatus, error)
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
	Decrement(ctx context.Context, id string, quantity int) (int, error)
}

// Accounts is implemented by *account.Service.
type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.Session, error)
	RegisterAdmin(ctx context.Context, req account.RegisterRequest, code string) (*account.Session, error)
	Login(ctx context.Context, email, password string) (*account.Session, error)
	Get(ctx context.Context, id string) (*account.Account, error)
	UpdateProfile(ctx context.Context, id string, upd account.ProfileUpdate) (*account.Account, error)
	AddAddress(ctx context.Context, id string, addr account.Address) ([]account.Address, error)
}

// Carts is implemented by *cart.Service.
type Carts interface {
	Get(ctx context.Context, accountID string) (*cart.View, error)
	Add(ctx context.Context, accountID, productID string, quantity int) (*cart.View, error)
	UpdateQuantity(ctx context.Context, accountID, productID string, quantity int) (*cart.View, error)
	Remove(ctx context.Context, accountID, productID string) (*cart.View, error)
	Clear(ctx context.Context, accountID string) error
}

// Orders is implemented by *order.Service.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string, p auth.Principal) (*order.Order, error)
	ListMine(ctx context.Context, accountID string) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, p auth.Principal, to order.Status) (*order.Order, error)
	Delete(ctx context.Context, id string, p auth.Principal) error
}

// Payments is implemented by *payment.Service.
type Payments interface {
	CreateIntent(ctx context.Context, orderID, accountID string) (*payment.Intent, error)
	Confirm(ctx context.Context, orderID, accountID string, method order.PaymentMethod) (*payment.Result, error)
	Status(ctx context.Context, orderID, accountID string) (*payment.Status, error)
}

// Reviews is implemented by *review.Service.
type Reviews interface {
	ForProduct(ctx context.Context, productID string) ([]review.Review, error)
}

// TokenVerifier is implemented by *auth.Issuer.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// ImageBaseURL is prepended to relative product image paths.
	ImageBaseURL string
	// Pricing is used for the order summary in responses.
	Pricing order.Pricing
}

// Services bundles the domain services the API delegates to.
type Services struct {
	Catalog  Catalog
	Accounts Accounts
	Carts    Carts
	Orders   Orders
	Payments Payments
	Reviews  Reviews
	Tokens   TokenVerifier
}

// Handler serves the storefront API.
type Handler struct {
	catalog  Catalog
	accounts Accounts
	carts    Carts
	orders   Orders
	payments Payments
	reviews  Reviews
	tokens   TokenVerifier

	imageBaseURL string
	pricing      order.Pricing
}

// New creates a Handler.
func New(cfg Config, svc Services) *Handler {
	return &Handler{
		catalog:      svc.Catalog,
		accounts:     svc.Accounts,
		carts:        svc.Carts,
		orders:       svc.Orders,
		payments:     svc.Payments,
		reviews:      svc.Reviews,
		tokens:       svc.Tokens,
		imageBaseURL: cfg.ImageBaseURL,
		pricing:      cfg.Pricing,
	}
}

// Routes returns the API router. It is mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/register-admin", h.registerAdmin)
		r.Post("/login", h.login)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.me)
			r.Put("/update", h.updateProfile)
			r.Post("/address", h.addAddress)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/check-stock", h.checkStock)
		r.Get("/{id}", h.getProduct)
		r.Get("/{id}/reviews", h.productReviews)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Patch("/{id}/stock", h.decrementStock)
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/", h.createProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
				r.Post("/{id}/stock-adjustments", h.adjustStock)
			})
		})
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/add", h.addToCart)
		r.Put("/update/{productId}", h.updateCartItem)
		r.Delete("/remove/{productId}", h.removeCartItem)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/", h.createOrder)
		r.Get("/my-orders", h.myOrders)
		r.With(requireAdmin).Get("/all", h.allOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateOrderStatus)
		r.Delete("/{id}", h.deleteOrder)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/create-payment-intent", h.createPaymentIntent)
		r.Post("/confirm-payment", h.confirmPayment)
		r.Get("/payment-status/{orderId}", h.paymentStatus)
	})

	return r
}
