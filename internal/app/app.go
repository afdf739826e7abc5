package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/notification"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/mail"
	"github.com/xenking/storefront/internal/rapidapi"
	"github.com/xenking/storefront/internal/storage/postgres"
	redisstore "github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// App is the assembled storefront API: storage, domain services, the
// confirmation dispatcher and the HTTP handler.
type App struct {
	cfg     *Config
	lg      *zap.Logger
	health  *health.Health
	handler http.Handler

	pool       *pgxpool.Pool
	redis      *redis.Client
	dispatcher *notification.Dispatcher
}

// New connects to storage, runs migrations and wires every service. The
// caller must Close the returned App.
func New(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) (_ *App, rerr error) {
	a := &App{cfg: cfg, lg: lg}
	defer func() {
		if rerr != nil {
			a.Close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	a.pool = pool
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	// Health check service.
	a.health = health.New()
	a.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	a.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	a.health.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Review cache: shared through Redis when configured.
	var reviewCache review.Cache = review.NewMemoryCache(cfg.Reviews.CacheTTL, time.Now)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		a.health.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(a.redis))
		reviewCache = redisstore.NewReviewCache(a.redis, cfg.Reviews.CacheTTL)
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)

	// Domain services.
	tokens, err := auth.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, errors.Wrap(err, "create token issuer")
	}
	accounts, err := account.NewService(accountRepo, tokens, account.Config{
		AdminCode:  cfg.Auth.AdminCode,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create account service")
	}
	catalog := product.NewCatalog(productRepo)
	carts := cart.NewService(cartRepo, productRepo)

	orders, err := order.NewService(productRepo, orderRepo, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	pricing := cfg.Pricing.OrderPricing()
	a.dispatcher, err = notification.NewDispatcher(lg, accountRepo, a.mailer(), notification.Config{
		Workers:     cfg.Mail.Workers,
		QueueSize:   cfg.Mail.QueueSize,
		SendTimeout: cfg.Mail.SendTimeout,
		Pricing:     pricing,
	}, m.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create dispatcher")
	}

	payments, err := payment.NewService(orderRepo, cartRepo, a.dispatcher, payment.Config{
		SuccessRate: cfg.Payment.SuccessRate,
	}, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create payment service")
	}

	fetcher, err := rapidapi.NewClient(rapidapi.Config{
		APIKey:  cfg.Reviews.APIKey,
		BaseURL: cfg.Reviews.BaseURL,
		Country: cfg.Reviews.Country,
		Timeout: cfg.Reviews.Timeout,
	}, m.TracerProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create review client")
	}
	reviews := review.NewService(productRepo, fetcher, reviewCache)

	// HTTP handlers.
	h := handler.New(handler.Config{ImageBaseURL: cfg.ImageBaseURL, Pricing: pricing}, handler.Services{
		Catalog:  catalog,
		Accounts: accounts,
		Carts:    carts,
		Orders:   orders,
		Payments: payments,
		Reviews:  reviews,
		Tokens:   tokens,
	})

	// Router: health endpoints + API routes on one server.
	r := chi.NewRouter()
	r.Get("/livez", a.health.LiveEndpoint)
	r.Get("/readyz", a.health.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	a.handler = httpmiddleware.Wrap(r,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.Route(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   isProbe,
		}),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	return a, nil
}

func (a *App) mailer() notification.Mailer {
	mc := a.cfg.Mail
	if mc.Host == "" {
		a.lg.Warn("No SMTP relay configured, order confirmations will only be logged")
		return mail.LogMailer{}
	}
	smtp, err := mail.NewSMTP(mail.Config{
		Host:     mc.Host,
		Port:     mc.Port,
		Username: mc.Username,
		Password: mc.Password,
		From:     mc.From,
		FromName: mc.FromName,
	})
	if err != nil {
		a.lg.Warn("Invalid SMTP config, order confirmations will only be logged", zap.Error(err))
		return mail.LogMailer{}
	}
	return smtp
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Close drains pending confirmations and releases storage connections.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.lg.Warn("Close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Serve starts health checks and the HTTP server, and blocks until ctx is
// cancelled and the server has drained.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfg
	lg := a.lg

	a.health.Start(ctx, 10*time.Second)
	a.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           a.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		a.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		a.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	a, err := New(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}
