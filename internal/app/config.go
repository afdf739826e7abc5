package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `env:"REDIS_URL" usage:"Redis URL for the review cache; in-memory cache when empty" flag:"redis-url"`
	ImageBaseURL string `env:"IMAGE_BASE_URL" default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Auth         AuthConfig
	Payment      PaymentConfig
	Pricing      PricingConfig
	Mail         MailConfig
	Reviews      ReviewsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls tokens and account registration.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET" usage:"HMAC secret for access tokens (SHOP_AUTH_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" default:"24h" usage:"Access token lifetime"`
	AdminCode  string        `env:"ADMIN_CODE" usage:"Code required by admin registration; disabled when empty"`
	BcryptCost int           `env:"BCRYPT_COST" default:"10" usage:"bcrypt cost for password hashes"`
}

// PaymentConfig controls the simulated payment gateway.
type PaymentConfig struct {
	SuccessRate float64 `env:"SUCCESS_RATE" default:"0.9" usage:"Probability that a simulated charge succeeds"`
}

// PricingConfig controls the surcharges shown on order summaries.
type PricingConfig struct {
	TaxRate     float64 `env:"TAX_RATE" default:"0.13" usage:"Flat tax rate"`
	ShippingFee float64 `env:"SHIPPING_FEE" default:"9.90" usage:"Flat shipping fee"`
}

// MailConfig controls order confirmation delivery. Mail is logged instead
// of sent when Host is empty.
type MailConfig struct {
	Host        string        `env:"HOST" usage:"SMTP relay host"`
	Port        int           `env:"PORT" default:"587" usage:"SMTP relay port"`
	Username    string        `env:"USERNAME" usage:"SMTP username"`
	Password    string        `env:"PASSWORD" usage:"SMTP password"`
	From        string        `env:"FROM" usage:"Sender address"`
	FromName    string        `env:"FROM_NAME" default:"Online Store" usage:"Sender display name"`
	Workers     int           `env:"WORKERS" default:"2" usage:"Concurrent senders"`
	QueueSize   int           `env:"QUEUE_SIZE" default:"100" usage:"Pending confirmation buffer"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" default:"30s" usage:"Per-message send timeout"`
}

// ReviewsConfig controls the external review source.
type ReviewsConfig struct {
	APIKey   string        `env:"API_KEY" usage:"RapidAPI key; placeholder reviews are served when empty"`
	BaseURL  string        `env:"BASE_URL" usage:"Review API base URL"`
	Country  string        `env:"COUNTRY" default:"CA" usage:"Marketplace country"`
	CacheTTL time.Duration `env:"CACHE_TTL" default:"1h" usage:"Review cache lifetime"`
	Timeout  time.Duration `env:"TIMEOUT" default:"10s" usage:"Review API request timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// OrderPricing converts the configured surcharges.
func (c PricingConfig) OrderPricing() order.Pricing {
	return order.Pricing{
		TaxRate:     decimal.NewFromFloat(c.TaxRate),
		ShippingFee: decimal.NewFromFloat(c.ShippingFee),
	}
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		Files: []string{"config.yaml", "/etc/storefront/config.yaml"},
	})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	base.EnvPrefix = "SHOP"
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}

	var cfg Config
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("JWT secret is required: set SHOP_AUTH_JWT_SECRET or JWT_SECRET")
	case c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1:
		return errors.Errorf("payment success rate %v out of range [0, 1]", c.Payment.SuccessRate)
	case c.Pricing.TaxRate < 0 || c.Pricing.ShippingFee < 0:
		return errors.New("pricing must not be negative")
	case c.Mail.Host != "" && c.Mail.From == "":
		return errors.New("mail sender is required when a relay host is set")
	}
	return nil
}

// applyPlatformDefaults maps conventional unprefixed environment variables
// (DATABASE_URL, REDIS_URL, JWT_SECRET, ADMIN_CODE, PORT) onto the
// SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.RedisURL, "REDIS_URL")
	fallback(&c.Auth.JWTSecret, "JWT_SECRET")
	fallback(&c.Auth.AdminCode, "ADMIN_CODE")
	fallback(&c.Reviews.APIKey, "RAPIDAPI_KEY")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
