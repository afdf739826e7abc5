// Command seed-db loads the default catalog and provisions the
// administrator account.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/catalogfeed"
	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL   string
	productsFile  string
	adminEmail    string
	adminUsername string
	adminPassword string
	bcryptCost    int
}

func envOr(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to a products JSON array; the embedded catalog when empty")
	flag.StringVar(&opts.adminEmail, "admin-email", "", "administrator email (or ADMIN_EMAIL env); skipped when empty")
	flag.StringVar(&opts.adminUsername, "admin-username", "admin", "administrator username")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "administrator password (or ADMIN_PASSWORD env)")
	flag.IntVar(&opts.bcryptCost, "bcrypt-cost", 10, "bcrypt cost for the administrator password")
	flag.Parse()

	opts.databaseURL = envOr(opts.databaseURL, "DATABASE_URL")
	opts.adminEmail = envOr(opts.adminEmail, "ADMIN_EMAIL")
	opts.adminPassword = envOr(opts.adminPassword, "ADMIN_PASSWORD")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.adminEmail != "" && len(opts.adminPassword) < account.MinPasswordLength {
		slog.Error("admin password is required and must be at least 6 characters: set --admin-password or ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if opts.adminEmail == "" {
		slog.Info("no admin email given, skipping admin account")
		return nil
	}
	if err := seedAdmin(ctx, postgres.NewAccountRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, path string) error {
	data := db.SeedProducts
	if path != "" {
		slog.Info("reading products file", slog.String("path", path))

		var err error
		if data, err = os.ReadFile(path); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	items, err := catalogfeed.ReadArray(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	slog.Info("upserting products", slog.Int("count", len(items)))

	now := time.Now().UTC()
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		p := it.Product(now)
		inserted, err := repo.Upsert(ctx, &p)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", it.ASIN)
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("asin", p.ASIN),
			slog.String("name", p.Name),
			slog.Bool("inserted", inserted),
		)
	}

	return nil
}

func seedAdmin(ctx context.Context, repo *postgres.AccountRepository, opts options) error {
	slog.Info("provisioning admin account", slog.String("email", opts.adminEmail))

	hash, err := account.HashPassword(opts.adminPassword, opts.bcryptCost)
	if err != nil {
		return err
	}

	id, err := repo.UpsertAdmin(ctx, &account.Account{
		ID:           uuid.NewString(),
		Username:     opts.adminUsername,
		Email:        strings.ToLower(strings.TrimSpace(opts.adminEmail)),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "upsert admin")
	}

	slog.Info("admin account ready", slog.String("id", id))

	return nil
}
