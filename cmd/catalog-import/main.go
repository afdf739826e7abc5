// Command catalog-import refreshes the catalog from gzip-compressed JSON
// Lines product feeds. Products are matched by ASIN; existing products keep
// their stock.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/catalogfeed"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const progressEvery = 10_000

type config struct {
	writers  int
	expected uint
	fpr      float64
	dryRun   bool
}

// stats counts import outcomes. Fields are updated concurrently.
type stats struct {
	read       atomic.Int64
	malformed  atomic.Int64
	invalid    atomic.Int64
	duplicates atomic.Int64
	inserted   atomic.Int64
	updated    atomic.Int64
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		cfg         config
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product feeds")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "feed file glob inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.writers, "writers", 4, "concurrent database writers")
	flag.UintVar(&cfg.expected, "expected", 1_000_000, "expected number of distinct products, sizes the Bloom filter")
	flag.Float64Var(&cfg.fpr, "fpr", 0.001, "Bloom filter false positive rate")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "parse and de-duplicate without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !cfg.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, cfg); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, cfg config) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files match %s in %s", pattern, dataDir)
	}

	var importer product.Importer = discard{}
	if !cfg.dryRun {
		slog.Info("connecting to database")

		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		importer = postgres.NewProductRepository(pool)
	}

	start := time.Now()
	st, err := importFeeds(ctx, files, importer, cfg)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("files", len(files)),
		slog.Int64("read", st.read.Load()),
		slog.Int64("malformed", st.malformed.Load()),
		slog.Int64("invalid", st.invalid.Load()),
		slog.Int64("duplicates", st.duplicates.Load()),
		slog.Int64("inserted", st.inserted.Load()),
		slog.Int64("updated", st.updated.Load()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// importFeeds streams every file concurrently, drops duplicate ASINs and
// upserts the rest with cfg.writers workers.
func importFeeds(ctx context.Context, files []string, importer product.Importer, cfg config) (*stats, error) {
	if cfg.writers <= 0 {
		cfg.writers = 1
	}
	if cfg.expected == 0 {
		cfg.expected = 1024
	}
	if cfg.fpr <= 0 || cfg.fpr >= 1 {
		cfg.fpr = 0.001
	}

	var (
		st    = new(stats)
		seen  = newDedup(cfg.expected, cfg.fpr)
		items = make(chan catalogfeed.Item, 1024)
		now   = time.Now().UTC()
	)

	g, ctx := errgroup.WithContext(ctx)

	// Readers: one per file. items is closed once all of them finish.
	g.Go(func() error {
		defer close(items)

		rg, rctx := errgroup.WithContext(ctx)
		for _, path := range files {
			rg.Go(func() error {
				return readFeed(rctx, path, st, func(it catalogfeed.Item) error {
					if !seen.First(it.ASIN) {
						st.duplicates.Add(1)
						return nil
					}
					select {
					case items <- it:
						return nil
					case <-rctx.Done():
						return rctx.Err()
					}
				})
			})
		}
		return rg.Wait()
	})

	// Writers.
	for range cfg.writers {
		g.Go(func() error {
			for it := range items {
				p := it.Product(now)
				inserted, err := importer.Upsert(ctx, &p)
				if err != nil {
					return errors.Wrapf(err, "upsert %s", it.ASIN)
				}
				if inserted {
					st.inserted.Add(1)
				} else {
					st.updated.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if fp := seen.FalsePositives(); fp > 0 {
		slog.Debug("bloom filter false positives", slog.Int("count", fp))
	}
	return st, nil
}

// readFeed decodes one gzip-compressed JSON Lines file and hands every
// valid item to fn.
func readFeed(ctx context.Context, path string, st *stats, fn func(catalogfeed.Item) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	lg := slog.With(slog.String("file", filepath.Base(path)))
	var count int64

	err = catalogfeed.ScanLines(gz, func(it catalogfeed.Item) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++
		st.read.Add(1)
		if count%progressEvery == 0 {
			lg.Info("progress", slog.Int64("items", count))
		}
		if err := it.Validate(); err != nil {
			st.invalid.Add(1)
			lg.Debug("skipping invalid item", slog.String("error", err.Error()))
			return nil
		}
		return fn(it)
	}, func(line int, err error) {
		st.malformed.Add(1)
		lg.Debug("skipping malformed line", slog.Int("line", line), slog.String("error", err.Error()))
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	lg.Info("feed complete", slog.Int64("items", count))
	return nil
}

// discard is the importer used by dry runs.
type discard struct{}

func (discard) Upsert(context.Context, *product.Product) (bool, error) { return true, nil }
