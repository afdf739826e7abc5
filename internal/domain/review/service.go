package review

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/product"
)

// Products resolves a product's ASIN.
type Products interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// Service serves product reviews from cache, falling back to the external
// source and then to placeholder reviews.
type Service struct {
	products Products
	fetcher  Fetcher
	cache    Cache
	now      func() time.Time

	group singleflight.Group
}

// NewService creates a review Service.
func NewService(products Products, fetcher Fetcher, cache Cache) *Service {
	return &Service{
		products: products,
		fetcher:  fetcher,
		cache:    cache,
		now:      time.Now,
	}
}

// ForProduct returns up to MaxReviews reviews for a product. External
// failures never surface; placeholder reviews are returned instead and are
// not cached.
func (s *Service) ForProduct(ctx context.Context, productID string) ([]Review, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.ASIN == "" {
		return Defaults(s.now()), nil
	}
	return s.Get(ctx, p.ASIN), nil
}

// Get returns reviews for an ASIN. Concurrent misses for the same ASIN
// share one upstream call.
func (s *Service) Get(ctx context.Context, asin string) []Review {
	lg := zctx.From(ctx).With(zap.String("asin", asin))

	cached, ok, err := s.cache.Get(ctx, asin)
	if err != nil {
		lg.Warn("Review cache read failed", zap.Error(err))
	}
	if ok {
		return cached
	}

	v, _, _ := s.group.Do(asin, func() (any, error) {
		reviews, err := s.fetcher.Fetch(ctx, asin)
		if err != nil {
			lg.Warn("Fetch reviews failed, using defaults", zap.Error(err))
			return Defaults(s.now()), nil
		}
		if len(reviews) == 0 {
			lg.Debug("No reviews upstream, using defaults")
			return Defaults(s.now()), nil
		}
		if len(reviews) > MaxReviews {
			reviews = reviews[:MaxReviews]
		}
		if err := s.cache.Put(ctx, asin, reviews); err != nil {
			lg.Warn("Review cache write failed", zap.Error(err))
		}
		return reviews, nil
	})
	return append([]Review(nil), v.([]Review)...)
}

// Invalidate drops cached reviews for an ASIN.
func (s *Service) Invalidate(ctx context.Context, asin string) error {
	return s.cache.Invalidate(ctx, asin)
}
