// Package redis holds Redis-backed adapters.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/review"
)

const reviewKeyPrefix = "reviews:"

var _ review.Cache = (*ReviewCache)(nil)

// ReviewCache is a review.Cache shared by every API instance. Entries expire
// through Redis TTLs.
type ReviewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReviewCache creates a ReviewCache. A non-positive ttl uses
// review.DefaultTTL.
func NewReviewCache(client *redis.Client, ttl time.Duration) *ReviewCache {
	if ttl <= 0 {
		ttl = review.DefaultTTL
	}
	return &ReviewCache{client: client, ttl: ttl}
}

func (c *ReviewCache) Get(ctx context.Context, asin string) ([]review.Review, bool, error) {
	data, err := c.client.Get(ctx, reviewKeyPrefix+asin).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get reviews")
	}
	reviews, err := decodeReviews(data)
	if err != nil {
		return nil, false, errors.Wrap(err, "decode reviews")
	}
	return reviews, true, nil
}

func (c *ReviewCache) Put(ctx context.Context, asin string, reviews []review.Review) error {
	if err := c.client.Set(ctx, reviewKeyPrefix+asin, encodeReviews(reviews), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set reviews")
	}
	return nil
}

func (c *ReviewCache) Invalidate(ctx context.Context, asin string) error {
	if err := c.client.Del(ctx, reviewKeyPrefix+asin).Err(); err != nil {
		return errors.Wrap(err, "delete reviews")
	}
	return nil
}

func encodeReviews(reviews []review.Review) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, r := range reviews {
		e.ObjStart()
		e.FieldStart("reviewerName")
		e.Str(r.ReviewerName)
		e.FieldStart("rating")
		e.Int(r.Rating)
		e.FieldStart("comment")
		e.Str(r.Comment)
		e.FieldStart("date")
		e.Str(r.Date)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeReviews(data []byte) ([]review.Review, error) {
	var out []review.Review
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var r review.Review
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "reviewerName":
				r.ReviewerName, err = d.Str()
			case "rating":
				r.Rating, err = d.Int()
			case "comment":
				r.Comment, err = d.Str()
			case "date":
				r.Date, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
