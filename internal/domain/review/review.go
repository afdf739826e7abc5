package review

import (
	"context"
	"time"
)

// MaxReviews is the number of reviews kept per product.
const MaxReviews = 5

// Review is a customer review from the external review source.
type Review struct {
	ReviewerName string
	Rating       int
	Comment      string
	Date         string
}

// Fetcher retrieves reviews for an ASIN from the external source.
type Fetcher interface {
	Fetch(ctx context.Context, asin string) ([]Review, error)
}

// Cache stores fetched reviews keyed by ASIN.
type Cache interface {
	// Get returns the cached reviews and whether a live entry exists.
	Get(ctx context.Context, asin string) ([]Review, bool, error)
	Put(ctx context.Context, asin string, reviews []Review) error
	Invalidate(ctx context.Context, asin string) error
}

// Defaults returns the placeholder reviews shown when the external source
// has nothing to offer.
func Defaults(now time.Time) []Review {
	date := now.Format(time.DateOnly)
	return []Review{
		{ReviewerName: "John Smith", Rating: 5, Comment: "Excellent product! The performance exceeds my expectations.", Date: date},
		{ReviewerName: "Emma Wilson", Rating: 4, Comment: "Great value for money. The build quality is impressive.", Date: date},
		{ReviewerName: "Michael Brown", Rating: 5, Comment: "Perfect for both work and gaming. Highly recommended!", Date: date},
	}
}
