// Package rapidapi fetches product reviews from the Real-Time Amazon Data
// API hosted on RapidAPI.
package rapidapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/review"
)

const (
	// DefaultBaseURL is the public endpoint of the review API.
	DefaultBaseURL = "https://real-time-amazon-data.p.rapidapi.com"

	defaultTimeout  = 10 * time.Second
	defaultReviewer = "Amazon Customer"
	defaultComment  = "Great product!"
	defaultRating   = 5

	// maxBody caps the upstream response read.
	maxBody = 4 << 20
)

// Config configures the review API client.
type Config struct {
	APIKey  string
	BaseURL string
	Country string
	Timeout time.Duration
}

var _ review.Fetcher = (*Client)(nil)

// Client implements review.Fetcher over HTTP.
type Client struct {
	http    *http.Client
	base    *url.URL
	key     string
	country string
	now     func() time.Time
}

// NewClient creates a Client. Requests are traced with otelhttp.
func NewClient(cfg Config, tp trace.TracerProvider) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "CA"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
		base:    base,
		key:     cfg.APIKey,
		country: cfg.Country,
		now:     time.Now,
	}, nil
}

// Fetch returns up to review.MaxReviews top reviews for asin.
func (c *Client) Fetch(ctx context.Context, asin string) ([]review.Review, error) {
	if c.key == "" {
		return nil, errors.New("review api key not configured")
	}

	u := c.base.JoinPath("product-reviews")
	q := url.Values{}
	q.Set("asin", asin)
	q.Set("country", c.country)
	q.Set("sort_by", "TOP_REVIEWS")
	q.Set("star_rating", "ALL")
	q.Set("page", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("X-RapidAPI-Key", c.key)
	req.Header.Set("X-RapidAPI-Host", c.base.Host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return c.parse(body)
}

// parse extracts data.reviews, which the API returns either as an array or
// as an object keyed by index.
func (c *Client) parse(body []byte) ([]review.Review, error) {
	today := c.now().Format(time.DateOnly)
	var out []review.Review

	collect := func(d *jx.Decoder) error {
		if len(out) >= review.MaxReviews {
			return d.Skip()
		}
		r, err := decodeReview(d, today)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}

	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "data" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "reviews" {
				return d.Skip()
			}
			switch d.Next() {
			case jx.Array:
				return d.Arr(collect)
			case jx.Object:
				return d.ObjBytes(func(d *jx.Decoder, _ []byte) error { return collect(d) })
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode reviews")
	}
	return out, nil
}

func decodeReview(d *jx.Decoder, today string) (review.Review, error) {
	r := review.Review{Rating: defaultRating}
	var title string

	if d.Next() != jx.Object {
		return r, d.Skip()
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "reviewer_name":
			return optString(d, &r.ReviewerName)
		case "review_comment":
			return optString(d, &r.Comment)
		case "review_title":
			return optString(d, &title)
		case "review_date":
			return optString(d, &r.Date)
		case "rating":
			n, err := decodeRating(d)
			if err != nil {
				return err
			}
			if n > 0 {
				r.Rating = n
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return r, err
	}

	if r.ReviewerName == "" {
		r.ReviewerName = defaultReviewer
	}
	if r.Comment == "" {
		r.Comment = title
	}
	if r.Comment == "" {
		r.Comment = defaultComment
	}
	if r.Date == "" {
		r.Date = today
	}
	return r, nil
}

func optString(d *jx.Decoder, dst *string) error {
	if d.Next() != jx.String {
		return d.Skip()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(s)
	return nil
}

// decodeRating accepts numbers and numeric strings such as "4" or
// "4.0 out of 5". Anything else yields 0.
func decodeRating(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Number:
		f, err := d.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		end := 0
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return 0, nil
		}
		return n, nil
	default:
		return 0, d.Skip()
	}
}
