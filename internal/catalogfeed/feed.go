// Package catalogfeed decodes product feeds used to seed and refresh the
// catalog. A feed is either a JSON array of items or JSON Lines with one
// item per line.
package catalogfeed

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// maxLine bounds a single JSON Lines record.
const maxLine = 1 << 20

// Item is one product record of a feed. Products are identified by ASIN.
type Item struct {
	ASIN        string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
	ImageURL    string
}

// Validate reports the first missing or out of range field.
func (i Item) Validate() error {
	switch {
	case i.ASIN == "":
		return errors.New("asin is required")
	case i.Name == "":
		return errors.Errorf("%s: name is required", i.ASIN)
	case i.Category == "":
		return errors.Errorf("%s: category is required", i.ASIN)
	case i.Price.IsNegative():
		return errors.Errorf("%s: negative price", i.ASIN)
	case i.Stock < 0:
		return errors.Errorf("%s: negative stock", i.ASIN)
	}
	return nil
}

// Product converts the item into a new catalog product.
func (i Item) Product(now time.Time) product.Product {
	desc := i.Description
	if desc == "" {
		desc = i.Name
	}
	return product.Product{
		ID:          uuid.NewString(),
		Name:        i.Name,
		Description: desc,
		Price:       i.Price.Round(2),
		Category:    i.Category,
		Stock:       i.Stock,
		ImageURL:    i.ImageURL,
		ASIN:        i.ASIN,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DecodeItem reads one item object. Unknown fields are skipped.
func DecodeItem(d *jx.Decoder) (Item, error) {
	var it Item
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "asin":
			it.ASIN, err = str(d)
		case "name":
			it.Name, err = str(d)
		case "description":
			it.Description, err = str(d)
		case "category":
			it.Category, err = str(d)
		case "imageUrl", "image_url":
			it.ImageURL, err = str(d)
		case "price":
			it.Price, err = price(d)
		case "stock":
			it.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	it.ASIN = strings.TrimSpace(it.ASIN)
	it.Name = strings.TrimSpace(it.Name)
	it.Category = strings.TrimSpace(it.Category)
	return it, nil
}

// ReadArray decodes a JSON array feed.
func ReadArray(data []byte) ([]Item, error) {
	var items []Item
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		it, err := DecodeItem(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(items))
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode feed")
	}
	return items, nil
}

// ScanLines decodes a JSON Lines feed and calls fn for each item. Blank
// lines are skipped. A malformed line is passed to onBad and scanning
// continues; errors from fn stop the scan.
func ScanLines(r io.Reader, fn func(Item) error, onBad func(line int, err error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		it, err := DecodeItem(jx.DecodeBytes(raw))
		if err != nil {
			if onBad != nil {
				onBad(line, err)
			}
			continue
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "line %d", line)
	}
	return nil
}

func str(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func price(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		// Feeds sometimes carry a currency symbol.
		s = strings.TrimLeft(strings.TrimSpace(s), "$")
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errors.Errorf("invalid price %q", s)
		}
		return v, nil
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}
