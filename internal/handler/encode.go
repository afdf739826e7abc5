package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
)

func encodeStr(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func encodeInt(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func encodeBool(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func encodeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(v.InexactFloat64()) })
}

func encodeTime(e *jx.Encoder, name string, t time.Time) {
	if t.IsZero() {
		return
	}
	encodeStr(e, name, t.UTC().Format(time.RFC3339))
}

// imageURL resolves relative image paths against the configured base.
func (h *Handler) imageURL(raw string) string {
	if raw == "" || h.imageBaseURL == "" ||
		strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", p.ID)
		encodeStr(e, "name", p.Name)
		encodeStr(e, "description", p.Description)
		encodeMoney(e, "price", p.Price)
		encodeStr(e, "category", p.Category)
		encodeInt(e, "stock", p.Stock)
		encodeStr(e, "imageUrl", h.imageURL(p.ImageURL))
		if p.ASIN != "" {
			encodeStr(e, "asin", p.ASIN)
		}
		encodeTime(e, "createdAt", p.CreatedAt)
		encodeTime(e, "updatedAt", p.UpdatedAt)
	})
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for i := range products {
		h.encodeProduct(e, &products[i])
	}
	e.ArrEnd()
}

func encodeStockStatus(e *jx.Encoder, statuses []product.StockStatus) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("stockStatus", func(e *jx.Encoder) {
			e.ArrStart()
			for _, s := range statuses {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "productId", s.ProductID)
					encodeBool(e, "available", s.Available)
					if s.Message != "" {
						encodeStr(e, "message", s.Message)
						return
					}
					encodeInt(e, "currentStock", s.CurrentStock)
					encodeInt(e, "requestedQuantity", s.RequestedQuantity)
				})
			}
			e.ArrEnd()
		})
	})
}

func encodeAddresses(e *jx.Encoder, addrs []account.Address) {
	e.ArrStart()
	for _, a := range addrs {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "street", a.Street)
			encodeStr(e, "city", a.City)
			encodeStr(e, "state", a.State)
			encodeStr(e, "postalCode", a.PostalCode)
			encodeBool(e, "isDefault", a.IsDefault)
		})
	}
	e.ArrEnd()
}

func encodeAccountFields(e *jx.Encoder, a *account.Account) {
	encodeStr(e, "id", a.ID)
	encodeStr(e, "username", a.Username)
	encodeStr(e, "email", a.Email)
	encodeStr(e, "role", string(a.Role))
	e.Field("addresses", func(e *jx.Encoder) { encodeAddresses(e, a.Addresses) })
}

func encodeAccount(e *jx.Encoder, a *account.Account) {
	e.Obj(func(e *jx.Encoder) {
		encodeAccountFields(e, a)
		encodeTime(e, "createdAt", a.CreatedAt)
	})
}

func encodeSession(e *jx.Encoder, s *account.Session) {
	e.Obj(func(e *jx.Encoder) {
		encodeAccountFields(e, s.Account)
		encodeStr(e, "token", s.Token)
		encodeTime(e, "expiresAt", s.ExpiresAt)
	})
}

func (h *Handler) encodeCart(e *jx.Encoder, v *cart.View) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", v.Cart.ID)
		encodeStr(e, "userId", v.Cart.AccountID)
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range v.Lines {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "productId", l.ProductID)
					encodeInt(e, "quantity", l.Quantity)
					encodeBool(e, "available", l.Available())
					e.Field("product", func(e *jx.Encoder) {
						if l.Product == nil {
							e.Null()
							return
						}
						h.encodeProduct(e, l.Product)
					})
				})
			}
			e.ArrEnd()
		})
		encodeTime(e, "updatedAt", v.Cart.UpdatedAt)
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", o.ID)
		encodeStr(e, "orderNumber", o.Number)
		encodeStr(e, "userId", o.AccountID)
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "productId", it.ProductID)
					encodeStr(e, "name", it.Name)
					encodeInt(e, "quantity", it.Quantity)
					encodeMoney(e, "price", it.Price)
				})
			}
			e.ArrEnd()
		})
		encodeMoney(e, "totalAmount", o.Total)
		e.Field("shippingAddress", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				a := o.ShippingAddress
				encodeStr(e, "name", a.Name)
				encodeStr(e, "address", a.Address)
				encodeStr(e, "city", a.City)
				encodeStr(e, "postalCode", a.PostalCode)
				encodeStr(e, "phone", a.Phone)
			})
		})
		encodeStr(e, "paymentMethod", string(o.PaymentMethod))
		encodeStr(e, "status", string(o.Status))
		e.Field("summary", func(e *jx.Encoder) {
			s := h.pricing.Summarize(o)
			e.Obj(func(e *jx.Encoder) {
				encodeMoney(e, "subtotal", s.Subtotal)
				encodeMoney(e, "tax", s.Tax)
				encodeMoney(e, "shipping", s.Shipping)
				encodeMoney(e, "total", s.Total)
			})
		})
		encodeTime(e, "createdAt", o.CreatedAt)
		encodeTime(e, "updatedAt", o.UpdatedAt)
	})
}

func (h *Handler) encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		h.encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeReviews(e *jx.Encoder, reviews []review.Review) {
	e.ArrStart()
	for _, r := range reviews {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "reviewerName", r.ReviewerName)
			encodeInt(e, "rating", r.Rating)
			encodeStr(e, "comment", r.Comment)
			encodeStr(e, "date", r.Date)
		})
	}
	e.ArrEnd()
}
