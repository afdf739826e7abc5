package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := product.Filter{Category: strings.TrimSpace(r.URL.Query().Get("category"))}
	if strings.EqualFold(filter.Category, "all") {
		filter.Category = ""
	}
	products, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProducts(e, products) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// decodeProduct overlays the fields present in the body onto p.
func decodeProduct(w http.ResponseWriter, r *http.Request, p *product.Product) error {
	return decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = decodeString(d)
		case "description":
			p.Description, err = decodeString(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "category":
			p.Category, err = decodeString(d)
		case "stock":
			p.Stock, err = decodeInt(d)
		case "imageUrl":
			p.ImageURL, err = decodeString(d)
		case "asin":
			p.ASIN, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Product
	if err := decodeProduct(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	existing, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	in := *existing
	if err := decodeProduct(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	in.ID = existing.ID
	p, err := h.catalog.Update(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted successfully")
}

func decodeQuantity(w http.ResponseWriter, r *http.Request, key string) (int, error) {
	var (
		qty  int
		seen bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, k string) error {
		if k != key {
			return d.Skip()
		}
		seen = true
		var err error
		qty, err = decodeInt(d)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !seen {
		return 0, badRequest("%s is required", key)
	}
	return qty, nil
}

func writeStock(w http.ResponseWriter, stock int) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "message", "Stock updated successfully")
			encodeInt(e, "currentStock", stock)
		})
	})
}

// decrementStock takes quantity units out of stock without placing an
// order. The check and the decrement are a single atomic step.
func (h *Handler) decrementStock(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeQuantity(w, r, "quantity")
	if err != nil {
		fail(w, r, err)
		return
	}
	stock, err := h.catalog.Decrement(r.Context(), chi.URLParam(r, "id"), qty)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeStock(w, stock)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	delta, err := decodeQuantity(w, r, "delta")
	if err != nil {
		fail(w, r, err)
		return
	}
	if delta == 0 {
		fail(w, r, badRequest("delta must not be zero"))
		return
	}
	stock, err := h.catalog.AdjustStock(r.Context(), chi.URLParam(r, "id"), delta)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeStock(w, stock)
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	var reqs []product.StockRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return decodeArray(d, func(d *jx.Decoder) error {
			var req product.StockRequest
			if err := decodeFields(d, func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "productId":
					req.ProductID, err = decodeString(d)
				case "quantity":
					req.Quantity, err = decodeInt(d)
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			reqs = append(reqs, req)
			return nil
		})
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	statuses, err := h.catalog.CheckStock(r.Context(), reqs)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStockStatus(e, statuses) })
}

func (h *Handler) productReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ForProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReviews(e, reviews) })
}
