package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, v *cart.View, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeCart(e, v) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Get(r.Context(), principal(r).AccountID)
	h.writeCart(w, r, v, err)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		qty       = 1
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = decodeString(d)
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			qty, err = decodeInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if productID == "" {
		fail(w, r, badRequest("productId is required"))
		return
	}
	v, err := h.carts.Add(r.Context(), principal(r).AccountID, productID, qty)
	h.writeCart(w, r, v, err)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeQuantity(w, r, "quantity")
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := h.carts.UpdateQuantity(r.Context(), principal(r).AccountID, chi.URLParam(r, "productId"), qty)
	h.writeCart(w, r, v, err)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Remove(r.Context(), principal(r).AccountID, chi.URLParam(r, "productId"))
	h.writeCart(w, r, v, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principal(r).AccountID); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Cart cleared")
}
