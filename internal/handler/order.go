package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

func decodeShipping(d *jx.Decoder, a *order.ShippingAddress) error {
	return decodeFields(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			a.Name, err = decodeString(d)
		case "address":
			a.Address, err = decodeString(d)
		case "city":
			a.City, err = decodeString(d)
		case "postalCode":
			a.PostalCode, err = decodeString(d)
		case "phone":
			a.Phone, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeLine reads an order line. A client "price" is skipped unread;
// totals come from the catalog.
func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var l order.LineRequest
	err := decodeFields(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = decodeString(d)
		case "quantity":
			l.Quantity, err = decodeInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req := order.CreateRequest{AccountID: principal(r).AccountID}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() != jx.Array {
				return badRequest("items must be an array")
			}
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, l)
				return nil
			})
		case "shippingAddress":
			return decodeShipping(d, &req.ShippingAddress)
		case "paymentMethod":
			m, err := decodeString(d)
			req.PaymentMethod = order.PaymentMethod(m)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListMine(r.Context(), principal(r).AccountID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var to order.Status
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := decodeString(d)
		to = order.Status(s)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), principal(r), to)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Order deleted successfully")
}
