package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

func decodePaymentRequest(w http.ResponseWriter, r *http.Request) (string, order.PaymentMethod, error) {
	var orderID, method string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			orderID, err = decodeString(d)
		case "paymentMethod":
			method, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return "", "", err
	}
	if orderID == "" {
		return "", "", badRequest("orderId is required")
	}
	return orderID, order.PaymentMethod(method), nil
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	orderID, _, err := decodePaymentRequest(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	in, err := h.payments.CreateIntent(r.Context(), orderID, principal(r).AccountID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "id", in.ID)
			encodeStr(e, "clientSecret", in.ClientSecret)
			encodeMoney(e, "amount", in.Amount)
			encodeStr(e, "currency", in.Currency)
		})
	})
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, method, err := decodePaymentRequest(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.payments.Confirm(r.Context(), orderID, principal(r).AccountID, method)
	if errors.Is(err, payment.ErrDeclined) {
		writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				encodeBool(e, "success", false)
				encodeStr(e, "message", err.Error())
			})
		})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeBool(e, "success", true)
			encodeStr(e, "message", "Payment successful")
			encodeBool(e, "alreadyPaid", res.AlreadyPaid)
			e.Field("order", func(e *jx.Encoder) { h.encodeOrder(e, res.Order) })
		})
	})
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.payments.Status(r.Context(), chi.URLParam(r, "orderId"), principal(r).AccountID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "status", string(st.Status))
			encodeBool(e, "paid", st.Paid)
		})
	})
}
