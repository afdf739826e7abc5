package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
)

// statusOf maps a domain error to its HTTP status. Unknown errors are 500.
func statusOf(err error) int {
	var (
		reqErr     *requestError
		notFound   *order.ProductNotFoundError
		badQty     *order.InvalidQuantityError
		badInput   *order.InvalidInputError
		badProduct *product.ValidationError
		badAccount *account.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrExists),
		errors.Is(err, order.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, payment.ErrDeclined),
		errors.As(err, &badQty),
		errors.As(err, &badInput),
		errors.As(err, &badProduct),
		errors.As(err, &badAccount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a {"message": ...} response. Server errors are logged
// and their details withheld.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	case errors.Is(err, account.ErrInvalidAdminCode):
		msg = "invalid admin registration code"
	case status == http.StatusForbidden:
		msg = "not authorized"
	case status == http.StatusUnauthorized && !errors.Is(err, account.ErrInvalidCredentials):
		msg = "not authenticated"
	}
	writeMessage(w, status, msg)
}
