package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/storefront/internal/domain/auth"
)

// requireAuth verifies the bearer token and stores the principal in the
// request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeMessage(w, http.StatusUnauthorized, "not authenticated, no token")
			return
		}
		p, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "not authenticated, invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// requireAdmin rejects principals without the admin role. It must run after
// requireAuth.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !p.IsAdmin() {
			writeMessage(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the caller set by requireAuth.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
