package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

var (
	// ErrUnauthenticated is returned when a request carries no valid credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the caller is authenticated but lacks
	// permission for the operation.
	ErrForbidden = errors.New("forbidden")
)

// Principal identifies the caller of an operation.
type Principal struct {
	AccountID string
	Role      Role
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the principal may act on a resource owned by
// ownerID: the owner itself or any administrator.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.AccountID != "" && p.AccountID == ownerID)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
