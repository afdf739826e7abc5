package account

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

var (
	// ErrNotFound is returned when an account does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned when the username or email is already taken.
	ErrExists = errors.New("account with this email or username already exists")
	// ErrInvalidCredentials is returned by Login for any unknown email or
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidAdminCode is returned when admin registration presents a
	// wrong code.
	ErrInvalidAdminCode = errors.Wrap(auth.ErrForbidden, "invalid admin registration code")
)

// Account is a registered storefront user. PasswordHash never leaves the
// service layer.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         auth.Role
	Addresses    []Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the identity used for authorization decisions.
func (a *Account) Principal() auth.Principal {
	return auth.Principal{AccountID: a.ID, Role: a.Role}
}

// ValidationError describes a rejected account field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Repository defines persistence operations for accounts.
type Repository interface {
	// Create stores a new account. It returns ErrExists when the username
	// or email is taken.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// Update writes username, email and addresses. It returns ErrExists on
	// username or email conflicts.
	Update(ctx context.Context, a *Account) error
}
