package account

import (
	"context"
	"crypto/subtle"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/auth"
)

// maxPasswordLength is the bcrypt input limit.
const maxPasswordLength = 72

// TokenIssuer signs bearer tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(p auth.Principal) (token string, expiresAt time.Time, err error)
}

// Config holds account service settings.
type Config struct {
	// AdminCode unlocks RegisterAdmin. Admin registration is disabled when
	// empty.
	AdminCode  string
	BcryptCost int
}

// Session is an authenticated account with a freshly issued token.
type Session struct {
	Account   *Account
	Token     string
	ExpiresAt time.Time
}

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate lists the fields to change. Nil fields are kept.
// Addresses, when set, replace the stored list wholesale.
type ProfileUpdate struct {
	Username  *string
	Email     *string
	Addresses *[]Address
}

// Service implements registration, login and profile management.
type Service struct {
	repo      Repository
	tokens    TokenIssuer
	adminCode string
	cost      int
	now       func() time.Time

	// dummyHash keeps Login timing uniform for unknown emails.
	dummyHash string
}

// NewService creates an account Service.
func NewService(repo Repository, tokens TokenIssuer, cfg Config) (*Service, error) {
	dummy, err := HashPassword(uuid.NewString(), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		adminCode: cfg.AdminCode,
		cost:      cfg.BcryptCost,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	return s.register(ctx, req, auth.RoleCustomer)
}

// RegisterAdmin creates an administrator account when code matches the
// configured admin code.
func (s *Service) RegisterAdmin(ctx context.Context, req RegisterRequest, code string) (*Session, error) {
	if s.adminCode == "" || subtle.ConstantTimeCompare([]byte(code), []byte(s.adminCode)) != 1 {
		return nil, ErrInvalidAdminCode
	}
	return s.register(ctx, req, auth.RoleAdmin)
}

func (s *Service) register(ctx context.Context, req RegisterRequest, role auth.Role) (*Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "required"}
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Addresses:    []Address{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create account")
	}
	return s.session(a)
}

// Login verifies credentials and signs the account in.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		CheckPassword(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, errors.Wrap(err, "get account")
	}
	if !CheckPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(a)
}

// Get returns the account by ID.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return nil, &ValidationError{Field: "username", Reason: "must not be empty"}
		}
		a.Username = username
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		a.Email = email
	}
	if upd.Addresses != nil {
		addrs, err := cleanAddresses(*upd.Addresses)
		if err != nil {
			return nil, err
		}
		a.Addresses = NormalizeAddresses(addrs, -1)
	}

	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		if errors.Is(err, ErrExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update account")
	}
	return a, nil
}

// AddAddress appends an address. A new default address replaces the
// previous default.
func (s *Service) AddAddress(ctx context.Context, id string, addr Address) ([]Address, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cleaned, err := cleanAddresses([]Address{addr})
	if err != nil {
		return nil, err
	}

	addrs := append(a.Addresses, cleaned[0])
	a.Addresses = NormalizeAddresses(addrs, len(addrs)-1)
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, errors.Wrap(err, "update account")
	}
	return a.Addresses, nil
}

func (s *Service) session(a *Account) (*Session, error) {
	token, exp, err := s.tokens.Issue(a.Principal())
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{Account: a, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "required"}
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", &ValidationError{Field: "email", Reason: "malformed address"}
	}
	return email, nil
}

func validatePassword(pw string) error {
	switch {
	case len(pw) < MinPasswordLength:
		return &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	case len(pw) > maxPasswordLength:
		return &ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	return nil
}

func cleanAddresses(addrs []Address) ([]Address, error) {
	out := make([]Address, len(addrs))
	for i, a := range addrs {
		a.Street = strings.TrimSpace(a.Street)
		a.City = strings.TrimSpace(a.City)
		a.State = strings.TrimSpace(a.State)
		a.PostalCode = strings.TrimSpace(a.PostalCode)
		if a.Street == "" || a.City == "" || a.PostalCode == "" {
			return nil, &ValidationError{Field: "address", Reason: "street, city and postal code are required"}
		}
		out[i] = a
	}
	return out, nil
}
