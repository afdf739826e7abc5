package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/account"
)

const (
	accountColumns = `id, username, email, password_hash, role, addresses, created_at, updated_at`

	createAccountSQL = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getAccountByIDSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	getAccountByEmailSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	updateAccountSQL = `UPDATE accounts
		SET username = $2, email = $3, addresses = $4, updated_at = $5
		WHERE id = $1`

	upsertAdminSQL = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, 'admin', '[]', $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, role = 'admin', updated_at = EXCLUDED.updated_at
		RETURNING id`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository implements account.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	addrs, err := marshalAddresses(a.Addresses)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, createAccountSQL,
		a.ID, a.Username, a.Email, a.PasswordHash, a.Role, addrs, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return account.ErrExists
		}
		return fmt.Errorf("creating account %q: %w", a.ID, err)
	}
	return nil
}

// GetByID returns an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return r.getOne(ctx, getAccountByIDSQL, id)
}

// GetByEmail returns an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	return r.getOne(ctx, getAccountByEmailSQL, email)
}

// Update writes username, email and addresses.
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	addrs, err := marshalAddresses(a.Addresses)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, updateAccountSQL, a.ID, a.Username, a.Email, addrs, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return account.ErrExists
		}
		return fmt.Errorf("updating account %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// UpsertAdmin creates an administrator or, when the email exists, promotes
// it and resets its password. It returns the stored account ID.
func (r *AccountRepository) UpsertAdmin(ctx context.Context, a *account.Account) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, upsertAdminSQL,
		a.ID, a.Username, a.Email, a.PasswordHash, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "accounts_username_key") {
			return "", account.ErrExists
		}
		return "", fmt.Errorf("upserting admin %q: %w", a.Email, err)
	}
	return id, nil
}

func (r *AccountRepository) getOne(ctx context.Context, sql string, arg string) (*account.Account, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting account %q: %w", arg, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("getting account %q: %w", arg, err)
	}
	return &a, nil
}

func marshalAddresses(addrs []account.Address) ([]byte, error) {
	if addrs == nil {
		addrs = []account.Address{}
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return nil, fmt.Errorf("marshaling addresses: %w", err)
	}
	return b, nil
}

func scanAccount(row pgx.CollectableRow) (account.Account, error) {
	var (
		a     account.Account
		addrs []byte
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &addrs, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(addrs, &a.Addresses); err != nil {
		return a, fmt.Errorf("unmarshaling addresses: %w", err)
	}
	return a, nil
}
