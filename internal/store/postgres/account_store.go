package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillfx/papertrader/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

var _ domain.AccountStore = (*AccountStore)(nil)

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, acct domain.Account) error {
	const query = `
		INSERT INTO accounts (id, currency, balance, margin_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		acct.ID, acct.Currency, acct.Balance, acct.MarginUsed,
		acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", acct.ID, err)
	}
	return nil
}

// GetByID retrieves a single account by its ID.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `
		SELECT id, currency, balance, margin_used, created_at, updated_at
		FROM accounts WHERE id = $1`

	var a domain.Account
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Currency, &a.Balance, &a.MarginUsed, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// List returns every account ordered by creation time.
func (s *AccountStore) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, currency, balance, margin_used, created_at, updated_at
		 FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Currency, &a.Balance, &a.MarginUsed, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return accounts, nil
}

// UpdateBalance sets the settled balance and margin in use for an account.
func (s *AccountStore) UpdateBalance(ctx context.Context, id string, balance, marginUsed float64) error {
	const query = `
		UPDATE accounts SET
			balance     = $2,
			margin_used = $3,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, balance, marginUsed)
	if err != nil {
		return fmt.Errorf("postgres: update account %s balance: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
