package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillfx/papertrader/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// Append inserts one ledger entry. The ledger is append-only; rows are never
// updated or deleted.
func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	const query = `
		INSERT INTO ledger (account_id, kind, amount, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		entry.AccountID, entry.Kind, entry.Amount, entry.BalanceAfter,
		entry.Reference, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry: %w", err)
	}
	return nil
}

// ListByAccount returns ledger entries for the given account with pagination
// and optional time filtering, newest first.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `SELECT id, account_id, kind, amount, balance_after, reference, created_at
		FROM ledger WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Kind, &e.Amount,
			&e.BalanceAfter, &e.Reference, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries rows: %w", err)
	}
	return entries, nil
}

// EquityCurve returns the ordered balance-after series for an account since
// the given time, oldest first.
func (s *LedgerStore) EquityCurve(ctx context.Context, accountID string, since time.Time) ([]float64, error) {
	const query = `
		SELECT balance_after FROM ledger
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: equity curve: %w", err)
	}
	defer rows.Close()

	var curve []float64
	for rows.Next() {
		var balance float64
		if err := rows.Scan(&balance); err != nil {
			return nil, fmt.Errorf("postgres: scan equity point: %w", err)
		}
		curve = append(curve, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: equity curve rows: %w", err)
	}
	return curve, nil
}
