package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillfx/papertrader/internal/domain"
)

// RiskEventStore implements domain.RiskEventStore using PostgreSQL.
type RiskEventStore struct {
	pool *pgxpool.Pool
}

// NewRiskEventStore creates a new RiskEventStore backed by the given connection pool.
func NewRiskEventStore(pool *pgxpool.Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

var _ domain.RiskEventStore = (*RiskEventStore)(nil)

func scanRiskEvent(row pgx.Row) (domain.RiskEvent, error) {
	var e domain.RiskEvent
	var kind string
	var detailJSON []byte

	if err := row.Scan(&e.ID, &e.AccountID, &kind, &detailJSON, &e.CreatedAt); err != nil {
		return domain.RiskEvent{}, err
	}
	e.Kind = domain.RiskEventKind(kind)
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
			return domain.RiskEvent{}, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return e, nil
}

// Insert appends a new risk event.
func (s *RiskEventStore) Insert(ctx context.Context, evt domain.RiskEvent) error {
	detailJSON, err := json.Marshal(evt.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk event detail: %w", err)
	}

	const query = `
		INSERT INTO risk_events (id, account_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.pool.Exec(ctx, query,
		evt.ID, evt.AccountID, string(evt.Kind), detailJSON, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk event %s: %w", evt.ID, err)
	}
	return nil
}

// ListByAccount returns risk events for the given account, newest first.
func (s *RiskEventStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.RiskEvent, error) {
	query := `SELECT id, account_id, kind, detail, created_at
		FROM risk_events WHERE account_id = $1`
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

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list risk events: %w", err)
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		e, err := scanRiskEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan risk event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list risk events rows: %w", err)
	}
	return events, nil
}

// LastByAccount returns the most recent risk event for the given account.
func (s *RiskEventStore) LastByAccount(ctx context.Context, accountID string) (domain.RiskEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, account_id, kind, detail, created_at
		 FROM risk_events WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT 1`, accountID)

	e, err := scanRiskEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskEvent{}, domain.ErrNotFound
		}
		return domain.RiskEvent{}, fmt.Errorf("postgres: last risk event for %s: %w", accountID, err)
	}
	return e, nil
}

// ListBefore returns risk events older than the cutoff, oldest first, for
// archival.
func (s *RiskEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.RiskEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, kind, detail, created_at
		 FROM risk_events WHERE created_at < $1
		 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk events before cutoff: %w", err)
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		e, err := scanRiskEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan risk event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list risk events rows: %w", err)
	}
	return events, nil
}
