package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillfx/papertrader/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, account_id, symbol, side, quantity,
	entry_price, current_price, leverage, margin_used,
	stop_loss, take_profit, trailing_distance, high_water_mark,
	realized_pnl, status, opened_at, closed_at, exit_price`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.AccountID, &p.Symbol, &side, &p.Quantity,
		&p.EntryPrice, &p.CurrentPrice, &p.Leverage, &p.MarginUsed,
		&p.StopLoss, &p.TakeProfit, &p.TrailingDistance, &p.HighWaterMark,
		&p.RealizedPnL, &status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, account_id, symbol, side, quantity,
			entry_price, current_price, leverage, margin_used,
			stop_loss, take_profit, trailing_distance, high_water_mark,
			realized_pnl, status, opened_at, closed_at, exit_price, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AccountID, p.Symbol, string(p.Side), p.Quantity,
		p.EntryPrice, p.CurrentPrice, p.Leverage, p.MarginUsed,
		p.StopLoss, p.TakeProfit, p.TrailingDistance, p.HighWaterMark,
		p.RealizedPnL, string(p.Status), p.OpenedAt, p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			quantity          = $2,
			current_price     = $3,
			margin_used       = $4,
			stop_loss         = $5,
			take_profit       = $6,
			trailing_distance = $7,
			high_water_mark   = $8,
			realized_pnl      = $9,
			status            = $10,
			closed_at         = $11,
			exit_price        = $12,
			updated_at        = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Quantity, p.CurrentPrice, p.MarginUsed,
		p.StopLoss, p.TakeProfit, p.TrailingDistance, p.HighWaterMark,
		p.RealizedPnL, string(p.Status), p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkClosing atomically claims an open position for closure. The row only
// transitions when its status is still 'open', so concurrent closers race on
// the conditional update and exactly one wins. Returns the snapshot as it was
// before the transition.
func (s *PositionStore) MarkClosing(ctx context.Context, id string) (domain.Position, error) {
	const query = `
		UPDATE positions SET status = 'closing', updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + positionSelectCols

	row := s.pool.QueryRow(ctx, query, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Missing row or lost race; disambiguate for the caller.
			if _, gerr := s.GetByID(ctx, id); gerr != nil {
				return domain.Position{}, gerr
			}
			return domain.Position{}, domain.ErrConflict
		}
		return domain.Position{}, fmt.Errorf("postgres: mark closing %s: %w", id, err)
	}
	p.Status = domain.PositionStatusOpen
	return p, nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpen returns all open positions for the given account.
func (s *PositionStore) GetOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE account_id = $1 AND status = 'open'
		 ORDER BY opened_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// GetAllOpen returns every open position across all accounts, for the
// maintenance sweep.
func (s *PositionStore) GetAllOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get all open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan all open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions for the given account with pagination and
// optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns closed positions whose close time precedes the
// cutoff, oldest first, for archival.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}
