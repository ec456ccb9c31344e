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

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

var _ domain.OrderStore = (*OrderStore)(nil)

const orderSelectCols = `id, account_id, symbol, side, order_type, quantity,
	leverage, limit_price, stop_loss, take_profit, trailing_distance,
	status, fill_price, position_id, created_at, filled_at, cancelled_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, orderType, status string

	err := row.Scan(
		&o.ID, &o.AccountID, &o.Symbol, &side, &orderType, &o.Quantity,
		&o.Leverage, &o.LimitPrice, &o.StopLoss, &o.TakeProfit, &o.TrailingDistance,
		&status, &o.FillPrice, &o.PositionID, &o.CreatedAt, &o.FilledAt, &o.CancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, account_id, symbol, side, order_type, quantity,
			leverage, limit_price, stop_loss, take_profit, trailing_distance,
			status, fill_price, position_id, created_at, filled_at, cancelled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AccountID, o.Symbol, string(o.Side), string(o.Type), o.Quantity,
		o.Leverage, o.LimitPrice, o.StopLoss, o.TakeProfit, o.TrailingDistance,
		string(o.Status), o.FillPrice, o.PositionID, o.CreatedAt, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update replaces the mutable fields of an order.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			status       = $2,
			fill_price   = $3,
			position_id  = $4,
			filled_at    = $5,
			cancelled_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Status), o.FillPrice, o.PositionID, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single order by its ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListPending returns pending orders for the given account, oldest first.
func (s *OrderStore) ListPending(ctx context.Context, accountID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE account_id = $1 AND status = 'pending'
		 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending orders: %w", err)
	}
	return orders, nil
}

// ListByAccount returns orders for the given account with pagination and
// optional time filtering.
func (s *OrderStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE account_id = $1`
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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// ListFilledBefore returns filled orders whose fill time precedes the cutoff,
// oldest first, for archival.
func (s *OrderStore) ListFilledBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status = 'filled' AND filled_at < $1
		 ORDER BY filled_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list filled orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan filled orders: %w", err)
	}
	return orders, nil
}
