package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions.
//
// MarkClosing atomically transitions a position from open to closing and
// returns the snapshot that was claimed. It fails with ErrConflict when the
// position is not open, so exactly one caller ever wins the closure.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	MarkClosing(ctx context.Context, id string) (Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	GetOpen(ctx context.Context, accountID string) ([]Position, error)
	GetAllOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, accountID string, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListPending(ctx context.Context, accountID string) ([]Order, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Order, error)
	ListFilledBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, acct Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	UpdateBalance(ctx context.Context, id string, balance, marginUsed float64) error
}

// AssetSpecStore supplies the static per-symbol trading configuration.
type AssetSpecStore interface {
	Get(ctx context.Context, symbol string) (AssetSpec, error)
	List(ctx context.Context) ([]AssetSpec, error)
	Upsert(ctx context.Context, spec AssetSpec) error
}

// LedgerStore persists the append-only account ledger.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]LedgerEntry, error)
	// EquityCurve returns the ordered balance-after series for an account,
	// oldest first, for drawdown analysis.
	EquityCurve(ctx context.Context, accountID string, since time.Time) ([]float64, error)
}

// RiskEventStore persists account risk events.
type RiskEventStore interface {
	Insert(ctx context.Context, evt RiskEvent) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]RiskEvent, error)
	LastByAccount(ctx context.Context, accountID string) (RiskEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]RiskEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
