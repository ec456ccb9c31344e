package domain

import "time"

// Account is one virtual-money trading account. Balance is the settled cash
// amount; Equity adds unrealized P&L across open positions and is derived at
// read time rather than stored.
type Account struct {
	ID         string    `json:"id"`
	Currency   string    `json:"currency"`
	Balance    float64   `json:"balance"`
	MarginUsed float64   `json:"margin_used"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerEntry is one append-only row of the account ledger. Every balance
// mutation (deposit, realized P&L, commission) gets an entry so the equity
// curve can be reconstructed for drawdown analysis.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	AccountID    string    `json:"account_id"`
	Kind         string    `json:"kind"` // deposit, realized_pnl, commission, adjustment
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"` // position or order id
	CreatedAt    time.Time `json:"created_at"`
}

// RiskEventKind classifies account-level risk occurrences.
type RiskEventKind string

const (
	RiskEventMarginCall RiskEventKind = "margin_call"
	RiskEventStopOut    RiskEventKind = "stop_out"
	RiskEventRecovered  RiskEventKind = "recovered"
)

// RiskEvent records a margin-health transition for an account.
type RiskEvent struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Kind      RiskEventKind  `json:"kind"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
