package domain

import "time"

// Side indicates the direction of a leveraged exposure.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PositionStatus tracks the position lifecycle. Transitions only move
// forward: open -> closing -> closed. A closed position is never reopened.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// Position represents one open or historical leveraged exposure.
//
// StopLoss, TakeProfit and TrailingDistance are pointers so that "not set"
// is distinguishable from a zero price level. HighWaterMark is the best
// price seen since open in the favorable direction; it only ever advances
// and is persisted by the caller between ticks.
type Position struct {
	ID               string         `json:"id"`
	AccountID        string         `json:"account_id"`
	Symbol           string         `json:"symbol"`
	Side             Side           `json:"side"`
	Quantity         float64        `json:"quantity"`
	EntryPrice       float64        `json:"entry_price"`
	CurrentPrice     float64        `json:"current_price"`
	Leverage         int            `json:"leverage"`
	MarginUsed       float64        `json:"margin_used"`
	StopLoss         *float64       `json:"stop_loss,omitempty"`
	TakeProfit       *float64       `json:"take_profit,omitempty"`
	TrailingDistance *float64       `json:"trailing_distance,omitempty"`
	HighWaterMark    float64        `json:"high_water_mark"`
	RealizedPnL      float64        `json:"realized_pnl"`
	Status           PositionStatus `json:"status"`
	OpenedAt         time.Time      `json:"opened_at"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	ExitPrice        *float64       `json:"exit_price,omitempty"`
}

// IsOpen reports whether the position can still be evaluated for triggers.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// Notional returns the position's current notional value.
func (p Position) Notional() float64 {
	return p.Quantity * p.CurrentPrice
}

// PortfolioSnapshot is an immutable view of one account at one instant,
// used as the input aggregate for portfolio risk classification. It is not
// persisted.
type PortfolioSnapshot struct {
	AccountID  string     `json:"account_id"`
	Positions  []Position `json:"positions"`
	Balance    float64    `json:"balance"`
	Equity     float64    `json:"equity"`
	MarginUsed float64    `json:"margin_used"`
	Timestamp  time.Time  `json:"timestamp"`
}
