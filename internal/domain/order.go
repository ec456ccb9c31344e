package domain

import "time"

// OrderType selects the execution policy for a new order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order represents a request to open a position with virtual funds.
type Order struct {
	ID               string      `json:"id"`
	AccountID        string      `json:"account_id"`
	Symbol           string      `json:"symbol"`
	Side             Side        `json:"side"`
	Type             OrderType   `json:"type"`
	Quantity         float64     `json:"quantity"`
	Leverage         int         `json:"leverage"`
	LimitPrice       *float64    `json:"limit_price,omitempty"`
	StopLoss         *float64    `json:"stop_loss,omitempty"`
	TakeProfit       *float64    `json:"take_profit,omitempty"`
	TrailingDistance *float64    `json:"trailing_distance,omitempty"`
	Status           OrderStatus `json:"status"`
	FillPrice        *float64    `json:"fill_price,omitempty"`
	PositionID       *string     `json:"position_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	FilledAt         *time.Time  `json:"filled_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success    bool        `json:"success"`
	OrderID    string      `json:"order_id"`
	PositionID string      `json:"position_id,omitempty"`
	Status     OrderStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	FillPrice  float64     `json:"fill_price,omitempty"`
	MarginUsed float64     `json:"margin_used,omitempty"`
}
