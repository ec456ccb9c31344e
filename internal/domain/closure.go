package domain

import "time"

// ClosureReason identifies which rule closed (or would close) a position.
type ClosureReason string

const (
	ClosureReasonNone         ClosureReason = "none"
	ClosureReasonTakeProfit   ClosureReason = "take_profit"
	ClosureReasonStopLoss     ClosureReason = "stop_loss"
	ClosureReasonTrailingStop ClosureReason = "trailing_stop"
	ClosureReasonTimeExpiry   ClosureReason = "time_expiry"
	ClosureReasonManual       ClosureReason = "manual"
	ClosureReasonForced       ClosureReason = "forced"
)

// ClosureStatus tracks the outcome of a closure evaluation.
type ClosureStatus string

const (
	ClosureStatusNotTriggered ClosureStatus = "not_triggered"
	ClosureStatusTriggered    ClosureStatus = "triggered"
	ClosureStatusExecuted     ClosureStatus = "executed"
	ClosureStatusFailed       ClosureStatus = "failed"
)

// ClosureResult is the output record of one closure evaluation. It is
// created fresh per call and never mutated after construction.
type ClosureResult struct {
	PositionID      string        `json:"position_id"`
	Reason          ClosureReason `json:"reason"`
	Status          ClosureStatus `json:"status"`
	ExecutionPrice  float64       `json:"execution_price"`
	RealizedPnL     float64       `json:"realized_pnl"`
	Commission      float64       `json:"commission"`
	Slippage        float64       `json:"slippage"`
	MarginRecovered float64       `json:"margin_recovered"`
	ClosedQuantity  float64       `json:"closed_quantity"`
	ClosedAt        time.Time     `json:"closed_at"`
}
