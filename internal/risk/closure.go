package risk

import (
	"fmt"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// maxSlippageFraction caps modeled slippage at 0.5% of the execution price
// regardless of order size.
const maxSlippageFraction = 0.005

// ClosureParams carries the execution-model inputs for a closure: the
// volatility factor feeding the slippage model, the commission rate from
// the symbol's AssetSpec, and the maximum hold duration for time-based
// expiry (zero disables expiry).
type ClosureParams struct {
	VolatilityFactor float64
	CommissionRate   float64
	MaxHold          time.Duration
}

// TakeProfitTriggered reports whether the position's take-profit level has
// been reached. A position without a take-profit never triggers.
func TakeProfitTriggered(p domain.Position) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Side == domain.SideBuy {
		return p.CurrentPrice >= *p.TakeProfit
	}
	return p.CurrentPrice <= *p.TakeProfit
}

// StopLossTriggered reports whether the position's stop-loss level has been
// breached.
func StopLossTriggered(p domain.Position) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Side == domain.SideBuy {
		return p.CurrentPrice <= *p.StopLoss
	}
	return p.CurrentPrice >= *p.StopLoss
}

// UpdateHighWaterMark advances the best-favorable-price mark for the
// position. For a buy the mark only ever moves up, for a sell only ever
// down; an unfavorable tick returns the prior mark unchanged. The caller
// owns persistence of the returned mark.
func UpdateHighWaterMark(p domain.Position, prior, currentPrice float64) float64 {
	if prior == 0 {
		prior = p.EntryPrice
	}
	if p.Side == domain.SideBuy {
		if currentPrice > prior {
			return currentPrice
		}
		return prior
	}
	if currentPrice < prior {
		return currentPrice
	}
	return prior
}

// TrailingStopTriggered reports whether price has retraced more than the
// trailing distance from the best price seen since open.
func TrailingStopTriggered(p domain.Position, highWaterMark float64) bool {
	if p.TrailingDistance == nil {
		return false
	}
	if highWaterMark == 0 {
		highWaterMark = p.EntryPrice
	}
	if p.Side == domain.SideBuy {
		return p.CurrentPrice <= highWaterMark-*p.TrailingDistance
	}
	return p.CurrentPrice >= highWaterMark+*p.TrailingDistance
}

// TimeExpiryTriggered reports whether the position has been held for at
// least maxHold. A zero maxHold disables time-based expiry.
func TimeExpiryTriggered(p domain.Position, now time.Time, maxHold time.Duration) bool {
	if maxHold <= 0 {
		return false
	}
	return now.Sub(p.OpenedAt) >= maxHold
}

// PrimaryClosureTrigger evaluates every trigger and returns the highest
// priority one that fired: forced > stop_loss > take_profit > trailing_stop
// > time_expiry. Stop-loss outranks take-profit when both fire on the same
// tick so capital protection wins.
func PrimaryClosureTrigger(p domain.Position, highWaterMark float64, now time.Time, maxHold time.Duration, forced bool) domain.ClosureReason {
	switch {
	case forced:
		return domain.ClosureReasonForced
	case StopLossTriggered(p):
		return domain.ClosureReasonStopLoss
	case TakeProfitTriggered(p):
		return domain.ClosureReasonTakeProfit
	case TrailingStopTriggered(p, highWaterMark):
		return domain.ClosureReasonTrailingStop
	case TimeExpiryTriggered(p, now, maxHold):
		return domain.ClosureReasonTimeExpiry
	default:
		return domain.ClosureReasonNone
	}
}

// ClosureSlippage models execution slippage as a fraction of price. Larger
// orders move the book more, scaled by the symbol's volatility factor, and
// the result is capped at maxSlippageFraction.
func ClosureSlippage(quantity, volatilityFactor float64) float64 {
	if quantity <= 0 || volatilityFactor <= 0 {
		return 0
	}
	slip := quantity * 0.0001 * volatilityFactor
	if slip > maxSlippageFraction {
		return maxSlippageFraction
	}
	return slip
}

// ClosurePrice applies slippage adversely to the trader: a buy closes by
// selling below the current price, a sell closes by buying above it.
func ClosurePrice(p domain.Position, slippage float64) float64 {
	if p.Side == domain.SideBuy {
		return p.CurrentPrice * (1 - slippage)
	}
	return p.CurrentPrice * (1 + slippage)
}

// RealizedPnLOnClosure computes the P&L realized by closing quantity units
// at closurePrice.
func RealizedPnLOnClosure(p domain.Position, closurePrice, quantity float64) (float64, error) {
	return UnrealizedPnL(p.Side, quantity, p.EntryPrice, closurePrice)
}

// CommissionOnClosure computes the commission charged on closure notional.
func CommissionOnClosure(quantity, price, commissionRate float64) float64 {
	return quantity * price * commissionRate
}

// ExecuteClosure produces the complete closure record for a position and
// the resulting closed position. It either returns a fully populated
// ClosureResult or an error; it never partially applies. Closing a position
// that is not open fails with ErrAlreadyClosed.
func ExecuteClosure(p domain.Position, reason domain.ClosureReason, now time.Time, params ClosureParams) (domain.ClosureResult, domain.Position, error) {
	if p.Status != domain.PositionStatusOpen {
		return domain.ClosureResult{}, p, fmt.Errorf("risk: close position %s (status %s): %w", p.ID, p.Status, ErrAlreadyClosed)
	}
	if p.Quantity <= 0 || p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return domain.ClosureResult{}, p, fmt.Errorf("risk: close position %s: %w", p.ID, ErrInvalidInput)
	}

	slippage := ClosureSlippage(p.Quantity, params.VolatilityFactor)
	execPrice := ClosurePrice(p, slippage)
	pnl, err := RealizedPnLOnClosure(p, execPrice, p.Quantity)
	if err != nil {
		return domain.ClosureResult{}, p, err
	}
	commission := CommissionOnClosure(p.Quantity, execPrice, params.CommissionRate)

	result := domain.ClosureResult{
		PositionID:      p.ID,
		Reason:          reason,
		Status:          domain.ClosureStatusExecuted,
		ExecutionPrice:  execPrice,
		RealizedPnL:     pnl,
		Commission:      commission,
		Slippage:        slippage,
		MarginRecovered: p.MarginUsed,
		ClosedQuantity:  p.Quantity,
		ClosedAt:        now,
	}

	closed := p
	closed.Status = domain.PositionStatusClosed
	closed.RealizedPnL += pnl
	closed.ClosedAt = &result.ClosedAt
	closed.ExitPrice = &result.ExecutionPrice
	closed.MarginUsed = 0

	return result, closed, nil
}

// ExecutePartialClosure closes closeQuantity units of the position and
// returns the closure record for the closed lot together with the remaining
// open position. The remaining lot keeps the accumulated realized P&L and
// has its margin reduced pro-rata. closeQuantity must satisfy
// 0 < closeQuantity < p.Quantity.
func ExecutePartialClosure(p domain.Position, closeQuantity float64, now time.Time, params ClosureParams) (domain.ClosureResult, domain.Position, error) {
	if p.Status != domain.PositionStatusOpen {
		return domain.ClosureResult{}, p, fmt.Errorf("risk: partial close position %s (status %s): %w", p.ID, p.Status, ErrAlreadyClosed)
	}
	if closeQuantity <= 0 || closeQuantity >= p.Quantity {
		return domain.ClosureResult{}, p, fmt.Errorf("risk: partial close %v of %v: %w", closeQuantity, p.Quantity, ErrInvalidQuantity)
	}

	slippage := ClosureSlippage(closeQuantity, params.VolatilityFactor)
	execPrice := ClosurePrice(p, slippage)
	pnl, err := RealizedPnLOnClosure(p, execPrice, closeQuantity)
	if err != nil {
		return domain.ClosureResult{}, p, err
	}
	commission := CommissionOnClosure(closeQuantity, execPrice, params.CommissionRate)
	marginRecovered := p.MarginUsed * closeQuantity / p.Quantity

	result := domain.ClosureResult{
		PositionID:      p.ID,
		Reason:          domain.ClosureReasonManual,
		Status:          domain.ClosureStatusExecuted,
		ExecutionPrice:  execPrice,
		RealizedPnL:     pnl,
		Commission:      commission,
		Slippage:        slippage,
		MarginRecovered: marginRecovered,
		ClosedQuantity:  closeQuantity,
		ClosedAt:        now,
	}

	remaining := p
	remaining.Quantity = p.Quantity - closeQuantity
	remaining.MarginUsed = p.MarginUsed - marginRecovered
	remaining.RealizedPnL += pnl

	return result, remaining, nil
}
