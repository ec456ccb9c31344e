package risk

import (
	"fmt"
	"math"

	"github.com/quillfx/papertrader/internal/domain"
)

// PnLBreakdown combines the unrealized and realized P&L of one position.
type PnLBreakdown struct {
	Unrealized float64 `json:"unrealized"`
	Realized   float64 `json:"realized"`
	Total      float64 `json:"total"`
	IsProfit   bool    `json:"is_profit"`
}

// DrawdownReport describes the largest peak-to-trough equity decline over
// an equity curve.
type DrawdownReport struct {
	MaxDrawdown    float64
	MaxDrawdownPct float64
	Peak           float64
	Trough         float64
}

// UnrealizedPnL returns the open profit or loss of an exposure. For a buy
// it is (current - entry) * quantity; for a sell the negation, so
// UnrealizedPnL(buy, q, e, c) == -UnrealizedPnL(sell, q, e, c).
func UnrealizedPnL(side domain.Side, quantity, entryPrice, currentPrice float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("risk: quantity %v: %w", quantity, ErrInvalidInput)
	}
	if entryPrice <= 0 || currentPrice <= 0 {
		return 0, fmt.Errorf("risk: price (entry=%v current=%v): %w", entryPrice, currentPrice, ErrInvalidInput)
	}
	if !side.Valid() {
		return 0, fmt.Errorf("risk: side %q: %w", side, ErrInvalidInput)
	}

	pnl := (currentPrice - entryPrice) * quantity
	if side == domain.SideSell {
		pnl = -pnl
	}
	return pnl, nil
}

// PnLPercent returns the percentage price change, sign-flipped for sells.
func PnLPercent(entryPrice, currentPrice float64, side domain.Side) (float64, error) {
	if entryPrice <= 0 || currentPrice <= 0 {
		return 0, fmt.Errorf("risk: price (entry=%v current=%v): %w", entryPrice, currentPrice, ErrInvalidInput)
	}
	if !side.Valid() {
		return 0, fmt.Errorf("risk: side %q: %w", side, ErrInvalidInput)
	}

	pct := (currentPrice - entryPrice) / entryPrice * 100
	if side == domain.SideSell {
		pct = -pct
	}
	return pct, nil
}

// PositionPnL combines the position's unrealized P&L at its current price
// with any realized P&L already booked on it (e.g. partial closes).
func PositionPnL(p domain.Position) (PnLBreakdown, error) {
	unrealized, err := UnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice)
	if err != nil {
		return PnLBreakdown{}, err
	}
	total := unrealized + p.RealizedPnL
	return PnLBreakdown{
		Unrealized: unrealized,
		Realized:   p.RealizedPnL,
		Total:      total,
		IsProfit:   total > 0,
	}, nil
}

// TotalPnL sums a series of per-trade P&L values.
func TotalPnL(tradePnLs []float64) float64 {
	var total float64
	for _, pnl := range tradePnLs {
		total += pnl
	}
	return total
}

// WinRate returns winning trades over total trades, or 0 when there are no
// trades. A break-even trade does not count as a win.
func WinRate(tradePnLs []float64) float64 {
	if len(tradePnLs) == 0 {
		return 0
	}
	var wins int
	for _, pnl := range tradePnLs {
		if pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(tradePnLs))
}

// ProfitFactor returns gross profit over gross loss. With profits and no
// losses it is +Inf; with neither it is 0.
func ProfitFactor(tradePnLs []float64) float64 {
	var grossProfit, grossLoss float64
	for _, pnl := range tradePnLs {
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss += -pnl
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// Expectancy is the average P&L per trade weighted by win/loss probability:
// winRate * avgWin - lossRate * avgLoss. Zero when there are no trades.
func Expectancy(tradePnLs []float64) float64 {
	if len(tradePnLs) == 0 {
		return 0
	}

	var winSum, lossSum float64
	var wins, losses int
	for _, pnl := range tradePnLs {
		if pnl > 0 {
			winSum += pnl
			wins++
		} else if pnl < 0 {
			lossSum += -pnl
			losses++
		}
	}

	total := float64(len(tradePnLs))
	var avgWin, avgLoss float64
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return (float64(wins)/total)*avgWin - (float64(losses)/total)*avgLoss
}

// AnalyzeDrawdown scans an ordered equity curve and reports the largest
// peak-to-trough decline. A monotonically increasing curve yields a zero
// drawdown.
func AnalyzeDrawdown(equityCurve []float64) DrawdownReport {
	if len(equityCurve) == 0 {
		return DrawdownReport{}
	}

	report := DrawdownReport{Peak: equityCurve[0], Trough: equityCurve[0]}
	peak := equityCurve[0]

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		if dd > report.MaxDrawdown {
			report.MaxDrawdown = dd
			report.Peak = peak
			report.Trough = equity
			if peak > 0 {
				report.MaxDrawdownPct = dd / peak * 100
			}
		}
	}
	return report
}
