package risk

import (
	"fmt"
	"math"

	"github.com/quillfx/papertrader/internal/domain"
)

// MarginHealth classifies an account's margin level.
type MarginHealth string

const (
	MarginHealthy  MarginHealth = "healthy"
	MarginWarning  MarginHealth = "warning"
	MarginCritical MarginHealth = "critical"
)

// MarginBands holds the margin-level thresholds, expressed as percentages
// (e.g. CallLevel=100 means 100%). StopOutInclusive controls whether a level
// exactly at the stop-out threshold counts as critical; the boundary was
// ambiguous upstream, so it is configuration rather than a hardcoded guess.
type MarginBands struct {
	CallLevel        float64
	StopOutLevel     float64
	StopOutInclusive bool
}

// MarginRequired computes the margin needed to hold quantity units at
// entryPrice with the given leverage.
func MarginRequired(quantity, entryPrice float64, leverage int) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("risk: quantity %v: %w", quantity, ErrInvalidInput)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("risk: entry price %v: %w", entryPrice, ErrInvalidInput)
	}
	if leverage <= 0 {
		return 0, fmt.Errorf("risk: leverage %d: %w", leverage, ErrInvalidInput)
	}
	return quantity * entryPrice / float64(leverage), nil
}

// FreeMargin is the equity not currently locked as margin. A negative value
// signals that open losses have eaten past the locked margin.
func FreeMargin(equity, marginUsed float64) float64 {
	return equity - marginUsed
}

// MarginLevel returns equity over margin used as a percentage. When no
// margin is in use there is nothing at risk and the level is +Inf.
func MarginLevel(equity, marginUsed float64) float64 {
	if marginUsed == 0 {
		return math.Inf(1)
	}
	return equity / marginUsed * 100
}

// ClassifyMarginLevel buckets a margin level into the configured bands.
// Levels below the stop-out threshold are critical (forced-liquidation
// territory), levels below the call threshold are a warning, everything
// else is healthy.
func ClassifyMarginLevel(level float64, bands MarginBands) MarginHealth {
	atStopOut := level < bands.StopOutLevel ||
		(bands.StopOutInclusive && level == bands.StopOutLevel)
	if atStopOut {
		return MarginCritical
	}
	if level < bands.CallLevel {
		return MarginWarning
	}
	return MarginHealthy
}

// LiquidationPrice returns the price at which equity falls to the
// maintenance margin for a single position opened at entryPrice.
func LiquidationPrice(entryPrice float64, side domain.Side, leverage int, maintenanceMarginRatio float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("risk: entry price %v: %w", entryPrice, ErrInvalidInput)
	}
	if leverage <= 0 {
		return 0, fmt.Errorf("risk: leverage %d: %w", leverage, ErrInvalidInput)
	}
	if !side.Valid() {
		return 0, fmt.Errorf("risk: side %q: %w", side, ErrInvalidInput)
	}

	inv := 1 / float64(leverage)
	if side == domain.SideBuy {
		return entryPrice * (1 - inv + maintenanceMarginRatio), nil
	}
	return entryPrice * (1 + inv - maintenanceMarginRatio), nil
}
