package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func openPosition() domain.Position {
	return domain.Position{
		ID:           "pos-1",
		Symbol:       "EUR/USD",
		Side:         domain.SideBuy,
		Quantity:     1,
		EntryPrice:   1.1000,
		CurrentPrice: 1.1050,
		Leverage:     100,
		MarginUsed:   0.011,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTakeProfitTrigger(t *testing.T) {
	p := openPosition()
	p.StopLoss = ptr(1.0980)
	p.TakeProfit = ptr(1.1100)

	// Price between both levels: nothing fires.
	assert.False(t, TakeProfitTriggered(p))
	assert.False(t, StopLossTriggered(p))

	p.CurrentPrice = 1.1100
	assert.True(t, TakeProfitTriggered(p))

	// No take-profit set: never triggers.
	p.TakeProfit = nil
	assert.False(t, TakeProfitTriggered(p))
}

func TestStopLossTriggerBothSides(t *testing.T) {
	buy := openPosition()
	buy.StopLoss = ptr(1.0980)
	buy.CurrentPrice = 1.0975
	assert.True(t, StopLossTriggered(buy))

	sell := openPosition()
	sell.Side = domain.SideSell
	sell.StopLoss = ptr(1.1100)
	sell.CurrentPrice = 1.1120
	assert.True(t, StopLossTriggered(sell))
	sell.CurrentPrice = 1.1050
	assert.False(t, StopLossTriggered(sell))
}

func TestUpdateHighWaterMarkNeverRetreats(t *testing.T) {
	p := openPosition()

	mark := UpdateHighWaterMark(p, 0, 1.1050)
	assert.Equal(t, 1.1050, mark)

	// Favorable tick advances.
	mark = UpdateHighWaterMark(p, mark, 1.1080)
	assert.Equal(t, 1.1080, mark)

	// Unfavorable tick never retreats the mark.
	mark = UpdateHighWaterMark(p, mark, 1.1020)
	assert.Equal(t, 1.1080, mark)

	// Sell side: the mark is the lowest price seen.
	sell := openPosition()
	sell.Side = domain.SideSell
	mark = UpdateHighWaterMark(sell, 0, 1.0950)
	assert.Equal(t, 1.0950, mark)
	mark = UpdateHighWaterMark(sell, mark, 1.1010)
	assert.Equal(t, 1.0950, mark)
}

func TestTrailingStopTriggered(t *testing.T) {
	p := openPosition()
	p.TrailingDistance = ptr(0.0050)

	// Price within trailing distance of the mark: no trigger.
	p.CurrentPrice = 1.1060
	assert.False(t, TrailingStopTriggered(p, 1.1080))

	// Retraced the full distance from the mark: trigger.
	p.CurrentPrice = 1.1030
	assert.True(t, TrailingStopTriggered(p, 1.1080))

	// No trailing distance configured: never triggers.
	p.TrailingDistance = nil
	assert.False(t, TrailingStopTriggered(p, 1.1080))
}

func TestTimeExpiryTriggered(t *testing.T) {
	p := openPosition()
	now := p.OpenedAt.Add(25 * time.Hour)

	assert.True(t, TimeExpiryTriggered(p, now, 24*time.Hour))
	assert.False(t, TimeExpiryTriggered(p, now, 48*time.Hour))
	// Zero max hold disables expiry.
	assert.False(t, TimeExpiryTriggered(p, now, 0))
}

func TestPrimaryClosureTriggerPriority(t *testing.T) {
	p := openPosition()
	now := p.OpenedAt.Add(time.Hour)

	// Both stop-loss and take-profit satisfied on the same tick: stop-loss
	// wins, protecting capital first.
	p.StopLoss = ptr(1.1050)
	p.TakeProfit = ptr(1.1050)
	p.CurrentPrice = 1.1050
	assert.Equal(t, domain.ClosureReasonStopLoss, PrimaryClosureTrigger(p, 0, now, 0, false))

	// Forced outranks everything.
	assert.Equal(t, domain.ClosureReasonForced, PrimaryClosureTrigger(p, 0, now, 0, true))

	// Nothing fires.
	calm := openPosition()
	calm.StopLoss = ptr(1.0980)
	calm.TakeProfit = ptr(1.1100)
	assert.Equal(t, domain.ClosureReasonNone, PrimaryClosureTrigger(calm, 0, now, 0, false))
}

func TestClosureSlippage(t *testing.T) {
	assert.Equal(t, 0.0, ClosureSlippage(0, 1))
	assert.InDelta(t, 0.0001, ClosureSlippage(1, 1), 1e-12)

	// Larger orders slip more.
	assert.Greater(t, ClosureSlippage(10, 1), ClosureSlippage(1, 1))

	// Capped at the maximum.
	assert.Equal(t, maxSlippageFraction, ClosureSlippage(1e9, 5))
}

func TestClosurePriceIsAdverse(t *testing.T) {
	buy := openPosition()
	assert.Less(t, ClosurePrice(buy, 0.001), buy.CurrentPrice)

	sell := openPosition()
	sell.Side = domain.SideSell
	assert.Greater(t, ClosurePrice(sell, 0.001), sell.CurrentPrice)
}

func TestExecuteClosure(t *testing.T) {
	p := openPosition()
	now := p.OpenedAt.Add(2 * time.Hour)
	params := ClosureParams{VolatilityFactor: 1, CommissionRate: 0.0002}

	result, closed, err := ExecuteClosure(p, domain.ClosureReasonTakeProfit, now, params)
	require.NoError(t, err)

	assert.Equal(t, domain.ClosureStatusExecuted, result.Status)
	assert.Equal(t, domain.ClosureReasonTakeProfit, result.Reason)
	assert.Equal(t, p.Quantity, result.ClosedQuantity)
	assert.Equal(t, p.MarginUsed, result.MarginRecovered)
	assert.Greater(t, result.Commission, 0.0)
	assert.Less(t, result.ExecutionPrice, p.CurrentPrice) // adverse fill for a buy

	expectedPnL := (result.ExecutionPrice - p.EntryPrice) * p.Quantity
	assert.InDelta(t, expectedPnL, result.RealizedPnL, 1e-12)

	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, now, *closed.ClosedAt)
	require.NotNil(t, closed.ExitPrice)
	assert.Equal(t, result.ExecutionPrice, *closed.ExitPrice)
	assert.Equal(t, 0.0, closed.MarginUsed)
}

func TestExecuteClosureIdempotenceGuard(t *testing.T) {
	p := openPosition()
	now := time.Now().UTC()
	params := ClosureParams{VolatilityFactor: 1, CommissionRate: 0.0002}

	_, closed, err := ExecuteClosure(p, domain.ClosureReasonManual, now, params)
	require.NoError(t, err)

	// Closing the already-closed position must fail, never double-apply.
	_, _, err = ExecuteClosure(closed, domain.ClosureReasonManual, now, params)
	require.ErrorIs(t, err, ErrAlreadyClosed)

	closing := openPosition()
	closing.Status = domain.PositionStatusClosing
	_, _, err = ExecuteClosure(closing, domain.ClosureReasonManual, now, params)
	require.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestExecutePartialClosure(t *testing.T) {
	p := openPosition()
	p.Quantity = 4
	p.MarginUsed = 0.044
	now := time.Now().UTC()
	params := ClosureParams{VolatilityFactor: 1, CommissionRate: 0.0002}

	result, remaining, err := ExecutePartialClosure(p, 1, now, params)
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.ClosedQuantity)
	assert.InDelta(t, 0.011, result.MarginRecovered, 1e-12)

	// Quantity and margin are conserved across the split.
	assert.InDelta(t, 3, remaining.Quantity, 1e-12)
	assert.InDelta(t, p.MarginUsed-result.MarginRecovered, remaining.MarginUsed, 1e-12)
	assert.Equal(t, domain.PositionStatusOpen, remaining.Status)

	// The remaining lot carries the realized P&L from the closed lot.
	assert.InDelta(t, result.RealizedPnL, remaining.RealizedPnL, 1e-12)
}

func TestExecutePartialClosureRejectsOutOfRangeQuantity(t *testing.T) {
	p := openPosition()
	p.Quantity = 4
	now := time.Now().UTC()
	params := ClosureParams{VolatilityFactor: 1}

	for _, q := range []float64{0, -1, 4, 5} {
		_, _, err := ExecutePartialClosure(p, q, now, params)
		require.ErrorIs(t, err, ErrInvalidQuantity, "closeQuantity=%v", q)
	}
}
