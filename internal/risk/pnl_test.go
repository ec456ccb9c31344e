package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func TestUnrealizedPnL(t *testing.T) {
	pnl, err := UnrealizedPnL(domain.SideBuy, 1, 1.1000, 1.1050)
	require.NoError(t, err)
	assert.InDelta(t, 0.0050, pnl, 1e-12)

	pnl, err = UnrealizedPnL(domain.SideSell, 2, 1.1000, 1.0900)
	require.NoError(t, err)
	assert.InDelta(t, 0.0200, pnl, 1e-12)
}

func TestUnrealizedPnLSignSymmetry(t *testing.T) {
	cases := []struct{ q, e, c float64 }{
		{1, 1.1000, 1.1050},
		{3.5, 2000, 1850},
		{0.01, 45000, 47123.5},
	}
	for _, tc := range cases {
		buy, err := UnrealizedPnL(domain.SideBuy, tc.q, tc.e, tc.c)
		require.NoError(t, err)
		sell, err := UnrealizedPnL(domain.SideSell, tc.q, tc.e, tc.c)
		require.NoError(t, err)
		assert.InDelta(t, -sell, buy, 1e-9)
	}
}

func TestUnrealizedPnLRejectsInvalidInputs(t *testing.T) {
	_, err := UnrealizedPnL(domain.SideBuy, 0, 1.1, 1.2)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = UnrealizedPnL(domain.SideBuy, 1, -1.1, 1.2)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = UnrealizedPnL(domain.SideBuy, 1, 1.1, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPnLPercent(t *testing.T) {
	pct, err := PnLPercent(100, 110, domain.SideBuy)
	require.NoError(t, err)
	assert.InDelta(t, 10, pct, 1e-12)

	pct, err = PnLPercent(100, 110, domain.SideSell)
	require.NoError(t, err)
	assert.InDelta(t, -10, pct, 1e-12)
}

func TestPositionPnL(t *testing.T) {
	p := domain.Position{
		Side:         domain.SideBuy,
		Quantity:     2,
		EntryPrice:   100,
		CurrentPrice: 105,
		RealizedPnL:  3, // from a prior partial close
		Status:       domain.PositionStatusOpen,
	}

	breakdown, err := PositionPnL(p)
	require.NoError(t, err)
	assert.InDelta(t, 10, breakdown.Unrealized, 1e-12)
	assert.InDelta(t, 3, breakdown.Realized, 1e-12)
	assert.InDelta(t, 13, breakdown.Total, 1e-12)
	assert.True(t, breakdown.IsProfit)
}

func TestWinRate(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(nil))
	assert.InDelta(t, 0.5, WinRate([]float64{10, -5, 20, -1}), 1e-12)
	// Break-even trades are not wins.
	assert.InDelta(t, 1.0/3, WinRate([]float64{10, 0, -5}), 1e-12)
}

func TestProfitFactor(t *testing.T) {
	assert.Equal(t, 0.0, ProfitFactor(nil))
	assert.Equal(t, 0.0, ProfitFactor([]float64{0, 0}))
	assert.True(t, math.IsInf(ProfitFactor([]float64{10, 5}), 1))
	assert.InDelta(t, 3.0, ProfitFactor([]float64{30, -10}), 1e-12)
}

func TestExpectancy(t *testing.T) {
	assert.Equal(t, 0.0, Expectancy(nil))

	// Two wins averaging 15, two losses averaging 5:
	// 0.5*15 - 0.5*5 = 5.
	assert.InDelta(t, 5, Expectancy([]float64{10, 20, -4, -6}), 1e-12)
}

func TestAnalyzeDrawdownMonotoneCurveIsZero(t *testing.T) {
	report := AnalyzeDrawdown([]float64{100, 110, 120, 135, 200})
	assert.Equal(t, 0.0, report.MaxDrawdown)
	assert.Equal(t, 0.0, report.MaxDrawdownPct)
}

func TestAnalyzeDrawdown(t *testing.T) {
	report := AnalyzeDrawdown([]float64{100, 150, 90, 120, 110})
	assert.InDelta(t, 60, report.MaxDrawdown, 1e-12)
	assert.InDelta(t, 40, report.MaxDrawdownPct, 1e-12)
	assert.Equal(t, 150.0, report.Peak)
	assert.Equal(t, 90.0, report.Trough)
}

func TestAnalyzeDrawdownEmptyCurve(t *testing.T) {
	assert.Equal(t, DrawdownReport{}, AnalyzeDrawdown(nil))
}
