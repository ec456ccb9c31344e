package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func TestMarginRequired(t *testing.T) {
	m, err := MarginRequired(2, 1.1000, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.022, m, 1e-12)

	m, err = MarginRequired(1, 2000, 1)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, m)
}

func TestMarginRequiredRejectsInvalidInputs(t *testing.T) {
	cases := []struct {
		name     string
		quantity float64
		entry    float64
		leverage int
	}{
		{"zero leverage", 1, 1.1, 0},
		{"negative leverage", 1, 1.1, -5},
		{"zero quantity", 0, 1.1, 10},
		{"negative entry", 1, -1.1, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MarginRequired(tc.quantity, tc.entry, tc.leverage)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestFreeMarginMayBeNegative(t *testing.T) {
	assert.Equal(t, 8000.0, FreeMargin(10000, 2000))
	assert.Equal(t, -100.0, FreeMargin(900, 1000))
}

func TestMarginLevel(t *testing.T) {
	assert.Equal(t, 500.0, MarginLevel(10000, 2000))
	assert.Equal(t, 90.0, MarginLevel(900, 1000))
	assert.True(t, math.IsInf(MarginLevel(10000, 0), 1))
}

func TestMarginLevelMonotonicity(t *testing.T) {
	// For fixed equity, more margin used always means a lower level.
	const equity = 10000.0
	prev := MarginLevel(equity, 1)
	for used := 100.0; used <= 20000; used += 100 {
		level := MarginLevel(equity, used)
		assert.Less(t, level, prev, "marginUsed=%v", used)
		prev = level
	}
}

func TestClassifyMarginLevel(t *testing.T) {
	bands := MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: true}

	assert.Equal(t, MarginHealthy, ClassifyMarginLevel(500, bands))
	assert.Equal(t, MarginWarning, ClassifyMarginLevel(90, bands))
	assert.Equal(t, MarginCritical, ClassifyMarginLevel(40, bands))

	// Band lower bounds are inclusive.
	assert.Equal(t, MarginHealthy, ClassifyMarginLevel(100, bands))
}

func TestClassifyMarginLevelStopOutBoundary(t *testing.T) {
	inclusive := MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: true}
	exclusive := MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: false}

	assert.Equal(t, MarginCritical, ClassifyMarginLevel(50, inclusive))
	assert.Equal(t, MarginWarning, ClassifyMarginLevel(50, exclusive))

	// Below the threshold both configurations agree.
	assert.Equal(t, MarginCritical, ClassifyMarginLevel(49.999, inclusive))
	assert.Equal(t, MarginCritical, ClassifyMarginLevel(49.999, exclusive))
}

func TestLiquidationPrice(t *testing.T) {
	buy, err := LiquidationPrice(1.1000, domain.SideBuy, 100, 0.005)
	require.NoError(t, err)
	assert.InDelta(t, 1.1000*(1-0.01+0.005), buy, 1e-12)

	sell, err := LiquidationPrice(1.1000, domain.SideSell, 100, 0.005)
	require.NoError(t, err)
	assert.InDelta(t, 1.1000*(1+0.01-0.005), sell, 1e-12)

	// Buy liquidates below entry, sell above.
	assert.Less(t, buy, 1.1000)
	assert.Greater(t, sell, 1.1000)
}

func TestLiquidationPriceRejectsInvalidInputs(t *testing.T) {
	_, err := LiquidationPrice(0, domain.SideBuy, 100, 0.005)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = LiquidationPrice(1.1, domain.SideBuy, 0, 0.005)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = LiquidationPrice(1.1, domain.Side("hold"), 100, 0.005)
	require.ErrorIs(t, err, ErrInvalidInput)
}
