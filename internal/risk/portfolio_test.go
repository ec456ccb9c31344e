package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func marginPosition(symbol string, margin float64) domain.Position {
	return domain.Position{
		Symbol:       symbol,
		Side:         domain.SideBuy,
		Quantity:     1,
		EntryPrice:   100,
		CurrentPrice: 100,
		MarginUsed:   margin,
		Status:       domain.PositionStatusOpen,
	}
}

func TestConcentrationSumsToHundred(t *testing.T) {
	positions := []domain.Position{
		marginPosition("EUR/USD", 300),
		marginPosition("XAU/USD", 500),
		marginPosition("BTC/USD", 200),
		marginPosition("EUR/USD", 100), // same symbol aggregates
	}

	conc := Concentration(positions)
	require.Len(t, conc, 3)

	var sum float64
	for _, pct := range conc {
		sum += pct
	}
	assert.InDelta(t, 100, sum, 1e-9)
	assert.InDelta(t, 36.3636, conc["EUR/USD"], 1e-3)
}

func TestConcentrationEmptyPortfolio(t *testing.T) {
	assert.Empty(t, Concentration(nil))
	assert.Empty(t, Concentration([]domain.Position{marginPosition("EUR/USD", 0)}))
}

func TestHerfindahlIndex(t *testing.T) {
	single := Concentration([]domain.Position{marginPosition("EUR/USD", 500)})
	assert.InDelta(t, 1.0, HerfindahlIndex(single), 1e-9)

	even := Concentration([]domain.Position{
		marginPosition("EUR/USD", 250),
		marginPosition("GBP/USD", 250),
		marginPosition("XAU/USD", 250),
		marginPosition("BTC/USD", 250),
	})
	assert.InDelta(t, 0.25, HerfindahlIndex(even), 1e-9)
}

func TestClassifyConcentrationRisk(t *testing.T) {
	assert.Equal(t, ConcentrationLow, ClassifyConcentrationRisk(0.1))
	assert.Equal(t, ConcentrationMedium, ClassifyConcentrationRisk(0.25))
	assert.Equal(t, ConcentrationMedium, ClassifyConcentrationRisk(0.4))
	assert.Equal(t, ConcentrationHigh, ClassifyConcentrationRisk(0.5))
	assert.Equal(t, ConcentrationHigh, ClassifyConcentrationRisk(1.0))
}

func TestEstimateCorrelationHeuristic(t *testing.T) {
	eurusd := domain.AssetSpec{Symbol: "EUR/USD", AssetClass: domain.AssetClassForex}
	gbpusd := domain.AssetSpec{Symbol: "GBP/USD", AssetClass: domain.AssetClassForex}
	gold := domain.AssetSpec{Symbol: "XAU/USD", AssetClass: domain.AssetClassMetal}
	btc := domain.AssetSpec{Symbol: "BTC/USD", AssetClass: domain.AssetClassCrypto}

	assert.Equal(t, 0.95, EstimateCorrelation(eurusd, eurusd))
	assert.Equal(t, 0.7, EstimateCorrelation(eurusd, gbpusd))
	assert.Equal(t, 0.3, EstimateCorrelation(eurusd, gold))
	assert.Equal(t, 0.3, EstimateCorrelation(gold, eurusd))
	assert.Equal(t, 0.1, EstimateCorrelation(eurusd, btc))
}

func TestEstimateVaR(t *testing.T) {
	specs := map[string]domain.AssetSpec{
		"EUR/USD": {Symbol: "EUR/USD", AssetClass: domain.AssetClassForex},
	}
	positions := []domain.Position{
		{Symbol: "EUR/USD", Side: domain.SideBuy, Quantity: 100000, CurrentPrice: 1.1, EntryPrice: 1.1},
	}

	// Single position: z * notional * vol.
	v95 := EstimateVaR(positions, specs, 0.95)
	assert.InDelta(t, 1.645*110000*0.007, v95, 1e-6)

	// Higher confidence means a larger estimate.
	v99 := EstimateVaR(positions, specs, 0.99)
	assert.Greater(t, v99, v95)

	assert.Equal(t, 0.0, EstimateVaR(nil, specs, 0.95))
}

func TestClassifyRiskStatusWorstOf(t *testing.T) {
	// Any critical input makes the account critical.
	assert.Equal(t, RiskStatusCritical, ClassifyRiskStatus(MarginCritical, 0, ConcentrationLow))
	assert.Equal(t, RiskStatusCritical, ClassifyRiskStatus(MarginHealthy, 60, ConcentrationLow))

	// Any warning input makes it warning.
	assert.Equal(t, RiskStatusWarning, ClassifyRiskStatus(MarginWarning, 0, ConcentrationLow))
	assert.Equal(t, RiskStatusWarning, ClassifyRiskStatus(MarginHealthy, 25, ConcentrationLow))
	assert.Equal(t, RiskStatusWarning, ClassifyRiskStatus(MarginHealthy, 0, ConcentrationHigh))

	assert.Equal(t, RiskStatusSafe, ClassifyRiskStatus(MarginHealthy, 5, ConcentrationMedium))
}

func TestRunStressTests(t *testing.T) {
	snapshot := domain.PortfolioSnapshot{
		AccountID: "acct-1",
		Balance:   10000,
		Positions: []domain.Position{
			{Symbol: "EUR/USD", Side: domain.SideBuy, Quantity: 10000, EntryPrice: 1.10, CurrentPrice: 1.10},
			{Symbol: "XAU/USD", Side: domain.SideSell, Quantity: 2, EntryPrice: 2000, CurrentPrice: 2000},
		},
		Timestamp: time.Now().UTC(),
	}

	results := RunStressTests(snapshot, []StressScenario{
		{Name: "crash_10", ShockPct: -10},
		{Name: "flat", ShockPct: 0},
	})
	require.Len(t, results, 2)

	// Flat shock projects current equity.
	assert.InDelta(t, 10000, results["flat"], 1e-9)

	// -10%: the buy loses 10000*0.11, the sell gains 2*200.
	assert.InDelta(t, 10000-1100+400, results["crash_10"], 1e-9)
}
