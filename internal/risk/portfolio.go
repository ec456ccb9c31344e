package risk

import (
	"math"

	"github.com/quillfx/papertrader/internal/domain"
)

// ConcentrationRisk classifies how concentrated an account's margin is.
type ConcentrationRisk string

const (
	ConcentrationLow    ConcentrationRisk = "low"
	ConcentrationMedium ConcentrationRisk = "medium"
	ConcentrationHigh   ConcentrationRisk = "high"
)

// RiskStatus is the overall account risk classification.
type RiskStatus string

const (
	RiskStatusSafe     RiskStatus = "safe"
	RiskStatusWarning  RiskStatus = "warning"
	RiskStatusCritical RiskStatus = "critical"
)

// HHI thresholds on squared fractional weights: a single-position account
// scores 1.0, a perfectly spread 10-symbol account scores 0.1.
const (
	hhiMediumThreshold = 0.25
	hhiHighThreshold   = 0.50
)

// Assumed daily volatilities per asset class for the parametric VaR
// estimate. These are deliberate approximations, not fitted parameters;
// upgrading them to a statistical model would change observable behavior.
var classVolatility = map[domain.AssetClass]float64{
	domain.AssetClassForex:  0.007,
	domain.AssetClassMetal:  0.012,
	domain.AssetClassIndex:  0.015,
	domain.AssetClassCrypto: 0.045,
}

const defaultVolatility = 0.02

// StressScenario applies a uniform price shock to every open position.
type StressScenario struct {
	Name     string
	ShockPct float64 // -10 means every price drops 10%
}

// Concentration returns each symbol's share of total margin used, as
// percentages summing to 100. An empty or zero-margin portfolio yields an
// empty map.
func Concentration(positions []domain.Position) map[string]float64 {
	var totalMargin float64
	for _, p := range positions {
		totalMargin += p.MarginUsed
	}

	out := make(map[string]float64, len(positions))
	if totalMargin <= 0 {
		return out
	}
	for _, p := range positions {
		out[p.Symbol] += p.MarginUsed / totalMargin * 100
	}
	return out
}

// HerfindahlIndex sums the squared fractional concentration weights.
// Higher means less diversified; a single symbol scores 1.0.
func HerfindahlIndex(concentration map[string]float64) float64 {
	var hhi float64
	for _, pct := range concentration {
		w := pct / 100
		hhi += w * w
	}
	return hhi
}

// ClassifyConcentrationRisk buckets a Herfindahl index at fixed thresholds.
func ClassifyConcentrationRisk(hhi float64) ConcentrationRisk {
	switch {
	case hhi >= hhiHighThreshold:
		return ConcentrationHigh
	case hhi >= hhiMediumThreshold:
		return ConcentrationMedium
	default:
		return ConcentrationLow
	}
}

// EstimateCorrelation returns a heuristic pairwise correlation in [-1, 1].
// It is an assumption table keyed on symbol and asset class, not a
// statistical estimator, and is documented as such.
func EstimateCorrelation(a, b domain.AssetSpec) float64 {
	switch {
	case a.Symbol == b.Symbol:
		return 0.95
	case a.AssetClass == b.AssetClass:
		return 0.7
	case (a.AssetClass == domain.AssetClassForex && b.AssetClass == domain.AssetClassMetal) ||
		(a.AssetClass == domain.AssetClassMetal && b.AssetClass == domain.AssetClassForex):
		return 0.3
	default:
		return 0.1
	}
}

// zScore maps a confidence level to its one-tailed normal quantile. Only
// the three supported confidence levels are tabulated; anything else falls
// back to 95%.
func zScore(confidence float64) float64 {
	switch confidence {
	case 0.90:
		return 1.282
	case 0.95:
		return 1.645
	case 0.99:
		return 2.326
	default:
		return 1.645
	}
}

// EstimateVaR returns a parametric value-at-risk estimate for the open
// positions at the given confidence level, using the assumed per-class
// volatilities. This is intentionally not a historical-simulation VaR.
func EstimateVaR(positions []domain.Position, specs map[string]domain.AssetSpec, confidence float64) float64 {
	z := zScore(confidence)
	var variance float64
	for _, p := range positions {
		vol := defaultVolatility
		if spec, ok := specs[p.Symbol]; ok {
			if v, ok := classVolatility[spec.AssetClass]; ok {
				vol = v
			}
		}
		exposure := p.Notional() * vol
		// Positions are treated as independent; cross terms are covered by
		// the correlation heuristic at the reporting layer, not here.
		variance += exposure * exposure
	}
	return z * math.Sqrt(variance)
}

// ClassifyRiskStatus combines margin health, drawdown, and concentration
// into one account status. The result is the worst of the inputs, never an
// average: any critical signal makes the account critical.
func ClassifyRiskStatus(marginHealth MarginHealth, drawdownPct float64, concentration ConcentrationRisk) RiskStatus {
	critical := marginHealth == MarginCritical || drawdownPct >= 50
	if critical {
		return RiskStatusCritical
	}

	warning := marginHealth == MarginWarning ||
		drawdownPct >= 20 ||
		concentration == ConcentrationHigh
	if warning {
		return RiskStatusWarning
	}
	return RiskStatusSafe
}

// RunStressTests applies each scenario's price shock to every open position
// and returns the projected account equity per scenario. Equity is balance
// plus shocked unrealized P&L.
func RunStressTests(snapshot domain.PortfolioSnapshot, scenarios []StressScenario) map[string]float64 {
	out := make(map[string]float64, len(scenarios))
	for _, sc := range scenarios {
		equity := snapshot.Balance
		for _, p := range snapshot.Positions {
			shocked := p.CurrentPrice * (1 + sc.ShockPct/100)
			pnl := (shocked - p.EntryPrice) * p.Quantity
			if p.Side == domain.SideSell {
				pnl = -pnl
			}
			equity += pnl
		}
		out[sc.Name] = equity
	}
	return out
}
