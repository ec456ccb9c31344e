package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
)

func TestAccountRiskFlatAccount(t *testing.T) {
	f := newFixture(t)

	report, err := f.riskSvc.AccountRisk(context.Background(), testAccount)
	require.NoError(t, err)

	assert.True(t, math.IsInf(float64(report.MarginLevel), 1))
	assert.Equal(t, risk.MarginHealthy, report.MarginHealth)
	assert.Equal(t, risk.RiskStatusSafe, report.Status)
	assert.Equal(t, 0, report.OpenPositions)
	assert.Equal(t, 0.0, report.ValueAtRisk)
}

func TestAccountRiskReportMarshalsWithNoMarginInUse(t *testing.T) {
	f := newFixture(t)

	report, err := f.riskSvc.AccountRisk(context.Background(), testAccount)
	require.NoError(t, err)

	// With no margin in use the margin level is the +Inf sentinel; the
	// report must still encode, with the level rendered as null.
	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"margin_level":null`)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["margin_level"])
	assert.Equal(t, string(risk.MarginHealthy), decoded["margin_health"])
}

func TestRecoveryEventOnFlatAccountMarshals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 1000000, 500)

	_, err := f.positionSvc.ApplyTick(ctx, p, 1.0910)
	require.NoError(t, err)
	_, err = f.riskSvc.CheckAccount(ctx, testAccount)
	require.NoError(t, err)

	// Closing the last position leaves the account flat, so the recovery
	// event carries the +Inf margin level in its detail.
	_, err = f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonForced)
	require.NoError(t, err)
	_, err = f.riskSvc.CheckAccount(ctx, testAccount)
	require.NoError(t, err)

	last, err := f.riskEvents.LastByAccount(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, domain.RiskEventRecovered, last.Kind)

	data, err := json.Marshal(last)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"margin_level":null`)
}

func TestAccountRiskWithOpenPosition(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, 10000, 100)

	report, err := f.riskSvc.AccountRisk(context.Background(), testAccount)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OpenPositions)
	assert.InDelta(t, 110, report.MarginUsed, 1e-9)
	// Equity 10000 over 110 margin: deeply healthy.
	assert.Equal(t, risk.MarginHealthy, report.MarginHealth)
	assert.Greater(t, report.ValueAtRisk, 0.0)
	assert.InDelta(t, 100, report.Concentration["EUR/USD"], 1e-9)
	assert.Equal(t, risk.ConcentrationHigh, report.ConcRisk)
}

func TestCheckAccountRecordsStopOutAndRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 1000000, 500) // 2200 margin on 10000 balance

	// Crash the price: equity collapses below the stop-out band.
	_, err := f.positionSvc.ApplyTick(ctx, p, 1.0910)
	require.NoError(t, err)

	report, err := f.riskSvc.CheckAccount(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, risk.MarginCritical, report.MarginHealth)

	last, err := f.riskEvents.LastByAccount(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskEventStopOut, last.Kind)

	// A second check in the same state does not duplicate the event.
	_, err = f.riskSvc.CheckAccount(ctx, testAccount)
	require.NoError(t, err)
	events, err := f.riskEvents.ListByAccount(ctx, testAccount, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Price recovers: the transition back is recorded.
	_, err = f.positionSvc.ApplyTick(ctx, p, 1.1000)
	require.NoError(t, err)
	report, err = f.riskSvc.CheckAccount(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, risk.MarginHealthy, report.MarginHealth)

	last, err = f.riskEvents.LastByAccount(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskEventRecovered, last.Kind)
}

func TestStressTest(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, 10000, 100)

	results, err := f.riskSvc.StressTest(context.Background(), testAccount)
	require.NoError(t, err)
	require.Contains(t, results, "crash")

	// -10% on a 10000-unit buy at 1.10 loses 1100.
	assert.InDelta(t, 10000-1100, results["crash"], 1e-6)
}
