package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func TestPerformanceAllWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	// Close one winning trade.
	p, err := f.positionSvc.ApplyTick(ctx, p, 1.1100)
	require.NoError(t, err)
	_, err = f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
	require.NoError(t, err)

	report, err := f.accountSvc.Performance(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 1.0, report.WinRate)
	assert.Greater(t, report.TotalPnL, 0.0)

	// No losing trades: the profit factor is the +Inf sentinel and encodes
	// as null.
	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor":null`)
}

func TestPerformanceMixedTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	winner := f.openPosition(t, 10000, 100)
	winner, err := f.positionSvc.ApplyTick(ctx, winner, 1.1100)
	require.NoError(t, err)
	_, err = f.positionSvc.ClosePosition(ctx, winner.ID, domain.ClosureReasonManual)
	require.NoError(t, err)

	require.NoError(t, f.prices.SetPrice(ctx, "EUR/USD", 1.1000, winner.OpenedAt))
	loser := f.openPosition(t, 10000, 100)
	loser, err = f.positionSvc.ApplyTick(ctx, loser, 1.0900)
	require.NoError(t, err)
	_, err = f.positionSvc.ClosePosition(ctx, loser.ID, domain.ClosureReasonManual)
	require.NoError(t, err)

	report, err := f.accountSvc.Performance(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Trades)
	assert.Equal(t, 0.5, report.WinRate)
	assert.Greater(t, float64(report.ProfitFactor), 0.0)

	// Total matches the realized P&L booked on the closed positions.
	history, err := f.positions.ListHistory(ctx, testAccount, domain.ListOpts{})
	require.NoError(t, err)
	var booked float64
	for _, p := range history {
		if p.Status == domain.PositionStatusClosed {
			booked += p.RealizedPnL
		}
	}
	assert.InDelta(t, booked, report.TotalPnL, 1e-9)
}

func TestPerformanceUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.accountSvc.Performance(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
