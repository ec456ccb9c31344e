package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
)

func TestApplyTickAdvancesHighWaterMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	p, err := f.positionSvc.ApplyTick(ctx, p, 1.1050)
	require.NoError(t, err)
	assert.Equal(t, 1.1050, p.CurrentPrice)
	assert.Equal(t, 1.1050, p.HighWaterMark)

	// Unfavorable tick updates the price but not the mark.
	p, err = f.positionSvc.ApplyTick(ctx, p, 1.1020)
	require.NoError(t, err)
	assert.Equal(t, 1.1020, p.CurrentPrice)
	assert.Equal(t, 1.1050, p.HighWaterMark)
}

func TestSetProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	updated, err := f.positionSvc.SetProtection(ctx, p.ID, ptr(1.0950), ptr(1.1200), nil)
	require.NoError(t, err)
	require.NotNil(t, updated.StopLoss)
	assert.Equal(t, 1.0950, *updated.StopLoss)
	require.NotNil(t, updated.TakeProfit)
	assert.Equal(t, 1.1200, *updated.TakeProfit)
	assert.Nil(t, updated.TrailingDistance)
}

func TestClosePositionSettlesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	// Move the price up so the close realizes a profit.
	p, err := f.positionSvc.ApplyTick(ctx, p, 1.1100)
	require.NoError(t, err)

	result, err := f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureStatusExecuted, result.Status)
	assert.Greater(t, result.RealizedPnL, 0.0)
	assert.InDelta(t, 110, result.MarginRecovered, 1e-9)

	closed, err := f.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, 0.0, closed.MarginUsed)

	acct, err := f.accounts.GetByID(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acct.MarginUsed)
	assert.InDelta(t, 10000+result.RealizedPnL-result.Commission, acct.Balance, 1e-9)

	// Ledger carries both the P&L and the commission movements.
	entries, err := f.ledger.ListByAccount(ctx, testAccount, domain.ListOpts{})
	require.NoError(t, err)
	kinds := make(map[string]int)
	for _, e := range entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds["realized_pnl"])
	assert.Equal(t, 1, kinds["commission"])
	assert.Equal(t, 1, kinds["deposit"])
}

func TestClosePositionTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	_, err := f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
	require.NoError(t, err)

	_, err = f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
	require.ErrorIs(t, err, risk.ErrAlreadyClosed)
}

func TestConcurrentCloseSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	// A manual close racing the maintenance sweep: only one caller may
	// claim the closure and settle.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, risk.ErrAlreadyClosed)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	entries, err := f.ledger.ListByAccount(ctx, testAccount, domain.ListOpts{})
	require.NoError(t, err)
	pnlEntries := 0
	for _, e := range entries {
		if e.Kind == "realized_pnl" {
			pnlEntries++
		}
	}
	assert.Equal(t, 1, pnlEntries)

	acct, err := f.accounts.GetByID(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acct.MarginUsed)
}

func TestCloseWhileClosingConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	// Another worker holds the closure claim.
	_, err := f.positions.MarkClosing(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.positionSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonManual)
	require.ErrorIs(t, err, risk.ErrAlreadyClosed)
}

func TestListAllOpenSpansAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openPosition(t, 10000, 100)

	_, err := f.accountSvc.CreateAccount(ctx, "acct-2")
	require.NoError(t, err)
	result, err := f.orderSvc.PlaceOrder(ctx, OrderRequest{
		AccountID: "acct-2",
		Symbol:    "EUR/USD",
		Side:      domain.SideSell,
		Type:      domain.OrderTypeMarket,
		Quantity:  5000,
		Leverage:  50,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	all, err := f.positionSvc.ListAllOpen(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	accounts := map[string]bool{}
	for _, p := range all {
		accounts[p.AccountID] = true
	}
	assert.True(t, accounts[testAccount])
	assert.True(t, accounts["acct-2"])
}

func TestDetailDerivesRiskFigures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	p, err := f.positionSvc.ApplyTick(ctx, p, 1.1100)
	require.NoError(t, err)

	d, err := f.positionSvc.Detail(ctx, p.ID)
	require.NoError(t, err)

	// 10000 units up 0.01 from 1.1000.
	assert.InDelta(t, 100, d.PnL.Unrealized, 1e-9)
	assert.True(t, d.PnL.IsProfit)
	assert.InDelta(t, (0.01/1.1)*100, d.PnLPercent, 1e-9)

	// Buy at 1.10 with 100x leverage and 0.5% maintenance margin.
	assert.InDelta(t, 1.1*(1-1.0/100+0.005), d.LiquidationPrice, 1e-9)
}

func TestPartialCloseKeepsRemainderOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openPosition(t, 10000, 100)

	result, err := f.positionSvc.PartialClose(ctx, p.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, 4000.0, result.ClosedQuantity)

	remaining, err := f.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, remaining.Status)
	assert.InDelta(t, 6000, remaining.Quantity, 1e-9)
	assert.InDelta(t, p.MarginUsed-result.MarginRecovered, remaining.MarginUsed, 1e-9)

	acct, err := f.accounts.GetByID(ctx, testAccount)
	require.NoError(t, err)
	assert.InDelta(t, remaining.MarginUsed, acct.MarginUsed, 1e-9)
}

func TestPartialCloseRejectsFullQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.openPosition(t, 10000, 100)

	_, err := f.positionSvc.PartialClose(context.Background(), p.ID, 10000)
	require.ErrorIs(t, err, risk.ErrInvalidQuantity)
}
