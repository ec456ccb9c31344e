package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/quillfx/papertrader/internal/cache/memory"
	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/service"
	"github.com/quillfx/papertrader/internal/store/memory"
)

const testAccount = "acct-1"

type harness struct {
	accounts  *memory.AccountStore
	positions *memory.PositionStore
	orders    *memory.OrderStore
	prices    *cachemem.PriceCache
	orderSvc  *service.OrderService
	engine    *Maintenance
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	accounts := memory.NewAccountStore()
	positions := memory.NewPositionStore()
	orders := memory.NewOrderStore()
	ledger := memory.NewLedgerStore()
	riskEvents := memory.NewRiskEventStore()
	audit := memory.NewAuditStore()
	specs := memory.NewAssetSpecStore(domain.AssetSpec{
		Symbol:                 "EUR/USD",
		AssetClass:             domain.AssetClassForex,
		PipSize:                0.0001,
		MaxLeverage:            500,
		MinQuantity:            1000,
		MaxQuantity:            10000000,
		CommissionRate:         0.00002,
		MaintenanceMarginRatio: 0.005,
	})
	prices := cachemem.NewPriceCache()
	bus := cachemem.NewSignalBus()

	accountSvc := service.NewAccountService(accounts, positions, ledger, audit, 10000, logger)
	orderSvc := service.NewOrderService(
		orders, positions, accounts, specs, prices,
		cachemem.NewRateLimiter(), bus, audit,
		service.OrderConfig{DefaultLeverage: 100, MaxOpenPositions: 20, RatePerSecond: 100},
		logger,
	)
	posSvc := service.NewPositionService(positions, accounts, specs, ledger, bus, audit, 1.0, logger)
	riskSvc := service.NewRiskService(
		positions, accounts, specs, ledger, riskEvents, bus, nil,
		service.RiskServiceConfig{
			Bands:          risk.MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: true},
			VaRConfidence:  0.95,
			DrawdownWindow: 30 * 24 * time.Hour,
		},
		logger,
	)

	eng := NewMaintenance(
		accounts, positions, prices, cachemem.NewLockManager(),
		posSvc, orderSvc, riskSvc,
		Config{Interval: time.Second},
		logger,
	)

	_, err := accountSvc.CreateAccount(ctx, testAccount)
	require.NoError(t, err)
	require.NoError(t, prices.SetPrice(ctx, "EUR/USD", 1.1000, time.Now()))

	return &harness{
		accounts:  accounts,
		positions: positions,
		orders:    orders,
		prices:    prices,
		orderSvc:  orderSvc,
		engine:    eng,
	}
}

func (h *harness) open(t *testing.T, req service.OrderRequest) domain.Position {
	t.Helper()
	req.AccountID = testAccount
	req.Symbol = "EUR/USD"
	req.Type = domain.OrderTypeMarket
	result, err := h.orderSvc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	p, err := h.positions.GetByID(context.Background(), result.PositionID)
	require.NoError(t, err)
	return p
}

func ptr(v float64) *float64 { return &v }

func TestSweepClosesStopLossPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.open(t, service.OrderRequest{
		Side:     domain.SideBuy,
		Quantity: 10000,
		Leverage: 100,
		StopLoss: ptr(1.0950),
	})

	// Price falls through the stop: the sweep closes the position.
	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.0940, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))

	closed, err := h.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)

	// The account's margin is fully released.
	acct, err := h.accounts.GetByID(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acct.MarginUsed)
}

func TestSweepLeavesCalmPositionsOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.open(t, service.OrderRequest{
		Side:       domain.SideBuy,
		Quantity:   10000,
		Leverage:   100,
		StopLoss:   ptr(1.0900),
		TakeProfit: ptr(1.1200),
	})

	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.1010, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))

	still, err := h.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, still.Status)
	assert.Equal(t, 1.1010, still.CurrentPrice)
	assert.Equal(t, 1.1010, still.HighWaterMark)
}

func TestSweepForcesStopOutLiquidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Heavy exposure: 2200 margin on 10000 balance at 500x.
	p := h.open(t, service.OrderRequest{
		Side:     domain.SideBuy,
		Quantity: 1000000,
		Leverage: 500,
	})

	// Crash: equity falls below the stop-out band with no stop-loss set.
	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.0910, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))

	closed, err := h.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
}

func TestSweepFillsMarketableLimitOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orderSvc.PlaceOrder(ctx, service.OrderRequest{
		AccountID:  testAccount,
		Symbol:     "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   10000,
		Leverage:   100,
		LimitPrice: ptr(1.0950),
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, result.Status)

	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.0940, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))

	order, err := h.orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
}

func TestTrailingStopViaSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.open(t, service.OrderRequest{
		Side:             domain.SideBuy,
		Quantity:         10000,
		Leverage:         100,
		TrailingDistance: ptr(0.0050),
	})

	// Rally advances the mark.
	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.1100, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))
	open, err := h.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusOpen, open.Status)
	assert.Equal(t, 1.1100, open.HighWaterMark)

	// Retrace beyond the trailing distance closes it.
	require.NoError(t, h.prices.SetPrice(ctx, "EUR/USD", 1.1040, time.Now()))
	require.NoError(t, h.engine.Sweep(ctx))

	closed, err := h.positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
}
