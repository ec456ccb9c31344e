package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestPlaceMarketOrderFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orderSvc.PlaceOrder(ctx, OrderRequest{
		AccountID: testAccount,
		Symbol:    "EUR/USD",
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  10000,
		Leverage:  100,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.OrderStatusFilled, result.Status)
	assert.Equal(t, 1.1000, result.FillPrice)
	assert.InDelta(t, 110, result.MarginUsed, 1e-9) // 10000*1.1/100

	p, err := f.positions.GetByID(ctx, result.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Equal(t, 1.1000, p.EntryPrice)
	assert.Equal(t, 1.1000, p.HighWaterMark)

	acct, err := f.accounts.GetByID(ctx, testAccount)
	require.NoError(t, err)
	assert.InDelta(t, 110, acct.MarginUsed, 1e-9)
	assert.Equal(t, 10000.0, acct.Balance) // margin reserved, not spent
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	f := newFixture(t)

	_, err := f.orderSvc.PlaceOrder(context.Background(), OrderRequest{
		AccountID: testAccount,
		Symbol:    "XXX/YYY",
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  10000,
	})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  OrderRequest
	}{
		{"bad side", OrderRequest{AccountID: testAccount, Symbol: "EUR/USD", Side: "hold", Type: domain.OrderTypeMarket, Quantity: 10000}},
		{"below min quantity", OrderRequest{AccountID: testAccount, Symbol: "EUR/USD", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 10}},
		{"leverage above max", OrderRequest{AccountID: testAccount, Symbol: "EUR/USD", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 10000, Leverage: 2000}},
		{"limit without price", OrderRequest{AccountID: testAccount, Symbol: "EUR/USD", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Quantity: 10000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.orderSvc.PlaceOrder(ctx, tc.req)
			require.ErrorIs(t, err, domain.ErrInvalidOrder)
			assert.False(t, result.Success)
		})
	}
}

func TestPlaceOrderInsufficientMargin(t *testing.T) {
	f := newFixture(t)

	// 10M units at 1.10 with 100x needs 110,000 margin against a 10,000 balance.
	result, err := f.orderSvc.PlaceOrder(context.Background(), OrderRequest{
		AccountID: testAccount,
		Symbol:    "EUR/USD",
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  10000000,
		Leverage:  100,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientMargin)
	assert.Equal(t, domain.OrderStatusRejected, result.Status)

	// The rejected order is persisted for the audit trail.
	order, err := f.orders.GetByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)
}

func TestLimitOrderRestsThenFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Buy limit below market rests.
	result, err := f.orderSvc.PlaceOrder(ctx, OrderRequest{
		AccountID:  testAccount,
		Symbol:     "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   10000,
		Leverage:   100,
		LimitPrice: ptr(1.0900),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, result.Status)

	// Still not marketable: nothing fills.
	require.NoError(t, f.orderSvc.FillPendingOrders(ctx, testAccount))
	order, err := f.orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	// Price drops through the limit: the sweep fills it at the limit price.
	require.NoError(t, f.prices.SetPrice(ctx, "EUR/USD", 1.0890, order.CreatedAt))
	require.NoError(t, f.orderSvc.FillPendingOrders(ctx, testAccount))

	order, err = f.orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	require.NotNil(t, order.FillPrice)
	assert.Equal(t, 1.0900, *order.FillPrice)
	require.NotNil(t, order.PositionID)

	p, err := f.positions.GetByID(ctx, *order.PositionID)
	require.NoError(t, err)
	assert.Equal(t, 1.0900, p.EntryPrice)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orderSvc.PlaceOrder(ctx, OrderRequest{
		AccountID:  testAccount,
		Symbol:     "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Quantity:   10000,
		LimitPrice: ptr(1.0000),
	})
	require.NoError(t, err)

	require.NoError(t, f.orderSvc.CancelOrder(ctx, result.OrderID))
	order, err := f.orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)

	// A cancelled order cannot be cancelled again.
	require.ErrorIs(t, f.orderSvc.CancelOrder(ctx, result.OrderID), domain.ErrInvalidOrder)
}

func TestPlaceOrderAppendsToEventStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openPosition(t, 10000, 100)

	// Order events land on the durable stream so late subscribers can
	// replay them.
	msgs, err := f.bus.StreamRead(ctx, domain.EventStream("orders"), "0", 10)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Contains(t, string(msgs[len(msgs)-1].Payload), `"order_filled"`)
}

func TestMaxOpenPositionsEnforced(t *testing.T) {
	f := newFixture(t)
	f.orderSvc.cfg.MaxOpenPositions = 1
	f.openPosition(t, 10000, 100)

	_, err := f.orderSvc.PlaceOrder(context.Background(), OrderRequest{
		AccountID: testAccount,
		Symbol:    "EUR/USD",
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  10000,
	})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}
