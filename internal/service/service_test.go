package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/quillfx/papertrader/internal/cache/memory"
	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/store/memory"
)

const testAccount = "acct-1"

// fixture wires every service against in-memory stores and caches.
type fixture struct {
	accounts   *memory.AccountStore
	positions  *memory.PositionStore
	orders     *memory.OrderStore
	specs      *memory.AssetSpecStore
	ledger     *memory.LedgerStore
	riskEvents *memory.RiskEventStore
	audit      *memory.AuditStore
	prices     *cachemem.PriceCache
	bus        *cachemem.SignalBus

	accountSvc  *AccountService
	orderSvc    *OrderService
	positionSvc *PositionService
	riskSvc     *RiskService
}

func eurusdSpec() domain.AssetSpec {
	return domain.AssetSpec{
		Symbol:                 "EUR/USD",
		AssetClass:             domain.AssetClassForex,
		PipSize:                0.0001,
		ContractSize:           100000,
		MaxLeverage:            500,
		MinQuantity:            1000,
		MaxQuantity:            10000000,
		CommissionRate:         0.00002,
		MaintenanceMarginRatio: 0.005,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	f := &fixture{
		accounts:   memory.NewAccountStore(),
		positions:  memory.NewPositionStore(),
		orders:     memory.NewOrderStore(),
		specs:      memory.NewAssetSpecStore(eurusdSpec()),
		ledger:     memory.NewLedgerStore(),
		riskEvents: memory.NewRiskEventStore(),
		audit:      memory.NewAuditStore(),
		prices:     cachemem.NewPriceCache(),
		bus:        cachemem.NewSignalBus(),
	}

	f.accountSvc = NewAccountService(f.accounts, f.positions, f.ledger, f.audit, 10000, logger)
	f.orderSvc = NewOrderService(
		f.orders, f.positions, f.accounts, f.specs, f.prices,
		cachemem.NewRateLimiter(), f.bus, f.audit,
		OrderConfig{DefaultLeverage: 100, MaxOpenPositions: 20, RatePerSecond: 100},
		logger,
	)
	f.positionSvc = NewPositionService(
		f.positions, f.accounts, f.specs, f.ledger, f.bus, f.audit, 1.0, logger,
	)
	f.riskSvc = NewRiskService(
		f.positions, f.accounts, f.specs, f.ledger, f.riskEvents, f.bus, nil,
		RiskServiceConfig{
			Bands:          risk.MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: true},
			VaRConfidence:  0.95,
			DrawdownWindow: 30 * 24 * time.Hour,
			StressShocks:   map[string]float64{"crash": -10},
		},
		logger,
	)

	ctx := context.Background()
	_, err := f.accountSvc.CreateAccount(ctx, testAccount)
	require.NoError(t, err)
	require.NoError(t, f.prices.SetPrice(ctx, "EUR/USD", 1.1000, time.Now()))

	return f
}

// openPosition places a market order and returns the resulting position.
func (f *fixture) openPosition(t *testing.T, quantity float64, leverage int) domain.Position {
	t.Helper()
	result, err := f.orderSvc.PlaceOrder(context.Background(), OrderRequest{
		AccountID: testAccount,
		Symbol:    "EUR/USD",
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  quantity,
		Leverage:  leverage,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	p, err := f.positions.GetByID(context.Background(), result.PositionID)
	require.NoError(t, err)
	return p
}
