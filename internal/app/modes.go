package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillfx/papertrader/internal/engine"
	"github.com/quillfx/papertrader/internal/feed"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/server"
	"github.com/quillfx/papertrader/internal/server/handler"
	"github.com/quillfx/papertrader/internal/server/ws"
	"github.com/quillfx/papertrader/internal/service"
)

// services bundles the service layer built on top of wired dependencies.
type services struct {
	accounts  *service.AccountService
	orders    *service.OrderService
	positions *service.PositionService
	risk      *service.RiskService
}

// buildServices constructs the service layer shared by all modes.
func (a *App) buildServices(deps *Dependencies) *services {
	return &services{
		accounts: service.NewAccountService(
			deps.AccountStore, deps.PositionStore, deps.LedgerStore, deps.AuditStore,
			a.cfg.Trading.StartingBalance, a.logger,
		),
		orders: service.NewOrderService(
			deps.OrderStore, deps.PositionStore, deps.AccountStore, deps.AssetSpecStore,
			deps.PriceCache, deps.RateLimiter, deps.SignalBus, deps.AuditStore,
			service.OrderConfig{
				DefaultLeverage:  a.cfg.Trading.DefaultLeverage,
				MaxOpenPositions: a.cfg.Trading.MaxOpenPositions,
				RatePerSecond:    a.cfg.Trading.OrderRatePerSecond,
			},
			a.logger,
		),
		positions: service.NewPositionService(
			deps.PositionStore, deps.AccountStore, deps.AssetSpecStore, deps.LedgerStore,
			deps.SignalBus, deps.AuditStore, a.cfg.Trading.VolatilityFactor, a.logger,
		),
		risk: service.NewRiskService(
			deps.PositionStore, deps.AccountStore, deps.AssetSpecStore, deps.LedgerStore,
			deps.RiskEventStore, deps.SignalBus, deps.Notifier,
			service.RiskServiceConfig{
				Bands: risk.MarginBands{
					CallLevel:        a.cfg.Trading.MarginCallLevel,
					StopOutLevel:     a.cfg.Trading.StopOutLevel,
					StopOutInclusive: a.cfg.Trading.StopOutInclusive,
				},
				VaRConfidence:  a.cfg.RiskMon.VaRConfidence,
				DrawdownWindow: a.cfg.RiskMon.DrawdownWindow.Duration,
				StressShocks:   a.cfg.RiskMon.StressShocks,
			},
			a.logger,
		),
	}
}

// startFeed adds the simulated price feed to the errgroup.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sim := feed.NewSimulator(feed.Config{
		Symbols:      a.cfg.Feed.Symbols,
		TickInterval: a.cfg.Feed.TickInterval.Duration,
		Drift:        a.cfg.Feed.Drift,
		Volatility:   a.cfg.Feed.Volatility,
		Seed:         a.cfg.Feed.Seed,
	}, deps.PriceCache, deps.SignalBus, a.logger)

	g.Go(func() error {
		return sim.Run(ctx)
	})
}

// startMaintenance adds the position-lifecycle sweep to the errgroup.
func (a *App) startMaintenance(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	maint := engine.NewMaintenance(
		deps.AccountStore, deps.PositionStore, deps.PriceCache, deps.LockManager,
		svcs.positions, svcs.orders, svcs.risk,
		engine.Config{
			Interval: a.cfg.RiskMon.CheckInterval.Duration,
			MaxHold:  a.cfg.Trading.MaxHold.Duration,
		},
		a.logger,
	)

	g.Go(func() error {
		return maint.Run(ctx)
	})
}

// startArchiver adds the scheduled archival run to the errgroup. It is a
// no-op unless archival is enabled and wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}

	arch := engine.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		if cron := a.cfg.Archive.Cron; cron != "" {
			return arch.RunCron(ctx, cron)
		}
		return arch.RunInterval(ctx, a.cfg.Archive.Interval.Duration)
	})
}

// startHTTPServer adds the HTTP + WebSocket server to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, startedAt),
		Accounts:  handler.NewAccountHandler(svcs.accounts, a.logger),
		Orders:    handler.NewOrderHandler(svcs.orders, a.logger),
		Positions: handler.NewPositionHandler(svcs.positions, a.logger),
		Risk:      handler.NewRiskHandler(svcs.risk, a.logger),
		Specs:     handler.NewSpecHandler(deps.AssetSpecStore, a.logger),
	}
	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		handlers.Archive = handler.NewArchiveHandler(deps.Archiver, retention, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		APIKeyHash:  a.cfg.Server.APIKeyHash,
		RateLimiter: deps.RateLimiter,
		RatePerSec:  a.cfg.Trading.OrderRatePerSecond * 10,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ServerMode runs the price feed and the HTTP API without the maintenance
// sweep. Protective triggers and stop-outs do not fire in this mode; it is
// meant for read-mostly deployments alongside a monitor instance.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startFeed(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// MonitorMode runs the price feed and the maintenance sweep without the HTTP
// API. Orders can only enter through another instance sharing the stores.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startFeed(ctx, g, deps)
	a.startMaintenance(ctx, g, deps, svcs)

	return g.Wait()
}

// ArchiveMode runs a single archival pass and exits. Suited to external
// schedulers; the in-process schedule belongs to full mode.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if !a.cfg.Archive.Enabled {
		return fmt.Errorf("archive mode requires archive.enabled = true")
	}
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode requires s3 configuration")
	}

	arch := engine.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	return arch.Run(ctx)
}

// FullMode runs every subsystem: the price feed, the maintenance sweep, the
// HTTP API, and scheduled archival when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startFeed(ctx, g, deps)
	a.startMaintenance(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}
