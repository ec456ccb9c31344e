// Package engine runs the periodic maintenance sweep: it refreshes open
// positions with the latest prices, evaluates closure triggers, fills
// resting limit orders, and enforces stop-out liquidations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/service"
)

// maxParallelAccounts bounds the per-account goroutines in one sweep.
const maxParallelAccounts = 8

// Config holds the maintenance loop parameters.
type Config struct {
	Interval time.Duration
	MaxHold  time.Duration
	LockTTL  time.Duration
}

// Maintenance drives the position lifecycle between ticks. One instance per
// deployment is enough; the distributed lock keeps concurrent instances from
// double-processing an account.
type Maintenance struct {
	accounts  domain.AccountStore
	positions domain.PositionStore
	prices    domain.PriceCache
	locks     domain.LockManager
	posSvc    *service.PositionService
	orderSvc  *service.OrderService
	riskSvc   *service.RiskService
	cfg       Config
	logger    *slog.Logger
}

// NewMaintenance creates the maintenance engine.
func NewMaintenance(
	accounts domain.AccountStore,
	positions domain.PositionStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	posSvc *service.PositionService,
	orderSvc *service.OrderService,
	riskSvc *service.RiskService,
	cfg Config,
	logger *slog.Logger,
) *Maintenance {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Maintenance{
		accounts:  accounts,
		positions: positions,
		prices:    prices,
		locks:     locks,
		posSvc:    posSvc,
		orderSvc:  orderSvc,
		riskSvc:   riskSvc,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "maintenance")),
	}
}

// Run executes sweeps on the configured interval until the context is
// cancelled.
func (m *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("maintenance engine started", slog.Duration("interval", m.cfg.Interval))
	defer m.logger.Info("maintenance engine stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep processes every account once. Accounts are handled in parallel with
// a bounded errgroup; a failure in one account does not stop the others.
func (m *Maintenance) Sweep(ctx context.Context) error {
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("engine: list accounts: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelAccounts)

	for _, acct := range accounts {
		acct := acct
		g.Go(func() error {
			if err := m.sweepAccount(ctx, acct.ID); err != nil {
				m.logger.WarnContext(ctx, "account sweep failed",
					slog.String("account", acct.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// sweepAccount refreshes, evaluates and settles one account under its
// distributed lock.
func (m *Maintenance) sweepAccount(ctx context.Context, accountID string) error {
	unlock, err := m.locks.Acquire(ctx, "maintenance:"+accountID, m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return fmt.Errorf("engine: acquire lock: %w", err)
	}
	defer unlock()

	if err := m.refreshPrices(ctx, accountID); err != nil {
		return err
	}
	if err := m.evaluateTriggers(ctx, accountID); err != nil {
		return err
	}
	if err := m.orderSvc.FillPendingOrders(ctx, accountID); err != nil {
		m.logger.WarnContext(ctx, "fill pending orders failed",
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)
	}
	return m.enforceStopOut(ctx, accountID)
}

// refreshPrices pushes the latest cached prices into the account's open
// positions, advancing high-water marks.
func (m *Maintenance) refreshPrices(ctx context.Context, accountID string) error {
	open, err := m.positions.GetOpen(ctx, accountID)
	if err != nil {
		return fmt.Errorf("engine: get open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(open))
	seen := make(map[string]bool, len(open))
	for _, p := range open {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}

	prices, err := m.prices.GetPrices(ctx, symbols)
	if err != nil {
		return fmt.Errorf("engine: get prices: %w", err)
	}

	for _, p := range open {
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		if _, err := m.posSvc.ApplyTick(ctx, p, price); err != nil {
			m.logger.WarnContext(ctx, "apply tick failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// evaluateTriggers closes every open position whose highest-priority trigger
// has fired.
func (m *Maintenance) evaluateTriggers(ctx context.Context, accountID string) error {
	open, err := m.positions.GetOpen(ctx, accountID)
	if err != nil {
		return fmt.Errorf("engine: get open positions: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range open {
		reason := risk.PrimaryClosureTrigger(p, p.HighWaterMark, now, m.cfg.MaxHold, false)
		if reason == domain.ClosureReasonNone {
			continue
		}

		if _, err := m.posSvc.ClosePosition(ctx, p.ID, reason); err != nil {
			if errors.Is(err, risk.ErrAlreadyClosed) {
				continue
			}
			m.logger.WarnContext(ctx, "trigger close failed",
				slog.String("position_id", p.ID),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.logger.InfoContext(ctx, "trigger closed position",
			slog.String("position_id", p.ID),
			slog.String("account", accountID),
			slog.String("reason", string(reason)),
		)
	}
	return nil
}

// enforceStopOut force-closes positions, worst unrealized loss first, until
// the account's margin level recovers above the stop-out threshold.
func (m *Maintenance) enforceStopOut(ctx context.Context, accountID string) error {
	report, err := m.riskSvc.CheckAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("engine: check account: %w", err)
	}
	if report.MarginHealth != risk.MarginCritical {
		return nil
	}

	open, err := m.positions.GetOpen(ctx, accountID)
	if err != nil {
		return fmt.Errorf("engine: get open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	// Worst loser first.
	sort.Slice(open, func(i, j int) bool {
		return unrealized(open[i]) < unrealized(open[j])
	})

	for _, p := range open {
		if _, err := m.posSvc.ClosePosition(ctx, p.ID, domain.ClosureReasonForced); err != nil {
			if errors.Is(err, risk.ErrAlreadyClosed) {
				continue
			}
			m.logger.ErrorContext(ctx, "forced close failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.logger.WarnContext(ctx, "stop out forced closure",
			slog.String("position_id", p.ID),
			slog.String("account", accountID),
		)

		report, err = m.riskSvc.CheckAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("engine: recheck account: %w", err)
		}
		if report.MarginHealth != risk.MarginCritical {
			break
		}
	}
	return nil
}

func unrealized(p domain.Position) float64 {
	pnl, err := risk.UnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice)
	if err != nil {
		return 0
	}
	return pnl
}
