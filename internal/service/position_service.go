package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
)

// PositionService owns the open-position lifecycle: price updates,
// protective level changes, and full or partial closure with account
// settlement.
type PositionService struct {
	positions domain.PositionStore
	accounts  domain.AccountStore
	specs     domain.AssetSpecStore
	ledger    domain.LedgerStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	volFactor float64
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	positions domain.PositionStore,
	accounts domain.AccountStore,
	specs domain.AssetSpecStore,
	ledger domain.LedgerStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	volatilityFactor float64,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		accounts:  accounts,
		specs:     specs,
		ledger:    ledger,
		bus:       bus,
		audit:     audit,
		volFactor: volatilityFactor,
		logger:    logger,
	}
}

// GetPosition retrieves a single position by its ID.
func (s *PositionService) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	p, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %q: %w", id, err)
	}
	return p, nil
}

// ListOpen returns the open positions for an account.
func (s *PositionService) ListOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	positions, err := s.positions.GetOpen(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open for %q: %w", accountID, err)
	}
	return positions, nil
}

// ListHistory returns the position history for an account.
func (s *PositionService) ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListHistory(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list history for %q: %w", accountID, err)
	}
	return positions, nil
}

// ListAllOpen returns every open position across all accounts, newest
// exposure last. Backs the platform-wide exposure view.
func (s *PositionService) ListAllOpen(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.positions.GetAllOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list all open: %w", err)
	}
	return positions, nil
}

// PositionDetail is a position enriched with derived risk figures.
// LiquidationPrice is only populated for open positions.
type PositionDetail struct {
	domain.Position
	PnL              risk.PnLBreakdown `json:"pnl"`
	PnLPercent       float64           `json:"pnl_percent"`
	LiquidationPrice float64           `json:"liquidation_price,omitempty"`
}

// Detail returns a position together with its P&L breakdown, percentage
// move, and estimated liquidation price.
func (s *PositionService) Detail(ctx context.Context, id string) (PositionDetail, error) {
	p, err := s.GetPosition(ctx, id)
	if err != nil {
		return PositionDetail{}, err
	}

	d := PositionDetail{Position: p}
	if breakdown, err := risk.PositionPnL(p); err == nil {
		d.PnL = breakdown
	}
	if pct, err := risk.PnLPercent(p.EntryPrice, p.CurrentPrice, p.Side); err == nil {
		d.PnLPercent = pct
	}
	if p.IsOpen() {
		spec, err := s.specs.Get(ctx, p.Symbol)
		if err != nil {
			return PositionDetail{}, fmt.Errorf("position_service: detail %q: %w", id, err)
		}
		if lp, err := risk.LiquidationPrice(p.EntryPrice, p.Side, p.Leverage, spec.MaintenanceMarginRatio); err == nil {
			d.LiquidationPrice = lp
		}
	}
	return d, nil
}

// ApplyTick updates a position's current price and advances its high-water
// mark, persisting the result. The returned position carries the new mark.
func (s *PositionService) ApplyTick(ctx context.Context, p domain.Position, price float64) (domain.Position, error) {
	if !p.IsOpen() {
		return p, nil
	}
	p.CurrentPrice = price
	p.HighWaterMark = risk.UpdateHighWaterMark(p, p.HighWaterMark, price)
	if err := s.positions.Update(ctx, p); err != nil {
		return p, fmt.Errorf("position_service: apply tick %q: %w", p.ID, err)
	}
	return p, nil
}

// SetProtection updates the stop-loss, take-profit and trailing-distance
// levels on an open position. A nil pointer clears the corresponding level.
func (s *PositionService) SetProtection(ctx context.Context, id string, stopLoss, takeProfit, trailingDistance *float64) (domain.Position, error) {
	p, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: set protection %q: %w", id, err)
	}
	if !p.IsOpen() {
		return domain.Position{}, fmt.Errorf("position_service: set protection %q (status %s): %w", id, p.Status, risk.ErrAlreadyClosed)
	}

	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	p.TrailingDistance = trailingDistance
	if err := s.positions.Update(ctx, p); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: set protection %q: %w", id, err)
	}

	s.auditLog(ctx, "protection_updated", map[string]any{
		"position_id": id,
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
		"trailing":    trailingDistance,
	})
	return p, nil
}

// ClosePosition fully closes a position for the given reason, settles the
// realized P&L and commission against the account, writes ledger entries,
// and broadcasts the closure.
func (s *PositionService) ClosePosition(ctx context.Context, id string, reason domain.ClosureReason) (domain.ClosureResult, error) {
	// Claim the closure atomically: the store only transitions open -> closing
	// once, so a concurrent manual close and sweep cannot both settle.
	p, err := s.positions.MarkClosing(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.ClosureResult{}, fmt.Errorf("position_service: close %q: %w", id, risk.ErrAlreadyClosed)
		}
		return domain.ClosureResult{}, fmt.Errorf("position_service: close %q: %w", id, err)
	}

	params, err := s.closureParams(ctx, p.Symbol)
	if err != nil {
		_ = s.positions.Update(ctx, p)
		return domain.ClosureResult{}, err
	}

	result, closed, err := risk.ExecuteClosure(p, reason, time.Now().UTC(), params)
	if err != nil {
		// Roll the claim back so the position is not stuck in closing.
		_ = s.positions.Update(ctx, p)
		return domain.ClosureResult{}, fmt.Errorf("position_service: close %q: %w", id, err)
	}

	if err := s.positions.Update(ctx, closed); err != nil {
		return domain.ClosureResult{}, fmt.Errorf("position_service: persist closed %q: %w", id, err)
	}
	if err := s.settle(ctx, closed.AccountID, result); err != nil {
		return domain.ClosureResult{}, err
	}

	s.publishClosure(ctx, closed, result)
	s.auditLog(ctx, "position_closed", map[string]any{
		"position_id": id,
		"account":     closed.AccountID,
		"reason":      string(result.Reason),
		"pnl":         result.RealizedPnL,
		"commission":  result.Commission,
		"exec_price":  result.ExecutionPrice,
	})

	s.logger.InfoContext(ctx, "position_service: position closed",
		slog.String("position_id", id),
		slog.String("reason", string(result.Reason)),
		slog.Float64("pnl", result.RealizedPnL),
	)
	return result, nil
}

// PartialClose closes part of a position, settling the closed lot while the
// remainder stays open with pro-rata margin.
func (s *PositionService) PartialClose(ctx context.Context, id string, quantity float64) (domain.ClosureResult, error) {
	// Same claim as ClosePosition; persisting the remainder releases it.
	p, err := s.positions.MarkClosing(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.ClosureResult{}, fmt.Errorf("position_service: partial close %q: %w", id, risk.ErrAlreadyClosed)
		}
		return domain.ClosureResult{}, fmt.Errorf("position_service: partial close %q: %w", id, err)
	}

	params, err := s.closureParams(ctx, p.Symbol)
	if err != nil {
		_ = s.positions.Update(ctx, p)
		return domain.ClosureResult{}, err
	}

	result, remaining, err := risk.ExecutePartialClosure(p, quantity, time.Now().UTC(), params)
	if err != nil {
		_ = s.positions.Update(ctx, p)
		return domain.ClosureResult{}, fmt.Errorf("position_service: partial close %q: %w", id, err)
	}

	if err := s.positions.Update(ctx, remaining); err != nil {
		return domain.ClosureResult{}, fmt.Errorf("position_service: persist partial close %q: %w", id, err)
	}
	if err := s.settle(ctx, remaining.AccountID, result); err != nil {
		return domain.ClosureResult{}, err
	}

	s.publishClosure(ctx, remaining, result)
	s.auditLog(ctx, "position_partial_close", map[string]any{
		"position_id": id,
		"account":     remaining.AccountID,
		"quantity":    quantity,
		"pnl":         result.RealizedPnL,
		"remaining":   remaining.Quantity,
	})
	return result, nil
}

// settle applies a closure's cash effects to the account: realized P&L in,
// commission out, margin released. Each cash movement gets a ledger entry so
// the equity curve stays reconstructible.
func (s *PositionService) settle(ctx context.Context, accountID string, result domain.ClosureResult) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("position_service: settle account %q: %w", accountID, err)
	}

	balance := acct.Balance + result.RealizedPnL
	if err := s.ledger.Append(ctx, domain.LedgerEntry{
		AccountID:    accountID,
		Kind:         "realized_pnl",
		Amount:       result.RealizedPnL,
		BalanceAfter: balance,
		Reference:    result.PositionID,
		CreatedAt:    result.ClosedAt,
	}); err != nil {
		return fmt.Errorf("position_service: ledger pnl: %w", err)
	}

	if result.Commission > 0 {
		balance -= result.Commission
		if err := s.ledger.Append(ctx, domain.LedgerEntry{
			AccountID:    accountID,
			Kind:         "commission",
			Amount:       -result.Commission,
			BalanceAfter: balance,
			Reference:    result.PositionID,
			CreatedAt:    result.ClosedAt,
		}); err != nil {
			return fmt.Errorf("position_service: ledger commission: %w", err)
		}
	}

	marginUsed := acct.MarginUsed - result.MarginRecovered
	if marginUsed < 0 {
		marginUsed = 0
	}
	if err := s.accounts.UpdateBalance(ctx, accountID, balance, marginUsed); err != nil {
		return fmt.Errorf("position_service: settle balance: %w", err)
	}
	return nil
}

// closureParams builds ClosureParams from the symbol's spec and the service's
// volatility factor.
func (s *PositionService) closureParams(ctx context.Context, symbol string) (risk.ClosureParams, error) {
	spec, err := s.specs.Get(ctx, symbol)
	if err != nil {
		return risk.ClosureParams{}, fmt.Errorf("position_service: get asset spec %q: %w", symbol, err)
	}
	return risk.ClosureParams{
		VolatilityFactor: s.volFactor,
		CommissionRate:   spec.CommissionRate,
	}, nil
}

func (s *PositionService) publishClosure(ctx context.Context, p domain.Position, result domain.ClosureResult) {
	evt, _ := json.Marshal(map[string]any{
		"event":       "position_closed",
		"position_id": result.PositionID,
		"account":     p.AccountID,
		"symbol":      p.Symbol,
		"reason":      string(result.Reason),
		"pnl":         result.RealizedPnL,
		"exec_price":  result.ExecutionPrice,
	})
	if err := s.bus.Publish(ctx, "positions", evt); err != nil {
		s.logger.WarnContext(ctx, "position_service: publish closure failed",
			slog.String("position_id", result.PositionID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream("positions"), evt); err != nil {
		s.logger.WarnContext(ctx, "position_service: stream append failed",
			slog.String("position_id", result.PositionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
