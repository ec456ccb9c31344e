package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
)

// Notifier delivers operator alerts. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RiskServiceConfig holds the account risk monitoring parameters.
type RiskServiceConfig struct {
	Bands          risk.MarginBands
	VaRConfidence  float64
	DrawdownWindow time.Duration
	StressShocks   map[string]float64
}

// AccountRiskReport is the full risk picture for one account at one instant.
// MarginLevel is +Inf when no margin is in use; the JSONFloat type keeps
// that sentinel from breaking json encoding of the report.
type AccountRiskReport struct {
	AccountID      string                 `json:"account_id"`
	Balance        float64                `json:"balance"`
	Equity         float64                `json:"equity"`
	MarginUsed     float64                `json:"margin_used"`
	FreeMargin     float64                `json:"free_margin"`
	MarginLevel    domain.JSONFloat       `json:"margin_level"`
	MarginHealth   risk.MarginHealth      `json:"margin_health"`
	UnrealizedPnL  float64                `json:"unrealized_pnl"`
	OpenPositions  int                    `json:"open_positions"`
	Concentration  map[string]float64     `json:"concentration"`
	HHI            float64                `json:"hhi"`
	ConcRisk       risk.ConcentrationRisk `json:"concentration_risk"`
	ValueAtRisk    float64                `json:"value_at_risk"`
	MaxDrawdownPct float64                `json:"max_drawdown_pct"`
	Status         risk.RiskStatus        `json:"status"`
	Timestamp      time.Time              `json:"timestamp"`
}

// RiskService classifies account portfolio risk and records margin-health
// transitions as risk events.
type RiskService struct {
	positions  domain.PositionStore
	accounts   domain.AccountStore
	specs      domain.AssetSpecStore
	ledger     domain.LedgerStore
	riskEvents domain.RiskEventStore
	bus        domain.SignalBus
	notifier   Notifier
	cfg        RiskServiceConfig
	logger     *slog.Logger
}

// NewRiskService creates a RiskService with all required dependencies. The
// notifier may be nil when no alert channels are configured.
func NewRiskService(
	positions domain.PositionStore,
	accounts domain.AccountStore,
	specs domain.AssetSpecStore,
	ledger domain.LedgerStore,
	riskEvents domain.RiskEventStore,
	bus domain.SignalBus,
	notifier Notifier,
	cfg RiskServiceConfig,
	logger *slog.Logger,
) *RiskService {
	return &RiskService{
		positions:  positions,
		accounts:   accounts,
		specs:      specs,
		ledger:     ledger,
		riskEvents: riskEvents,
		bus:        bus,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Snapshot assembles the account's portfolio snapshot from current stores.
func (s *RiskService) Snapshot(ctx context.Context, accountID string) (domain.PortfolioSnapshot, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("risk_service: get account %q: %w", accountID, err)
	}
	open, err := s.positions.GetOpen(ctx, accountID)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("risk_service: get open positions: %w", err)
	}

	var unrealized, marginUsed float64
	for _, p := range open {
		pnl, err := risk.UnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice)
		if err != nil {
			continue
		}
		unrealized += pnl
		marginUsed += p.MarginUsed
	}

	return domain.PortfolioSnapshot{
		AccountID:  accountID,
		Positions:  open,
		Balance:    acct.Balance,
		Equity:     acct.Balance + unrealized,
		MarginUsed: marginUsed,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// AccountRisk computes the full risk report for an account.
func (s *RiskService) AccountRisk(ctx context.Context, accountID string) (AccountRiskReport, error) {
	snap, err := s.Snapshot(ctx, accountID)
	if err != nil {
		return AccountRiskReport{}, err
	}

	specs, err := s.specMap(ctx)
	if err != nil {
		return AccountRiskReport{}, err
	}

	level := risk.MarginLevel(snap.Equity, snap.MarginUsed)
	health := risk.ClassifyMarginLevel(level, s.cfg.Bands)

	conc := risk.Concentration(snap.Positions)
	hhi := risk.HerfindahlIndex(conc)
	concRisk := risk.ClassifyConcentrationRisk(hhi)

	var drawdownPct float64
	curve, err := s.ledger.EquityCurve(ctx, accountID, snap.Timestamp.Add(-s.cfg.DrawdownWindow))
	if err != nil {
		s.logger.WarnContext(ctx, "risk_service: equity curve failed",
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)
	} else {
		drawdownPct = risk.AnalyzeDrawdown(curve).MaxDrawdownPct
	}

	return AccountRiskReport{
		AccountID:      accountID,
		Balance:        snap.Balance,
		Equity:         snap.Equity,
		MarginUsed:     snap.MarginUsed,
		FreeMargin:     risk.FreeMargin(snap.Equity, snap.MarginUsed),
		MarginLevel:    domain.JSONFloat(level),
		MarginHealth:   health,
		UnrealizedPnL:  snap.Equity - snap.Balance,
		OpenPositions:  len(snap.Positions),
		Concentration:  conc,
		HHI:            hhi,
		ConcRisk:       concRisk,
		ValueAtRisk:    risk.EstimateVaR(snap.Positions, specs, s.cfg.VaRConfidence),
		MaxDrawdownPct: drawdownPct,
		Status:         risk.ClassifyRiskStatus(health, drawdownPct, concRisk),
		Timestamp:      snap.Timestamp,
	}, nil
}

// CheckAccount evaluates margin health, records transition events
// (margin_call, stop_out, recovered), and returns the report. A stop-out
// report tells the caller to force-liquidate.
func (s *RiskService) CheckAccount(ctx context.Context, accountID string) (AccountRiskReport, error) {
	report, err := s.AccountRisk(ctx, accountID)
	if err != nil {
		return AccountRiskReport{}, err
	}

	prev := domain.RiskEventKind("")
	if last, err := s.riskEvents.LastByAccount(ctx, accountID); err == nil {
		prev = last.Kind
	} else if !errors.Is(err, domain.ErrNotFound) {
		return AccountRiskReport{}, fmt.Errorf("risk_service: last risk event: %w", err)
	}

	var kind domain.RiskEventKind
	switch report.MarginHealth {
	case risk.MarginCritical:
		if prev != domain.RiskEventStopOut {
			kind = domain.RiskEventStopOut
		}
	case risk.MarginWarning:
		if prev != domain.RiskEventMarginCall && prev != domain.RiskEventStopOut {
			kind = domain.RiskEventMarginCall
		}
	default:
		if prev == domain.RiskEventMarginCall || prev == domain.RiskEventStopOut {
			kind = domain.RiskEventRecovered
		}
	}

	if kind != "" {
		if err := s.recordEvent(ctx, accountID, kind, report); err != nil {
			return AccountRiskReport{}, err
		}
	}
	return report, nil
}

// StressTest projects account equity under the configured shock scenarios.
func (s *RiskService) StressTest(ctx context.Context, accountID string) (map[string]float64, error) {
	snap, err := s.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	scenarios := make([]risk.StressScenario, 0, len(s.cfg.StressShocks))
	for name, shock := range s.cfg.StressShocks {
		scenarios = append(scenarios, risk.StressScenario{Name: name, ShockPct: shock})
	}
	return risk.RunStressTests(snap, scenarios), nil
}

// ListEvents returns the account's risk event history.
func (s *RiskService) ListEvents(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.RiskEvent, error) {
	events, err := s.riskEvents.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("risk_service: list events for %q: %w", accountID, err)
	}
	return events, nil
}

func (s *RiskService) recordEvent(ctx context.Context, accountID string, kind domain.RiskEventKind, report AccountRiskReport) error {
	evt := domain.RiskEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      kind,
		Detail: map[string]any{
			"margin_level": report.MarginLevel,
			"equity":       report.Equity,
			"margin_used":  report.MarginUsed,
			"status":       string(report.Status),
		},
		CreatedAt: report.Timestamp,
	}
	if err := s.riskEvents.Insert(ctx, evt); err != nil {
		return fmt.Errorf("risk_service: insert risk event: %w", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"event":        string(kind),
		"account":      accountID,
		"margin_level": report.MarginLevel,
	})
	if err := s.bus.Publish(ctx, "risk", payload); err != nil {
		s.logger.WarnContext(ctx, "risk_service: publish risk event failed",
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream("risk"), payload); err != nil {
		s.logger.WarnContext(ctx, "risk_service: stream append failed",
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Risk event: %s", kind)
		msg := fmt.Sprintf("account %s margin level %.1f%% equity %.2f", accountID, report.MarginLevel, report.Equity)
		if err := s.notifier.Notify(ctx, string(kind), title, msg); err != nil {
			s.logger.WarnContext(ctx, "risk_service: notify failed",
				slog.String("account", accountID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "risk_service: risk event recorded",
		slog.String("account", accountID),
		slog.String("kind", string(kind)),
		slog.Float64("margin_level", float64(report.MarginLevel)),
	)
	return nil
}

func (s *RiskService) specMap(ctx context.Context) (map[string]domain.AssetSpec, error) {
	specs, err := s.specs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk_service: list asset specs: %w", err)
	}
	out := make(map[string]domain.AssetSpec, len(specs))
	for _, spec := range specs {
		out[spec.Symbol] = spec
	}
	return out, nil
}
