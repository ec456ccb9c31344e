package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
)

// AccountService manages virtual trading accounts.
type AccountService struct {
	accounts        domain.AccountStore
	positions       domain.PositionStore
	ledger          domain.LedgerStore
	audit           domain.AuditStore
	startingBalance float64
	logger          *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	accounts domain.AccountStore,
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	audit domain.AuditStore,
	startingBalance float64,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:        accounts,
		positions:       positions,
		ledger:          ledger,
		audit:           audit,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

// CreateAccount opens a new account funded with the configured starting
// balance and records the deposit in the ledger.
func (s *AccountService) CreateAccount(ctx context.Context, id string) (domain.Account, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	acct := domain.Account{
		ID:        id,
		Currency:  "USD",
		Balance:   s.startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("account_service: create account %q: %w", id, err)
	}
	if err := s.ledger.Append(ctx, domain.LedgerEntry{
		AccountID:    id,
		Kind:         "deposit",
		Amount:       s.startingBalance,
		BalanceAfter: s.startingBalance,
		CreatedAt:    now,
	}); err != nil {
		return domain.Account{}, fmt.Errorf("account_service: ledger deposit: %w", err)
	}

	if err := s.audit.Log(ctx, "account_created", map[string]any{
		"account": id,
		"balance": s.startingBalance,
	}); err != nil {
		s.logger.WarnContext(ctx, "account_service: audit log failed",
			slog.String("account", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account_service: account created",
		slog.String("account", id),
		slog.Float64("balance", s.startingBalance),
	)
	return acct, nil
}

// GetAccount returns the account with equity derived from open positions.
func (s *AccountService) GetAccount(ctx context.Context, id string) (domain.Account, float64, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, 0, fmt.Errorf("account_service: get account %q: %w", id, err)
	}

	open, err := s.positions.GetOpen(ctx, id)
	if err != nil {
		return domain.Account{}, 0, fmt.Errorf("account_service: get open positions: %w", err)
	}

	equity := acct.Balance
	for _, p := range open {
		pnl, err := risk.UnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice)
		if err != nil {
			continue
		}
		equity += pnl
	}
	return acct, equity, nil
}

// Ledger returns the account's ledger history.
func (s *AccountService) Ledger(ctx context.Context, id string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	entries, err := s.ledger.ListByAccount(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: ledger for %q: %w", id, err)
	}
	return entries, nil
}

// PerformanceReport summarizes an account's closed-trade record.
// ProfitFactor is +Inf when every trade won; the JSONFloat type keeps that
// from breaking json encoding.
type PerformanceReport struct {
	AccountID    string           `json:"account_id"`
	Trades       int              `json:"trades"`
	TotalPnL     float64          `json:"total_pnl"`
	WinRate      float64          `json:"win_rate"`
	ProfitFactor domain.JSONFloat `json:"profit_factor"`
	Expectancy   float64          `json:"expectancy"`
}

// Performance aggregates the account's closed positions into trade
// statistics.
func (s *AccountService) Performance(ctx context.Context, id string) (PerformanceReport, error) {
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return PerformanceReport{}, fmt.Errorf("account_service: performance for %q: %w", id, err)
	}

	history, err := s.positions.ListHistory(ctx, id, domain.ListOpts{})
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("account_service: performance history for %q: %w", id, err)
	}

	var pnls []float64
	for _, p := range history {
		if p.Status != domain.PositionStatusClosed {
			continue
		}
		pnls = append(pnls, p.RealizedPnL)
	}

	return PerformanceReport{
		AccountID:    id,
		Trades:       len(pnls),
		TotalPnL:     risk.TotalPnL(pnls),
		WinRate:      risk.WinRate(pnls),
		ProfitFactor: domain.JSONFloat(risk.ProfitFactor(pnls)),
		Expectancy:   risk.Expectancy(pnls),
	}, nil
}
