// Package service contains the application services that tie the risk
// engines to storage, caching and broadcast.
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

// OrderConfig holds the tunable parameters for order intake.
type OrderConfig struct {
	DefaultLeverage  int
	MaxOpenPositions int
	RatePerSecond    int
}

// OrderRequest is the caller-facing shape for submitting a new order.
type OrderRequest struct {
	AccountID        string           `json:"account_id"`
	Symbol           string           `json:"symbol"`
	Side             domain.Side      `json:"side"`
	Type             domain.OrderType `json:"type"`
	Quantity         float64          `json:"quantity"`
	Leverage         int              `json:"leverage"`
	LimitPrice       *float64         `json:"limit_price,omitempty"`
	StopLoss         *float64         `json:"stop_loss,omitempty"`
	TakeProfit       *float64         `json:"take_profit,omitempty"`
	TrailingDistance *float64         `json:"trailing_distance,omitempty"`
}

// OrderService handles the order lifecycle from request to open position.
// Market orders fill immediately at the cached price; limit orders rest until
// the maintenance sweep finds them marketable.
type OrderService struct {
	orders    domain.OrderStore
	positions domain.PositionStore
	accounts  domain.AccountStore
	specs     domain.AssetSpecStore
	prices    domain.PriceCache
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	audit     domain.AuditStore
	cfg       OrderConfig
	logger    *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	orders domain.OrderStore,
	positions domain.PositionStore,
	accounts domain.AccountStore,
	specs domain.AssetSpecStore,
	prices domain.PriceCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg OrderConfig,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		positions: positions,
		accounts:  accounts,
		specs:     specs,
		prices:    prices,
		limiter:   limiter,
		bus:       bus,
		audit:     audit,
		cfg:       cfg,
		logger:    logger,
	}
}

// PlaceOrder validates the request against the symbol's spec and the
// account's free margin, then fills market orders at the cached price or
// persists limit orders as pending.
func (s *OrderService) PlaceOrder(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	allowed, err := s.limiter.Allow(ctx, "orders:"+req.AccountID, s.cfg.RatePerSecond, time.Second)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.OrderResult{
			Success: false,
			Message: "rate limited",
		}, domain.ErrRateLimited
	}

	spec, err := s.specs.Get(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return rejected("unknown symbol"), fmt.Errorf("order_service: symbol %q: %w", req.Symbol, domain.ErrInvalidOrder)
		}
		return domain.OrderResult{}, fmt.Errorf("order_service: get asset spec: %w", err)
	}

	if req.Leverage == 0 {
		req.Leverage = s.cfg.DefaultLeverage
	}
	if msg := validateRequest(req, spec); msg != "" {
		return rejected(msg), fmt.Errorf("order_service: %s: %w", msg, domain.ErrInvalidOrder)
	}

	open, err := s.positions.GetOpen(ctx, req.AccountID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: get open positions: %w", err)
	}
	if len(open) >= s.cfg.MaxOpenPositions {
		msg := fmt.Sprintf("max open positions reached (%d)", s.cfg.MaxOpenPositions)
		return rejected(msg), fmt.Errorf("order_service: %s: %w", msg, domain.ErrInvalidOrder)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:               uuid.New().String(),
		AccountID:        req.AccountID,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Type:             req.Type,
		Quantity:         req.Quantity,
		Leverage:         req.Leverage,
		LimitPrice:       req.LimitPrice,
		StopLoss:         req.StopLoss,
		TakeProfit:       req.TakeProfit,
		TrailingDistance: req.TrailingDistance,
		Status:           domain.OrderStatusPending,
		CreatedAt:        now,
	}

	price, _, err := s.prices.GetPrice(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: get price %q: %w", req.Symbol, err)
	}

	// A limit order that is not immediately marketable rests as pending.
	if order.Type == domain.OrderTypeLimit && !marketable(order, price) {
		if err := s.orders.Create(ctx, order); err != nil {
			return domain.OrderResult{}, fmt.Errorf("order_service: create order: %w", err)
		}
		s.publishOrderEvent(ctx, "order_placed", order)
		s.auditLog(ctx, "order_placed", order, 0)

		return domain.OrderResult{
			Success: true,
			OrderID: order.ID,
			Status:  domain.OrderStatusPending,
			Message: "limit order resting",
		}, nil
	}

	fillPrice := price
	if order.Type == domain.OrderTypeLimit {
		fillPrice = *order.LimitPrice
	}

	result, err := s.fill(ctx, &order, fillPrice, now, true)
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "order_service: order filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("fill_price", fillPrice),
	)
	return result, nil
}

// fill opens a position for the order at fillPrice, charging margin against
// the account's free margin. isNew selects insert vs update for the order
// row: placing fills a fresh order, the pending sweep fills a resting one.
func (s *OrderService) fill(ctx context.Context, order *domain.Order, fillPrice float64, now time.Time, isNew bool) (domain.OrderResult, error) {
	persistOrder := s.orders.Update
	if isNew {
		persistOrder = s.orders.Create
	}
	margin, err := risk.MarginRequired(order.Quantity, fillPrice, order.Leverage)
	if err != nil {
		return rejected("invalid order parameters"), fmt.Errorf("order_service: margin required: %w", err)
	}

	acct, err := s.accounts.GetByID(ctx, order.AccountID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: get account %q: %w", order.AccountID, err)
	}

	free := risk.FreeMargin(acct.Balance, acct.MarginUsed)
	if margin > free {
		order.Status = domain.OrderStatusRejected
		if err := persistOrder(ctx, *order); err != nil {
			s.logger.WarnContext(ctx, "order_service: persist rejected order failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
		return domain.OrderResult{
			Success: false,
			OrderID: order.ID,
			Status:  domain.OrderStatusRejected,
			Message: fmt.Sprintf("insufficient margin: need %.2f, free %.2f", margin, free),
		}, domain.ErrInsufficientMargin
	}

	position := domain.Position{
		ID:               uuid.New().String(),
		AccountID:        order.AccountID,
		Symbol:           order.Symbol,
		Side:             order.Side,
		Quantity:         order.Quantity,
		EntryPrice:       fillPrice,
		CurrentPrice:     fillPrice,
		Leverage:         order.Leverage,
		MarginUsed:       margin,
		StopLoss:         order.StopLoss,
		TakeProfit:       order.TakeProfit,
		TrailingDistance: order.TrailingDistance,
		HighWaterMark:    fillPrice,
		Status:           domain.PositionStatusOpen,
		OpenedAt:         now,
	}

	order.Status = domain.OrderStatusFilled
	order.FillPrice = &fillPrice
	order.PositionID = &position.ID
	order.FilledAt = &now

	if err := s.positions.Create(ctx, position); err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: create position: %w", err)
	}
	if err := persistOrder(ctx, *order); err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: persist order: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, acct.ID, acct.Balance, acct.MarginUsed+margin); err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: reserve margin: %w", err)
	}

	s.publishOrderEvent(ctx, "order_filled", *order)
	s.auditLog(ctx, "order_filled", *order, margin)

	return domain.OrderResult{
		Success:    true,
		OrderID:    order.ID,
		PositionID: position.ID,
		Status:     domain.OrderStatusFilled,
		FillPrice:  fillPrice,
		MarginUsed: margin,
		Message:    "order filled",
	}, nil
}

// CancelOrder cancels a resting order. Filled orders cannot be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("order_service: cancel order %q (status %s): %w", orderID, order.Status, domain.ErrInvalidOrder)
	}

	now := time.Now().UTC()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
	}

	s.publishOrderEvent(ctx, "order_cancelled", order)
	s.auditLog(ctx, "order_cancelled", order, 0)
	return nil
}

// FillPendingOrders sweeps an account's resting limit orders and fills any
// that have become marketable at current cached prices. Called from the
// maintenance loop.
func (s *OrderService) FillPendingOrders(ctx context.Context, accountID string) error {
	pending, err := s.orders.ListPending(ctx, accountID)
	if err != nil {
		return fmt.Errorf("order_service: list pending: %w", err)
	}

	for _, order := range pending {
		price, _, err := s.prices.GetPrice(ctx, order.Symbol)
		if err != nil {
			continue
		}
		if !marketable(order, price) {
			continue
		}

		order := order
		now := time.Now().UTC()
		if _, err := s.fill(ctx, &order, *order.LimitPrice, now, false); err != nil {
			if !errors.Is(err, domain.ErrInsufficientMargin) {
				s.logger.WarnContext(ctx, "order_service: pending fill failed",
					slog.String("order_id", order.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
	}
	return nil
}

// GetOrder retrieves a single order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %q: %w", id, err)
	}
	return order, nil
}

// ListByAccount returns orders for an account with pagination.
func (s *OrderService) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list for %q: %w", accountID, err)
	}
	return orders, nil
}

func (s *OrderService) publishOrderEvent(ctx context.Context, event string, order domain.Order) {
	evt, _ := json.Marshal(map[string]string{
		"event":    event,
		"order_id": order.ID,
		"account":  order.AccountID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"status":   string(order.Status),
	})
	if err := s.bus.Publish(ctx, "orders", evt); err != nil {
		s.logger.WarnContext(ctx, "order_service: publish event failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream("orders"), evt); err != nil {
		s.logger.WarnContext(ctx, "order_service: stream append failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) auditLog(ctx context.Context, event string, order domain.Order, margin float64) {
	detail := map[string]any{
		"order_id": order.ID,
		"account":  order.AccountID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"quantity": order.Quantity,
		"leverage": order.Leverage,
	}
	if margin > 0 {
		detail["margin"] = margin
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

// validateRequest returns a rejection message, or empty when the request is
// well formed for the spec.
func validateRequest(req OrderRequest, spec domain.AssetSpec) string {
	if !req.Side.Valid() {
		return fmt.Sprintf("invalid side %q", req.Side)
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return fmt.Sprintf("invalid order type %q", req.Type)
	}
	if req.Type == domain.OrderTypeLimit && (req.LimitPrice == nil || *req.LimitPrice <= 0) {
		return "limit order requires a positive limit price"
	}
	if req.Quantity <= 0 {
		return "quantity must be positive"
	}
	if req.Quantity < spec.MinQuantity {
		return fmt.Sprintf("quantity %v below minimum %v", req.Quantity, spec.MinQuantity)
	}
	if spec.MaxQuantity > 0 && req.Quantity > spec.MaxQuantity {
		return fmt.Sprintf("quantity %v above maximum %v", req.Quantity, spec.MaxQuantity)
	}
	if req.Leverage < 1 {
		return "leverage must be at least 1"
	}
	if req.Leverage > spec.MaxLeverage {
		return fmt.Sprintf("leverage %d exceeds maximum %d", req.Leverage, spec.MaxLeverage)
	}
	return ""
}

// marketable reports whether a limit order can execute at the given market
// price: buys at or below the limit, sells at or above it.
func marketable(order domain.Order, price float64) bool {
	if order.Type != domain.OrderTypeLimit || order.LimitPrice == nil {
		return order.Type == domain.OrderTypeMarket
	}
	if order.Side == domain.SideBuy {
		return price <= *order.LimitPrice
	}
	return price >= *order.LimitPrice
}

func rejected(msg string) domain.OrderResult {
	return domain.OrderResult{
		Success: false,
		Status:  domain.OrderStatusRejected,
		Message: msg,
	}
}
