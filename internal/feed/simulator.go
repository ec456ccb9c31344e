// Package feed generates the simulated price stream that drives the
// platform. Prices follow a seeded geometric random walk so runs are
// reproducible in tests and demos.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// PriceChannel is the pub/sub channel ticks are published on.
const PriceChannel = "prices"

// Tick is the JSON shape published to the price channel for every simulated
// quote.
type Tick struct {
	Event     string    `json:"event"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// startingPrices anchors each known symbol at a plausible level. Unknown
// symbols start at 100.
var startingPrices = map[string]float64{
	"EUR/USD": 1.0850,
	"GBP/USD": 1.2700,
	"USD/JPY": 148.50,
	"XAU/USD": 2350.00,
	"XAG/USD": 28.50,
	"US500":   5300.0,
	"BTC/USD": 64000.0,
	"ETH/USD": 3100.0,
}

// Config holds the random-walk parameters.
type Config struct {
	Symbols      []string
	TickInterval time.Duration
	Drift        float64
	Volatility   float64
	Seed         int64
}

// Simulator produces one tick per symbol per interval, writes the latest
// price to the cache, and broadcasts each tick on the signal bus.
type Simulator struct {
	cfg    Config
	cache  domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger

	rng    *rand.Rand
	prices map[string]float64
}

// NewSimulator creates a Simulator. A zero seed falls back to the clock so
// production runs do not repeat.
func NewSimulator(cfg Config, cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	prices := make(map[string]float64, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		p, ok := startingPrices[sym]
		if !ok {
			p = 100
		}
		prices[sym] = p
	}

	return &Simulator{
		cfg:    cfg,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "feed")),
		rng:    rand.New(rand.NewSource(seed)),
		prices: prices,
	}
}

// Run generates ticks until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("price feed started",
		slog.Int("symbols", len(s.cfg.Symbols)),
		slog.Duration("interval", s.cfg.TickInterval),
	)
	defer s.logger.Info("price feed stopped")

	// Publish an initial tick for every symbol so consumers never see an
	// empty cache.
	s.step(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

// Price returns the simulator's current price for a symbol, or zero if the
// symbol is not tracked.
func (s *Simulator) Price(symbol string) float64 {
	return s.prices[symbol]
}

func (s *Simulator) step(ctx context.Context) {
	now := time.Now().UTC()

	for _, sym := range s.cfg.Symbols {
		price := s.next(sym)

		if err := s.cache.SetPrice(ctx, sym, price, now); err != nil {
			s.logger.WarnContext(ctx, "set price failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}

		payload, err := json.Marshal(Tick{
			Event:     "tick",
			Symbol:    sym,
			Price:     price,
			Timestamp: now,
		})
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, PriceChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish tick failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
}

// next advances one geometric random-walk step and keeps the price strictly
// positive.
func (s *Simulator) next(symbol string) float64 {
	price := s.prices[symbol]
	step := s.cfg.Drift + s.cfg.Volatility*s.rng.NormFloat64()
	price *= 1 + step
	if price <= 0 {
		price = s.prices[symbol]
	}
	s.prices[symbol] = price
	return price
}
