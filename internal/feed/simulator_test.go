package feed

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfx/papertrader/internal/domain"
)

type fakeCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (c *fakeCache) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = make(map[string]float64)
	}
	c.prices[symbol] = price
	return nil
}

func (c *fakeCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (c *fakeCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

type fakeBus struct {
	mu       sync.Mutex
	messages [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error       { return nil }
func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSimulatorStepIsDeterministicForSeed(t *testing.T) {
	cfg := Config{
		Symbols:      []string{"EUR/USD", "XAU/USD"},
		TickInterval: time.Millisecond,
		Volatility:   0.001,
		Seed:         42,
	}

	a := NewSimulator(cfg, &fakeCache{}, &fakeBus{}, testLogger())
	b := NewSimulator(cfg, &fakeCache{}, &fakeBus{}, testLogger())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		a.step(ctx)
		b.step(ctx)
	}

	assert.Equal(t, a.Price("EUR/USD"), b.Price("EUR/USD"))
	assert.Equal(t, a.Price("XAU/USD"), b.Price("XAU/USD"))
}

func TestSimulatorPricesStayPositive(t *testing.T) {
	cfg := Config{
		Symbols:      []string{"EUR/USD"},
		TickInterval: time.Millisecond,
		Drift:        -0.01,
		Volatility:   0.05,
		Seed:         7,
	}
	sim := NewSimulator(cfg, &fakeCache{}, &fakeBus{}, testLogger())

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		sim.step(ctx)
		require.Greater(t, sim.Price("EUR/USD"), 0.0)
	}
}

func TestSimulatorWritesCacheAndPublishes(t *testing.T) {
	cache := &fakeCache{}
	bus := &fakeBus{}
	cfg := Config{
		Symbols:      []string{"EUR/USD", "BTC/USD"},
		TickInterval: time.Millisecond,
		Volatility:   0.001,
		Seed:         1,
	}
	sim := NewSimulator(cfg, cache, bus, testLogger())

	sim.step(context.Background())

	prices, err := cache.GetPrices(context.Background(), cfg.Symbols)
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Len(t, bus.messages, 2)
}
