// Package memory provides in-process implementations of the domain cache
// interfaces. They back unit tests and single-node development runs where
// Redis is not available.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// PriceCache is an in-memory domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

type pricePoint struct {
	price float64
	ts    time.Time
}

// NewPriceCache creates an empty in-memory price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

var _ domain.PriceCache = (*PriceCache)(nil)

func (c *PriceCache) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = pricePoint{price: price, ts: ts}
	return nil
}

func (c *PriceCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (c *PriceCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p.price
		}
	}
	return out, nil
}

// RateLimiter is an in-memory sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter creates an in-memory rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time)}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	kept := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		rl.hits[key] = kept
		return false, nil
	}
	rl.hits[key] = append(kept, now)
	return true, nil
}

// LockManager is an in-memory domain.LockManager.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLockManager creates an in-memory lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]time.Time)}
}

var _ domain.LockManager = (*LockManager)(nil)

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if expiry, held := lm.locks[key]; held && time.Now().Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	lm.locks[key] = time.Now().Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			delete(lm.locks, key)
		})
	}
	return unlock, nil
}

// SignalBus is an in-memory domain.SignalBus. Publish fans out to current
// subscribers; streams are append-only slices.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	nextID  int64
}

// NewSignalBus creates an in-memory signal bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
		nextID:  1,
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default: // slow subscriber drops the message
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.nextID, 10),
		Payload: payload,
	})
	b.nextID++
	return nil
}

func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var after int64
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		if n, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			after = n
		}
	}

	var out []domain.StreamMessage
	for _, msg := range b.streams[stream] {
		id, _ := strconv.ParseInt(msg.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, msg)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}
