package ws

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/quillfx/papertrader/internal/cache/memory"
	"github.com/quillfx/papertrader/internal/domain"
)

func TestReplayRecentDeliversStreamHistory(t *testing.T) {
	ctx := context.Background()
	bus := cachemem.NewSignalBus()

	// Events appended before the client connects.
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf(`{"event":"order_filled","seq":%d}`, i))
		require.NoError(t, bus.StreamAppend(ctx, domain.EventStream("orders"), payload))
	}

	h := NewHub(bus, slog.New(slog.DiscardHandler), Config{Mode: "live", StartedAt: time.Now()})
	c := &client{
		hub:  h,
		send: make(chan []byte, 8),
		subs: map[string]bool{"orders": true},
	}

	h.replayRecent(ctx, c)

	var got []string
	for {
		select {
		case msg := <-c.send:
			got = append(got, string(msg))
			continue
		default:
		}
		break
	}
	require.Len(t, got, 3)
	assert.Contains(t, got[0], `"seq":0`)
	assert.Contains(t, got[2], `"seq":2`)
}

func TestReplayRecentStopsOnFullBuffer(t *testing.T) {
	ctx := context.Background()
	bus := cachemem.NewSignalBus()

	for i := 0; i < 4; i++ {
		require.NoError(t, bus.StreamAppend(ctx, domain.EventStream("positions"), []byte("{}")))
	}

	h := NewHub(bus, slog.New(slog.DiscardHandler), Config{})
	c := &client{
		hub:  h,
		send: make(chan []byte, 2),
		subs: map[string]bool{},
	}

	// A slow client cannot absorb the history; the replay gives up rather
	// than blocking the connect path.
	h.replayRecent(ctx, c)
	assert.Len(t, c.send, 2)
}
