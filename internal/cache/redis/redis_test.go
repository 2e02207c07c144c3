package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

func TestQuoteKey(t *testing.T) {
	v := domain.Venue{Chain: "bsc", Exchange: "binance"}
	assert.Equal(t, "quote:ETH/USDC:bsc:binance", quoteKey("ETH/USDC", v))
}

func TestParseQuote(t *testing.T) {
	v := domain.Venue{Chain: "ethereum", Exchange: "coinbase"}
	p := domain.PricePoint{Chain: "ethereum", Exchange: "coinbase", Asset: "ETH/USDC", Bid: 3001.25, Ask: 3001.5, Timestamp: 1700000000000}

	raw := map[string]string{}
	for k, val := range quoteFields(p) {
		raw[k] = val.(string)
	}
	got, err := parseQuote("ETH/USDC", v, raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = parseQuote("ETH/USDC", v, map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = parseQuote("ETH/USDC", v, map[string]string{"bid": "x", "ask": "1", "ts": "1"})
	assert.Error(t, err)
}

func TestBusChannel(t *testing.T) {
	assert.Equal(t, "arbagent:arb", busChannel("arb"))
	assert.True(t, hasPattern("arb*"))
	assert.False(t, hasPattern("scanner"))
}

// newTestClient connects to ARBAGENT_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("ARBAGENT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARBAGENT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_QuoteCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	qc := NewQuoteCache(c, time.Minute)

	asset := "TEST-" + uuid.NewString()
	p := domain.PricePoint{Chain: "og", Exchange: "synthetic", Asset: asset, Bid: 99.9, Ask: 100.1, Timestamp: 42}
	require.NoError(t, qc.SetQuote(ctx, p))

	got, err := qc.GetQuote(ctx, asset, p.Venue())
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = qc.GetQuote(ctx, asset, domain.Venue{Chain: "x", Exchange: "y"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_Lock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestIntegration_RateLimiter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_SignalBus(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)
	channel := "test-" + uuid.NewString()

	ch, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, channel, []byte(`{"ok":true}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"ok":true}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}
