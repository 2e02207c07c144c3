package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.PricePoint
	err    error
}

func (m *memQuoteCache) SetQuote(_ context.Context, p domain.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.quotes == nil {
		m.quotes = make(map[string]domain.PricePoint)
	}
	m.quotes[p.Asset+"|"+p.Venue().String()] = p
	return nil
}

func (m *memQuoteCache) GetQuote(_ context.Context, asset string, v domain.Venue) (domain.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.quotes[asset+"|"+v.String()]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return p, nil
}

// marketServer emulates the three upstream APIs on one host.
func marketServer(t *testing.T, failPath string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/ticker/bookTicker", func(w http.ResponseWriter, r *http.Request) {
		if failPath == "binance" {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"ETHUSDT","bidPrice":"3999.50","bidQty":"1.0","askPrice":"4000.00","askQty":"2.0"}`)
	})
	mux.HandleFunc("GET /products/ETH-USD/book", func(w http.ResponseWriter, r *http.Request) {
		if failPath == "coinbase" {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("level"))
		fmt.Fprint(w, `{"bids":[["4010.10","0.5",3]],"asks":[["4010.20","0.7",1]],"sequence":1}`)
	})
	mux.HandleFunc("GET /api/v3/simple/price", func(w http.ResponseWriter, r *http.Request) {
		if failPath == "coingecko" {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"ethereum":{"usd":4000}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAggregator(srv *httptest.Server, cache domain.QuoteCache) *Aggregator {
	a := NewAggregator(Config{
		BinanceURL:   srv.URL,
		CoinbaseURL:  srv.URL,
		CoingeckoURL: srv.URL,
		Timeout:      2 * time.Second,
	}, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return a
}

func TestAggregator_LiveAsset(t *testing.T) {
	srv := marketServer(t, "")
	cache := &memQuoteCache{}
	a := newTestAggregator(srv, cache)

	prices, err := a.Prices(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	require.Len(t, prices, 3)

	assert.Equal(t, domain.Venue{Chain: "bsc", Exchange: "binance"}, prices[0].Venue())
	assert.InDelta(t, 3999.50, prices[0].Bid, 1e-9)
	assert.InDelta(t, 4000.00, prices[0].Ask, 1e-9)

	assert.Equal(t, domain.Venue{Chain: "ethereum", Exchange: "coinbase"}, prices[1].Venue())
	assert.InDelta(t, 4010.10, prices[1].Bid, 1e-9)
	assert.InDelta(t, 4010.20, prices[1].Ask, 1e-9)

	assert.Equal(t, domain.Venue{Chain: "og", Exchange: "synthetic"}, prices[2].Venue())
	assert.InDelta(t, 3996.0, prices[2].Bid, 1e-9)
	assert.InDelta(t, 4004.0, prices[2].Ask, 1e-9)

	for _, p := range prices {
		assert.Equal(t, "ETH/USDC", p.Asset)
		assert.Equal(t, int64(1700000000000), p.Timestamp)
		require.NoError(t, p.Validate())
	}

	cached, err := cache.GetQuote(context.Background(), "ETH/USDC", domain.Venue{Chain: "ethereum", Exchange: "coinbase"})
	require.NoError(t, err)
	assert.Equal(t, prices[1], cached)
}

func TestAggregator_AnyUpstreamFailureAborts(t *testing.T) {
	for _, fail := range []string{"binance", "coinbase", "coingecko"} {
		t.Run(fail, func(t *testing.T) {
			srv := marketServer(t, fail)
			a := newTestAggregator(srv, nil)

			prices, err := a.Prices(context.Background(), "ETHUSD")
			require.Error(t, err)
			assert.Nil(t, prices)
		})
	}
}

func TestAggregator_UpstreamStatusIsNotASentinel(t *testing.T) {
	srv := marketServer(t, "coingecko")
	a := newTestAggregator(srv, nil)

	_, err := a.Prices(context.Background(), "ETH/USDC")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.RateLimited())
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAggregator_NonFiniteQuoteAborts(t *testing.T) {
	for _, bid := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(bid, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/api/v3/ticker/bookTicker":
					fmt.Fprintf(w, `{"bidPrice":%q,"askPrice":"4000.00"}`, bid)
				case "/products/ETH-USD/book":
					fmt.Fprint(w, `{"bids":[["4010.10","0.5",3]],"asks":[["4010.20","0.7",1]]}`)
				default:
					fmt.Fprint(w, `{"ethereum":{"usd":4000}}`)
				}
			}))
			defer srv.Close()
			cache := &memQuoteCache{}
			a := newTestAggregator(srv, cache)

			prices, err := a.Prices(context.Background(), "ETH/USDC")
			require.Error(t, err)
			assert.Nil(t, prices)
			assert.NotErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, cache.quotes)
		})
	}
}

func TestAggregator_NegativeQuoteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/bookTicker":
			fmt.Fprint(w, `{"bidPrice":"-1","askPrice":"4000.00"}`)
		case "/products/ETH-USD/book":
			fmt.Fprint(w, `{"bids":[["4010.10","0.5",3]],"asks":[["4010.20","0.7",1]]}`)
		default:
			fmt.Fprint(w, `{"ethereum":{"usd":4000}}`)
		}
	}))
	defer srv.Close()

	_, err := newTestAggregator(srv, nil).Prices(context.Background(), "ETH/USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bsc/binance")
	assert.NotErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParsePrice(t *testing.T) {
	f, err := parsePrice("3999.5")
	require.NoError(t, err)
	assert.Equal(t, 3999.5, f)

	f, err = parsePrice(nil)
	require.NoError(t, err)
	assert.Zero(t, f)

	for _, v := range []any{"NaN", "+Inf", "abc", true} {
		_, err := parsePrice(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestAggregator_UnknownAssetIsSynthetic(t *testing.T) {
	// No server: unknown assets never touch the network.
	a := NewAggregator(Config{BinanceURL: "http://127.0.0.1:1"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	prices, err := a.Prices(context.Background(), "BTC/DAI")
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, domain.Venue{Chain: "og", Exchange: "synthetic"}, prices[0].Venue())
	assert.InDelta(t, 99.9, prices[0].Bid, 1e-9)
	assert.InDelta(t, 100.1, prices[0].Ask, 1e-9)

	assert.Equal(t, domain.Venue{Chain: "ethereum", Exchange: "synthetic"}, prices[1].Venue())
	assert.InDelta(t, 100.0, prices[1].Bid, 1e-9)
	assert.InDelta(t, 100.2, prices[1].Ask, 1e-9)
}

func TestAggregator_CacheFailureIgnored(t *testing.T) {
	srv := marketServer(t, "")
	a := newTestAggregator(srv, &memQuoteCache{err: fmt.Errorf("redis down")})

	prices, err := a.Prices(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	assert.Len(t, prices, 3)
}

func TestCoinbase_EmptyBookIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bids":[],"asks":[]}`)
	}))
	defer srv.Close()

	tk, err := NewCoinbaseClient(srv.URL, time.Second).Level1(context.Background(), "ETH-USD")
	require.NoError(t, err)
	assert.Zero(t, tk.Bid)
	assert.Zero(t, tk.Ask)
}
