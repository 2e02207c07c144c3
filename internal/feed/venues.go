package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Ticker is a venue's best bid and ask.
type Ticker struct {
	Bid float64
	Ask float64
}

// BinanceClient reads the spot book ticker.
type BinanceClient struct {
	rest restClient
}

// NewBinanceClient creates a client rooted at baseURL, e.g.
// "https://api.binance.com".
func NewBinanceClient(baseURL string, timeout time.Duration) *BinanceClient {
	return &BinanceClient{rest: newRESTClient(baseURL, timeout)}
}

type binanceBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// BookTicker returns the best bid/ask for symbol (e.g. "ETHUSDT").
func (c *BinanceClient) BookTicker(ctx context.Context, symbol string) (Ticker, error) {
	body, err := c.rest.doGet(ctx, "/api/v3/ticker/bookTicker?symbol="+url.QueryEscape(symbol))
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/binance: book ticker %s: %w", symbol, err)
	}
	var raw binanceBookTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return Ticker{}, fmt.Errorf("feed/binance: decode book ticker: %w", err)
	}
	bid, err := parsePrice(raw.BidPrice)
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/binance: bid: %w", err)
	}
	ask, err := parsePrice(raw.AskPrice)
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/binance: ask: %w", err)
	}
	return Ticker{Bid: bid, Ask: ask}, nil
}

// CoinbaseClient reads the level-1 order book.
type CoinbaseClient struct {
	rest restClient
}

// NewCoinbaseClient creates a client rooted at baseURL, e.g.
// "https://api.exchange.coinbase.com".
func NewCoinbaseClient(baseURL string, timeout time.Duration) *CoinbaseClient {
	return &CoinbaseClient{rest: newRESTClient(baseURL, timeout)}
}

// Levels are [price, size, num-orders] with mixed string/number encoding.
type coinbaseBook struct {
	Bids [][]any `json:"bids"`
	Asks [][]any `json:"asks"`
}

// Level1 returns the top of book for product (e.g. "ETH-USD"). A missing side
// is reported as zero.
func (c *CoinbaseClient) Level1(ctx context.Context, product string) (Ticker, error) {
	body, err := c.rest.doGet(ctx, "/products/"+url.PathEscape(product)+"/book?level=1")
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/coinbase: level1 %s: %w", product, err)
	}
	var raw coinbaseBook
	if err := json.Unmarshal(body, &raw); err != nil {
		return Ticker{}, fmt.Errorf("feed/coinbase: decode book: %w", err)
	}
	bid, err := topLevel(raw.Bids)
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/coinbase: bid: %w", err)
	}
	ask, err := topLevel(raw.Asks)
	if err != nil {
		return Ticker{}, fmt.Errorf("feed/coinbase: ask: %w", err)
	}
	return Ticker{Bid: bid, Ask: ask}, nil
}

func topLevel(levels [][]any) (float64, error) {
	if len(levels) == 0 || len(levels[0]) == 0 {
		return 0, nil
	}
	return parsePrice(levels[0][0])
}

// CoingeckoClient reads the public simple price index.
type CoingeckoClient struct {
	rest restClient
}

// NewCoingeckoClient creates a client rooted at baseURL, e.g.
// "https://api.coingecko.com".
func NewCoingeckoClient(baseURL string, timeout time.Duration) *CoingeckoClient {
	return &CoingeckoClient{rest: newRESTClient(baseURL, timeout)}
}

// SimplePrice returns the index price of coin id in vs currency. An absent
// entry is reported as zero.
func (c *CoingeckoClient) SimplePrice(ctx context.Context, id, vs string) (float64, error) {
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", vs)

	body, err := c.rest.doGet(ctx, "/api/v3/simple/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("feed/coingecko: simple price %s/%s: %w", id, vs, err)
	}
	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("feed/coingecko: decode price: %w", err)
	}
	return raw[id][vs], nil
}
