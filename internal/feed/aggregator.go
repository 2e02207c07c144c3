package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// Venue labels.
const (
	ChainBSC      = "bsc"
	ChainEthereum = "ethereum"
	ChainOG       = "og"

	ExchangeBinance   = "binance"
	ExchangeCoinbase  = "coinbase"
	ExchangeSynthetic = "synthetic"
)

const (
	// syntheticVariance is the half-width of the synthetic venue's book
	// around its reference price.
	syntheticVariance = 0.001
	// fallbackReference is the reference price for assets without live feeds.
	fallbackReference = 100.0
)

// liveAssets are the symbols backed by live ETH market data.
var liveAssets = map[string]bool{
	"ETH/USDC": true,
	"ETHUSD":   true,
}

// Config holds endpoint roots for the venue adapters.
type Config struct {
	BinanceURL   string
	CoinbaseURL  string
	CoingeckoURL string
	Timeout      time.Duration
}

// Aggregator assembles one quote per venue for an asset.
type Aggregator struct {
	binance   *BinanceClient
	coinbase  *CoinbaseClient
	coingecko *CoingeckoClient
	cache     domain.QuoteCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(cfg Config, cache domain.QuoteCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		binance:   NewBinanceClient(cfg.BinanceURL, cfg.Timeout),
		coinbase:  NewCoinbaseClient(cfg.CoinbaseURL, cfg.Timeout),
		coingecko: NewCoingeckoClient(cfg.CoingeckoURL, cfg.Timeout),
		cache:     cache,
		logger:    logger.With(slog.String("component", "price_feed")),
		now:       time.Now,
	}
}

// Prices returns quotes for asset in a fixed venue order. Any upstream failure
// fails the whole call; there are no partial results.
func (a *Aggregator) Prices(ctx context.Context, asset string) ([]domain.PricePoint, error) {
	ts := a.now().UnixMilli()

	if !liveAssets[asset] {
		return []domain.PricePoint{
			synthetic(ChainOG, asset, fallbackReference, ts),
			{
				Chain:     ChainEthereum,
				Exchange:  ExchangeSynthetic,
				Asset:     asset,
				Bid:       fallbackReference,
				Ask:       fallbackReference * 1.002,
				Timestamp: ts,
			},
		}, nil
	}

	var (
		bin   Ticker
		cb    Ticker
		index float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bin, err = a.binance.BookTicker(gctx, "ETHUSDT")
		return err
	})
	g.Go(func() error {
		var err error
		cb, err = a.coinbase.Level1(gctx, "ETH-USD")
		return err
	})
	g.Go(func() error {
		var err error
		index, err = a.coingecko.SimplePrice(gctx, "ethereum", "usd")
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("price fetch failed", slog.String("asset", asset), slog.String("error", err.Error()))
		return nil, err
	}

	points := []domain.PricePoint{
		{Chain: ChainBSC, Exchange: ExchangeBinance, Asset: asset, Bid: bin.Bid, Ask: bin.Ask, Timestamp: ts},
		{Chain: ChainEthereum, Exchange: ExchangeCoinbase, Asset: asset, Bid: cb.Bid, Ask: cb.Ask, Timestamp: ts},
		synthetic(ChainOG, asset, index, ts),
	}
	for _, p := range points {
		// Upstream garbage fails the scan like any other upstream failure,
		// so the cause is flattened rather than wrapped.
		if err := p.Validate(); err != nil {
			a.logger.Warn("rejecting quote", slog.String("venue", p.Venue().String()), slog.String("error", err.Error()))
			return nil, fmt.Errorf("feed: %s returned an unusable quote: %s", p.Venue(), err.Error())
		}
	}
	a.mirror(ctx, points)
	return points, nil
}

func synthetic(chain, asset string, ref float64, ts int64) domain.PricePoint {
	return domain.PricePoint{
		Chain:     chain,
		Exchange:  ExchangeSynthetic,
		Asset:     asset,
		Bid:       ref * (1 - syntheticVariance),
		Ask:       ref * (1 + syntheticVariance),
		Timestamp: ts,
	}
}

// mirror writes live quotes to the quote cache. Failures are logged only.
func (a *Aggregator) mirror(ctx context.Context, points []domain.PricePoint) {
	if a.cache == nil {
		return
	}
	for _, p := range points {
		if err := a.cache.SetQuote(ctx, p); err != nil {
			a.logger.Warn("quote cache write failed",
				slog.String("venue", p.Venue().String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
