package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// defaultQuoteTTL bounds how long a quote outlives its last refresh.
const defaultQuoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache with one hash per asset and venue
// at "quote:{asset}:{chain}:{exchange}" holding bid, ask and ts.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache. A zero ttl uses five minutes.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(asset string, v domain.Venue) string {
	return "quote:" + asset + ":" + v.Chain + ":" + v.Exchange
}

func quoteFields(p domain.PricePoint) map[string]any {
	return map[string]any{
		"bid": strconv.FormatFloat(p.Bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(p.Ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(p.Timestamp, 10),
	}
}

func parseQuote(asset string, v domain.Venue, vals map[string]string) (domain.PricePoint, error) {
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	p := domain.PricePoint{Chain: v.Chain, Exchange: v.Exchange, Asset: asset}
	var err error
	if p.Bid, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse bid for %s %s: %w", asset, v, err)
	}
	if p.Ask, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ask for %s %s: %w", asset, v, err)
	}
	if p.Timestamp, err = strconv.ParseInt(vals["ts"], 10, 64); err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ts for %s %s: %w", asset, v, err)
	}
	return p, nil
}

// SetQuote stores p and refreshes its expiry.
func (qc *QuoteCache) SetQuote(ctx context.Context, p domain.PricePoint) error {
	key := quoteKey(p.Asset, p.Venue())
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, quoteFields(p))
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote returns the last quote for asset at venue, or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, asset string, venue domain.Venue) (domain.PricePoint, error) {
	key := quoteKey(asset, venue)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	return parseQuote(asset, venue, vals)
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
