package domain

import (
	"context"
	"time"
)

// QuoteCache keeps the last quote seen per asset and venue.
type QuoteCache interface {
	SetQuote(ctx context.Context, p PricePoint) error
	GetQuote(ctx context.Context, asset string, venue Venue) (PricePoint, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Publisher emits pipeline events on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SignalBus provides pub/sub fan-out of pipeline events.
type SignalBus interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
