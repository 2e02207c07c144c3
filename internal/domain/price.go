package domain

import (
	"fmt"
	"math"
	"strings"
)

// Venue identifies where a quote came from: a chain label plus an exchange
// label, e.g. {"bsc", "binance"}.
type Venue struct {
	Chain    string `json:"chain"`
	Exchange string `json:"exchange"`
}

// String returns "chain/exchange".
func (v Venue) String() string {
	return v.Chain + "/" + v.Exchange
}

// PricePoint is an immutable top-of-book snapshot for one asset at one venue.
// Timestamp is epoch milliseconds.
type PricePoint struct {
	Chain     string  `json:"chain"`
	Exchange  string  `json:"exchange"`
	Asset     string  `json:"asset"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
}

// Venue returns the venue the quote belongs to.
func (p PricePoint) Venue() Venue {
	return Venue{Chain: p.Chain, Exchange: p.Exchange}
}

// Validate rejects quotes that cannot take part in a spread computation.
func (p PricePoint) Validate() error {
	if strings.TrimSpace(p.Asset) == "" {
		return fmt.Errorf("%w: price point asset is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Chain) == "" || strings.TrimSpace(p.Exchange) == "" {
		return fmt.Errorf("%w: price point venue is incomplete", ErrInvalidInput)
	}
	if !finite(p.Bid) || !finite(p.Ask) || p.Bid < 0 || p.Ask < 0 {
		return fmt.Errorf("%w: price point %s has invalid bid/ask %v/%v", ErrInvalidInput, p.Venue(), p.Bid, p.Ask)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// VenueSummary is the compact venue description embedded in inference
// payloads and decision envelopes. Only one of Ask or Bid is set depending on
// which leg it describes.
type VenueSummary struct {
	Chain    string   `json:"chain"`
	Exchange string   `json:"exchange"`
	Ask      *float64 `json:"ask,omitempty"`
	Bid      *float64 `json:"bid,omitempty"`
}

// BuySide summarises p as the buy leg (its ask).
func (p PricePoint) BuySide() VenueSummary {
	ask := p.Ask
	return VenueSummary{Chain: p.Chain, Exchange: p.Exchange, Ask: &ask}
}

// SellSide summarises p as the sell leg (its bid).
func (p PricePoint) SellSide() VenueSummary {
	bid := p.Bid
	return VenueSummary{Chain: p.Chain, Exchange: p.Exchange, Bid: &bid}
}
