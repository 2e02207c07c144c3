// Package arbitrage finds cross-venue spreads for a single asset and ranks
// them by simulated net profit.
package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

const (
	DefaultMinSpread = 0.003
	DefaultSlippage  = 0.01
	DefaultFeesBps   = 20
	DefaultAmount    = 1
)

// Params controls one scan. Values are used as given, so an explicit zero
// threshold, slippage or fee is honoured; start from DefaultParams and
// override the fields a caller actually supplied.
type Params struct {
	Asset     string
	MinSpread float64
	Slippage  float64
	FeesBps   float64
	Amount    float64
}

// DefaultParams returns the scan parameters used when a caller supplies none.
func DefaultParams(asset string) Params {
	return Params{
		Asset:     asset,
		MinSpread: DefaultMinSpread,
		Slippage:  DefaultSlippage,
		FeesBps:   DefaultFeesBps,
		Amount:    DefaultAmount,
	}
}

// Overrides carries optional scan parameters. Nil fields keep the value they
// are applied to.
type Overrides struct {
	MinSpread *float64
	Slippage  *float64
	FeesBps   *float64
	Amount    *float64
}

// Apply returns p with every non-nil override set.
func (o Overrides) Apply(p Params) Params {
	if o.MinSpread != nil {
		p.MinSpread = *o.MinSpread
	}
	if o.Slippage != nil {
		p.Slippage = *o.Slippage
	}
	if o.FeesBps != nil {
		p.FeesBps = *o.FeesBps
	}
	if o.Amount != nil {
		p.Amount = *o.Amount
	}
	return p
}

// Validate rejects negative or non-finite parameters.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Asset) == "" {
		return fmt.Errorf("arbitrage: %w: asset is required", domain.ErrInvalidInput)
	}
	for _, v := range []float64{p.MinSpread, p.Slippage, p.FeesBps, p.Amount} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("arbitrage: %w: scan parameters must be finite and not negative", domain.ErrInvalidInput)
		}
	}
	return nil
}

// PriceSource returns the current quotes for an asset across venues.
type PriceSource interface {
	Prices(ctx context.Context, asset string) ([]domain.PricePoint, error)
}

// Scanner fetches quotes from a PriceSource and ranks the opportunities.
type Scanner struct {
	prices PriceSource
	logger *slog.Logger
}

// NewScanner creates a scanner over the given price source.
func NewScanner(prices PriceSource, logger *slog.Logger) *Scanner {
	return &Scanner{
		prices: prices,
		logger: logger.With(slog.String("component", "arb_scanner")),
	}
}

// FindOpportunities fetches quotes for p.Asset and returns the profitable
// opportunities, best first. A price source failure aborts the scan.
func (s *Scanner) FindOpportunities(ctx context.Context, p Params) ([]domain.ArbitrageOpportunity, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	prices, err := s.prices.Prices(ctx, p.Asset)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: fetch prices for %s: %w", p.Asset, err)
	}

	opps := Rank(prices, p)
	s.logger.Debug("scan complete",
		slog.String("asset", p.Asset),
		slog.Int("venues", len(prices)),
		slog.Int("opportunities", len(opps)),
	)
	return opps, nil
}
