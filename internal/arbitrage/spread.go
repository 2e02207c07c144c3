package arbitrage

import (
	"math"
	"sort"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// Evaluate prices a buy-at-source, sell-at-target trade. It returns false when
// the spread does not exceed MinSpread or when the simulated net profit after
// slippage and fees is not positive. Comparisons are written so that a NaN
// anywhere rejects the pair.
func Evaluate(asset string, source, target domain.PricePoint, p Params) (domain.ArbitrageOpportunity, bool) {
	if !(source.Ask > 0) {
		return domain.ArbitrageOpportunity{}, false
	}
	spread := (target.Bid - source.Ask) / source.Ask
	if !(spread > p.MinSpread) {
		return domain.ArbitrageOpportunity{}, false
	}

	buy := source.Ask * (1 + p.Slippage)
	sell := target.Bid * (1 - p.Slippage)
	gross := (sell - buy) * p.Amount
	fees := (buy + sell) * p.Amount * (p.FeesBps / 10_000)
	net := gross - fees
	if !(net > 0) || math.IsInf(net, 0) {
		return domain.ArbitrageOpportunity{}, false
	}

	return domain.ArbitrageOpportunity{
		Asset:          asset,
		Source:         source,
		Target:         target,
		Spread:         spread,
		Amount:         p.Amount,
		ExpectedProfit: net,
		Slippage:       p.Slippage,
		FeesBps:        p.FeesBps,
	}, true
}

// Rank compares every ordered pair of distinct quotes and returns the
// profitable ones sorted by expected profit, highest first. Zero or one quote
// yields an empty result.
func Rank(prices []domain.PricePoint, p Params) []domain.ArbitrageOpportunity {
	out := make([]domain.ArbitrageOpportunity, 0)
	for i := range prices {
		for j := range prices {
			if i == j {
				continue
			}
			if opp, ok := Evaluate(p.Asset, prices[i], prices[j], p); ok {
				out = append(out, opp)
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].ExpectedProfit > out[b].ExpectedProfit
	})
	return out
}
