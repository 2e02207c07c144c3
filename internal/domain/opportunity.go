package domain

// ArbitrageOpportunity is a directional buy-at-source, sell-at-target spread
// that survived the minimum spread filter and is profitable after simulated
// slippage and fees.
type ArbitrageOpportunity struct {
	Asset          string     `json:"asset"`
	Source         PricePoint `json:"source"` // buy from
	Target         PricePoint `json:"target"` // sell to
	Spread         float64    `json:"spread"` // (target.bid - source.ask) / source.ask
	Amount         float64    `json:"amount"`
	ExpectedProfit float64    `json:"expectedProfit"`
	Slippage       float64    `json:"slippage"`
	FeesBps        float64    `json:"feesBps"`
}
