package domain

// PlanTypeArbitrage and PlanTypeDirectTrade tag the plan envelopes persisted
// to content-addressed storage.
const (
	PlanTypeArbitrage   = "simulated-arbitrage"
	PlanTypeDirectTrade = "direct-trade"
)

// InferenceResult is what the compute broker returns for one inference call.
type InferenceResult struct {
	RequestID string `json:"requestId"`
	Output    string `json:"output"`
	Proof     string `json:"proof,omitempty"`
	ModelHash string `json:"modelHash"`
	Provider  string `json:"provider"`
	Cost      string `json:"cost,omitempty"`
}

// Plan is the full off-chain record of an arbitrage decision and its context.
type Plan struct {
	Type           string     `json:"type"`
	Asset          string     `json:"asset"`
	Amount         float64    `json:"amount"`
	Source         PricePoint `json:"source"`
	Target         PricePoint `json:"target"`
	Slippage       float64    `json:"slippage"`
	FeesBps        float64    `json:"feesBps"`
	ModelHash      string     `json:"modelHash"`
	Provider       string     `json:"provider"`
	RequestID      string     `json:"requestId"`
	Decision       string     `json:"decision"`
	ExpectedProfit float64    `json:"expectedProfit"`
	Timestamp      int64      `json:"timestamp"`
}

// DecisionEnvelope is hashed into the on-chain commitment. Field order is
// fixed by the struct so the JSON encoding is canonical.
type DecisionEnvelope struct {
	Asset       string       `json:"asset"`
	Amount      float64      `json:"amount"`
	Source      VenueSummary `json:"source"`
	Target      VenueSummary `json:"target"`
	ModelHash   string       `json:"modelHash"`
	RequestID   string       `json:"requestId"`
	Provider    string       `json:"provider"`
	StorageHash string       `json:"storageHash"`
	Timestamp   int64        `json:"timestamp"`
}

// ExecutionResult is returned once per successful arbitrage execution.
type ExecutionResult struct {
	StorageHash    string               `json:"storageHash"`
	AIDecisionHash string               `json:"aiDecisionHash"`
	TxHash         string               `json:"txHash"`
	Opportunity    ArbitrageOpportunity `json:"opportunity"`
	Plan           Plan                 `json:"plan"`
}

// RecentEntry is one row of the dashboard's recent-operations log. Exactly
// one of Result, Top or Error is populated.
type RecentEntry struct {
	ID     string                `json:"id"`
	Asset  string                `json:"asset"`
	Result *ExecutionResult      `json:"result,omitempty"`
	Top    *ArbitrageOpportunity `json:"top,omitempty"`
	Error  string                `json:"error,omitempty"`
	At     int64                 `json:"at"`
}
