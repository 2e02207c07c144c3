package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TradeRequest is a direct buy/sell instruction that goes through the same
// inference, storage and chain commit path as an arbitrage execution.
type TradeRequest struct {
	Agent           string         `json:"agent"`
	Asset           string         `json:"asset"`
	AssetAddress    string         `json:"assetAddress,omitempty"`
	Amount          float64        `json:"amount"`
	Price           float64        `json:"price"`
	IsBuy           bool           `json:"isBuy"`
	Model           string         `json:"model"`
	Provider        string         `json:"provider,omitempty"`
	DecisionPayload map[string]any `json:"decisionPayload,omitempty"`
}

// Validate checks the fields the pipeline cannot run without.
func (r TradeRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Agent) == "" {
		missing = append(missing, "agent")
	}
	if strings.TrimSpace(r.Asset) == "" {
		missing = append(missing, "asset")
	}
	if strings.TrimSpace(r.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !common.IsHexAddress(r.Agent) {
		return fmt.Errorf("%w: agent %q is not an address", ErrInvalidInput, r.Agent)
	}
	if r.AssetAddress != "" && !common.IsHexAddress(r.AssetAddress) {
		return fmt.Errorf("%w: assetAddress %q is not an address", ErrInvalidInput, r.AssetAddress)
	}
	if !(r.Amount > 0) || math.IsInf(r.Amount, 0) {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}
	if !(r.Price > 0) || math.IsInf(r.Price, 0) {
		return fmt.Errorf("%w: price must be > 0", ErrInvalidInput)
	}
	return nil
}

// TradePlan is the storage envelope for a direct trade.
type TradePlan struct {
	Type      string         `json:"type"`
	Agent     string         `json:"agent"`
	Asset     string         `json:"asset"`
	Amount    float64        `json:"amount"`
	Price     float64        `json:"price"`
	IsBuy     bool           `json:"isBuy"`
	Context   map[string]any `json:"context,omitempty"`
	ModelHash string         `json:"modelHash"`
	Provider  string         `json:"provider"`
	RequestID string         `json:"requestId"`
	Decision  string         `json:"decision"`
	Timestamp int64          `json:"timestamp"`
}

// TradeDecisionEnvelope is hashed into the on-chain commitment of a direct
// trade.
type TradeDecisionEnvelope struct {
	Agent       string  `json:"agent"`
	Asset       string  `json:"asset"`
	Amount      float64 `json:"amount"`
	Price       float64 `json:"price"`
	IsBuy       bool    `json:"isBuy"`
	ModelHash   string  `json:"modelHash"`
	RequestID   string  `json:"requestId"`
	Provider    string  `json:"provider"`
	StorageHash string  `json:"storageHash"`
	Timestamp   int64   `json:"timestamp"`
}

// TradeResult identifies the artefacts produced by a direct trade.
type TradeResult struct {
	StorageHash    string `json:"storageHash"`
	AIDecisionHash string `json:"aiDecisionHash"`
	TxHash         string `json:"txHash"`
	RequestID      string `json:"requestId"`
	Provider       string `json:"provider"`
}
