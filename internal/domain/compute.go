package domain

import (
	"context"
	"math/big"
)

// InferenceRequest asks the compute broker to run a model over a structured
// input. When GenerateProof is set the broker also returns a proof of the
// computation.
type InferenceRequest struct {
	Model         string
	Provider      string
	Input         any
	MaxTokens     int
	Temperature   float64
	GenerateProof bool
}

// InferenceBroker runs model inference on an external compute network.
type InferenceBroker interface {
	RunInference(ctx context.Context, req InferenceRequest) (InferenceResult, error)
}

// ContentStore persists objects under their content hash.
type ContentStore interface {
	// StoreObject encodes obj and uploads it, returning its content hash.
	StoreObject(ctx context.Context, obj any) (string, error)
	// Load returns the raw bytes stored under hash, or ErrNotFound.
	Load(ctx context.Context, hash string) ([]byte, error)
}

// TradeCall carries the arguments of the trading contract's executeTrade
// entry point. Amount and Price are already fixed-point encoded.
type TradeCall struct {
	Agent        string
	AssetAddress string
	Amount       *big.Int
	Price        *big.Int
	IsBuy        bool
	DecisionHash string
	Proof        []byte
}

// TxReceipt is the subset of a mined transaction receipt the pipeline uses.
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
}

// SubmittedTx is a broadcast transaction whose confirmation can be awaited.
type SubmittedTx interface {
	Hash() string
	Wait(ctx context.Context) (TxReceipt, error)
}

// TradeContract submits trade commitments on chain.
type TradeContract interface {
	ExecuteTrade(ctx context.Context, call TradeCall) (SubmittedTx, error)
}
