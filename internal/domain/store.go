package domain

import (
	"context"
	"time"
)

// ExecutionKind distinguishes arbitrage executions from direct trades.
type ExecutionKind string

const (
	ExecutionKindArbitrage ExecutionKind = "arbitrage"
	ExecutionKindTrade     ExecutionKind = "trade"
)

// ExecutionRecord is the durable summary of one committed execution.
type ExecutionRecord struct {
	ID             string        `json:"id"`
	Kind           ExecutionKind `json:"kind"`
	Agent          string        `json:"agent"`
	Asset          string        `json:"asset"`
	Amount         float64       `json:"amount"`
	Price          float64       `json:"price"`
	ExpectedProfit float64       `json:"expectedProfit"`
	StorageHash    string        `json:"storageHash"`
	DecisionHash   string        `json:"aiDecisionHash"`
	TxHash         string        `json:"txHash"`
	RequestID      string        `json:"requestId"`
	Provider       string        `json:"provider"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ExecutionStore persists committed executions.
type ExecutionStore interface {
	Insert(ctx context.Context, rec ExecutionRecord) error
	GetByTxHash(ctx context.Context, txHash string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
