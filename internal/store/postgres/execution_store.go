package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

const defaultListLimit = 50

// ExecutionStore implements domain.ExecutionStore over the executions table.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id, kind, agent, asset, amount, price, expected_profit,
	storage_hash, decision_hash, tx_hash, request_id, provider, created_at`

// Insert records rec. A repeated tx hash is ignored.
func (s *ExecutionStore) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tx_hash) DO NOTHING`,
		rec.ID, string(rec.Kind), rec.Agent, rec.Asset, rec.Amount, rec.Price, rec.ExpectedProfit,
		rec.StorageHash, rec.DecisionHash, rec.TxHash, rec.RequestID, rec.Provider, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.TxHash, err)
	}
	return nil
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var (
		rec  domain.ExecutionRecord
		kind string
	)
	err := row.Scan(&rec.ID, &kind, &rec.Agent, &rec.Asset, &rec.Amount, &rec.Price, &rec.ExpectedProfit,
		&rec.StorageHash, &rec.DecisionHash, &rec.TxHash, &rec.RequestID, &rec.Provider, &rec.CreatedAt)
	rec.Kind = domain.ExecutionKind(kind)
	return rec, err
}

// GetByTxHash returns the execution committed in txHash, or
// domain.ErrNotFound.
func (s *ExecutionStore) GetByTxHash(ctx context.Context, txHash string) (domain.ExecutionRecord, error) {
	rec, err := scanExecution(s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE tx_hash = $1`, txHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", txHash, err)
	}
	return rec, nil
}

// ListRecent returns up to limit executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	list := []domain.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	return list, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
