package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

type tradeInferenceInput struct {
	Task      string         `json:"task"`
	Agent     string         `json:"agent"`
	Asset     string         `json:"asset"`
	Amount    float64        `json:"amount"`
	Price     float64        `json:"price"`
	Side      string         `json:"side"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func side(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}

func tradeKey(req domain.TradeRequest) string {
	return strings.Join([]string{
		strings.ToLower(req.Agent),
		req.Asset,
		strconv.FormatFloat(req.Amount, 'g', -1, 64),
		strconv.FormatFloat(req.Price, 'g', -1, 64),
		side(req.IsBuy),
		req.Model,
	}, "|")
}

// ExecuteTrade commits a direct buy/sell instruction through the same
// inference, storage and chain path as an arbitrage execution. An identical
// request within the dedup window fails with domain.ErrDuplicate.
func (p *Pipeline) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	if err := req.Validate(); err != nil {
		return domain.TradeResult{}, err
	}
	assetAddress := req.AssetAddress
	if assetAddress == "" {
		assetAddress = p.cfg.ArbAssetAddress
	}

	p.dedup.Cleanup()
	key := tradeKey(req)
	if p.dedup.IsDuplicate(key) {
		return domain.TradeResult{}, fmt.Errorf("executor: %w: identical trade submitted within %s", domain.ErrDuplicate, p.cfg.DedupTTL)
	}

	res, err := p.executeTrade(ctx, req, assetAddress)
	if err != nil {
		p.dedup.Forget(key)
		return domain.TradeResult{}, err
	}
	return res, nil
}

func (p *Pipeline) executeTrade(ctx context.Context, req domain.TradeRequest, assetAddress string) (domain.TradeResult, error) {
	log := p.logger.With(
		slog.String("asset", req.Asset),
		slog.String("side", side(req.IsBuy)),
	)
	log.Info("executing trade", slog.Float64("amount", req.Amount), slog.Float64("price", req.Price))

	inf, err := p.deps.Broker.RunInference(ctx, domain.InferenceRequest{
		Model:         req.Model,
		Provider:      req.Provider,
		GenerateProof: !p.cfg.SkipProof,
		Input: tradeInferenceInput{
			Task:      "trade-execution",
			Agent:     req.Agent,
			Asset:     req.Asset,
			Amount:    req.Amount,
			Price:     req.Price,
			Side:      side(req.IsBuy),
			Context:   req.DecisionPayload,
			Timestamp: p.now().UnixMilli(),
		},
	})
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("executor: inference: %w", err)
	}

	plan := domain.TradePlan{
		Type:      domain.PlanTypeDirectTrade,
		Agent:     req.Agent,
		Asset:     req.Asset,
		Amount:    req.Amount,
		Price:     req.Price,
		IsBuy:     req.IsBuy,
		Context:   req.DecisionPayload,
		ModelHash: inf.ModelHash,
		Provider:  inf.Provider,
		RequestID: inf.RequestID,
		Decision:  inf.Output,
		Timestamp: p.now().UnixMilli(),
	}
	storageHash, err := p.deps.Store.StoreObject(ctx, plan)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("executor: store plan: %w", err)
	}

	decisionHash, err := CommitmentHash(domain.TradeDecisionEnvelope{
		Agent:       req.Agent,
		Asset:       req.Asset,
		Amount:      req.Amount,
		Price:       req.Price,
		IsBuy:       req.IsBuy,
		ModelHash:   inf.ModelHash,
		RequestID:   inf.RequestID,
		Provider:    inf.Provider,
		StorageHash: storageHash,
		Timestamp:   plan.Timestamp,
	})
	if err != nil {
		return domain.TradeResult{}, err
	}

	txHash, err := p.commit(ctx, req.Agent, assetAddress, req.Amount, req.Price, req.IsBuy, decisionHash, inf.Proof)
	if err != nil {
		return domain.TradeResult{}, err
	}

	result := domain.TradeResult{
		StorageHash:    storageHash,
		AIDecisionHash: decisionHash,
		TxHash:         txHash,
		RequestID:      inf.RequestID,
		Provider:       inf.Provider,
	}
	log.Info("trade executed", slog.String("tx_hash", txHash))

	p.afterExecution(ctx, ChannelTrades, result, domain.ExecutionRecord{
		Kind:         domain.ExecutionKindTrade,
		Agent:        req.Agent,
		Asset:        req.Asset,
		Amount:       req.Amount,
		Price:        req.Price,
		StorageHash:  storageHash,
		DecisionHash: decisionHash,
		TxHash:       txHash,
		RequestID:    inf.RequestID,
		Provider:     inf.Provider,
	}, EventTradeExecuted, "Trade executed",
		fmt.Sprintf("%s %s %g @ %g\ntx %s", side(req.IsBuy), req.Asset, req.Amount, req.Price, txHash))

	return result, nil
}
