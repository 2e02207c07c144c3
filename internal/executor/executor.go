// Package executor turns an arbitrage opportunity or a direct trade
// instruction into an on-chain commitment: model confirmation, plan upload to
// content-addressed storage, commitment hash, executeTrade transaction and
// receipt. Steps run strictly in sequence; the first failure aborts the run.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/arbagent/internal/arbitrage"
	"github.com/alanyoungcy/arbagent/internal/chain"
	"github.com/alanyoungcy/arbagent/internal/domain"
)

// Signal bus channels the executor publishes on.
const (
	ChannelArb    = "arb"
	ChannelTrades = "trades"
)

// Notification event types.
const (
	EventArbExecuted   = "arb_executed"
	EventTradeExecuted = "trade_executed"
)

// OpportunityFinder ranks the opportunities for an asset.
type OpportunityFinder interface {
	FindOpportunities(ctx context.Context, p arbitrage.Params) ([]domain.ArbitrageOpportunity, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps are the pipeline's collaborators. Bus, Executions, Audit and Notifier
// are optional.
type Deps struct {
	Scanner    OpportunityFinder
	Broker     domain.InferenceBroker
	Store      domain.ContentStore
	Contract   domain.TradeContract
	Bus        domain.Publisher
	Executions domain.ExecutionStore
	Audit      domain.AuditStore
	Notifier   Notifier
}

// Config holds pipeline settings.
type Config struct {
	// ArbAssetAddress is the asset argument of executeTrade on the arbitrage
	// path.
	ArbAssetAddress string
	// DedupTTL is how long an identical direct trade is rejected.
	DedupTTL time.Duration
	// SkipProof stops asking the provider for an inference proof. The
	// commitment then carries empty proof bytes.
	SkipProof bool
}

// ExecuteInput describes one arbitrage execution request.
type ExecuteInput struct {
	Agent    string  `json:"agent"`
	Asset    string  `json:"asset"`
	Amount   float64 `json:"amount"`
	Model    string  `json:"model"`
	Provider string  `json:"provider,omitempty"`
	// Slippage and FeesBps fall back to the scan defaults only when absent.
	Slippage *float64 `json:"slippage,omitempty"`
	FeesBps  *float64 `json:"feesBps,omitempty"`
}

// Validate checks the request fields.
func (in ExecuteInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.Agent) == "" {
		missing = append(missing, "agent")
	}
	if strings.TrimSpace(in.Asset) == "" {
		missing = append(missing, "asset")
	}
	if strings.TrimSpace(in.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !common.IsHexAddress(in.Agent) {
		return fmt.Errorf("%w: agent %q is not an address", domain.ErrInvalidInput, in.Agent)
	}
	for _, v := range []*float64{&in.Amount, in.Slippage, in.FeesBps} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: amount, slippage and feesBps must be finite and not negative", domain.ErrInvalidInput)
		}
	}
	return nil
}

// Pipeline executes arbitrage opportunities and direct trades.
type Pipeline struct {
	deps   Deps
	cfg    Config
	dedup  *Dedup
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Deps, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.ArbAssetAddress == "" {
		cfg.ArbAssetAddress = "0x0000000000000000000000000000000000000000"
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 30 * time.Second
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		dedup:  NewDedup(cfg.DedupTTL),
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// arbInferenceInput is the payload the model reviews before an arbitrage
// execution.
type arbInferenceInput struct {
	Task           string              `json:"task"`
	Asset          string              `json:"asset"`
	Amount         float64             `json:"amount"`
	Source         domain.VenueSummary `json:"source"`
	Target         domain.VenueSummary `json:"target"`
	Spread         float64             `json:"spread"`
	ExpectedProfit float64             `json:"expectedProfit"`
	Slippage       float64             `json:"slippage"`
	FeesBps        float64             `json:"feesBps"`
	Timestamp      int64               `json:"timestamp"`
}

// Execute runs the arbitrage pipeline. When opp is nil the best current
// opportunity for in.Asset is used; if there is none the call fails with
// domain.ErrNoOpportunity before any external side effect.
func (p *Pipeline) Execute(ctx context.Context, in ExecuteInput, opp *domain.ArbitrageOpportunity) (domain.ExecutionResult, error) {
	if err := in.Validate(); err != nil {
		return domain.ExecutionResult{}, err
	}

	amount := in.Amount
	if amount == 0 {
		if opp != nil {
			amount = opp.Amount
		} else {
			amount = arbitrage.DefaultAmount
		}
	}

	// 1. Select the opportunity.
	if opp == nil {
		params := arbitrage.Overrides{
			Slippage: in.Slippage,
			FeesBps:  in.FeesBps,
			Amount:   &amount,
		}.Apply(arbitrage.DefaultParams(in.Asset))
		opps, err := p.deps.Scanner.FindOpportunities(ctx, params)
		if err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("executor: scan: %w", err)
		}
		if len(opps) == 0 {
			return domain.ExecutionResult{}, domain.ErrNoOpportunity
		}
		opp = &opps[0]
	}
	best := *opp

	slippage := best.Slippage
	if in.Slippage != nil {
		slippage = *in.Slippage
	}
	feesBps := best.FeesBps
	if in.FeesBps != nil {
		feesBps = *in.FeesBps
	}

	log := p.logger.With(
		slog.String("asset", in.Asset),
		slog.String("source", best.Source.Venue().String()),
		slog.String("target", best.Target.Venue().String()),
	)
	log.Info("executing opportunity",
		slog.Float64("spread", best.Spread),
		slog.Float64("expected_profit", best.ExpectedProfit),
	)

	// 2. Model confirmation with proof.
	inf, err := p.deps.Broker.RunInference(ctx, domain.InferenceRequest{
		Model:         in.Model,
		Provider:      in.Provider,
		GenerateProof: !p.cfg.SkipProof,
		Input: arbInferenceInput{
			Task:           "arbitrage-execution",
			Asset:          in.Asset,
			Amount:         amount,
			Source:         best.Source.BuySide(),
			Target:         best.Target.SellSide(),
			Spread:         best.Spread,
			ExpectedProfit: best.ExpectedProfit,
			Slippage:       slippage,
			FeesBps:        feesBps,
			Timestamp:      p.now().UnixMilli(),
		},
	})
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("executor: inference: %w", err)
	}

	// 3. Plan envelope.
	plan := domain.Plan{
		Type:           domain.PlanTypeArbitrage,
		Asset:          in.Asset,
		Amount:         amount,
		Source:         best.Source,
		Target:         best.Target,
		Slippage:       slippage,
		FeesBps:        feesBps,
		ModelHash:      inf.ModelHash,
		Provider:       inf.Provider,
		RequestID:      inf.RequestID,
		Decision:       inf.Output,
		ExpectedProfit: best.ExpectedProfit,
		Timestamp:      p.now().UnixMilli(),
	}

	// 4. Persist the plan.
	storageHash, err := p.deps.Store.StoreObject(ctx, plan)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("executor: store plan: %w", err)
	}

	// 5. Commitment.
	decisionHash, err := CommitmentHash(domain.DecisionEnvelope{
		Asset:       in.Asset,
		Amount:      amount,
		Source:      best.Source.BuySide(),
		Target:      best.Target.SellSide(),
		ModelHash:   inf.ModelHash,
		RequestID:   inf.RequestID,
		Provider:    inf.Provider,
		StorageHash: storageHash,
		Timestamp:   plan.Timestamp,
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	// 6-7. Submit and await the receipt.
	txHash, err := p.commit(ctx, in.Agent, p.cfg.ArbAssetAddress, amount, best.Source.Ask, true, decisionHash, inf.Proof)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	result := domain.ExecutionResult{
		StorageHash:    storageHash,
		AIDecisionHash: decisionHash,
		TxHash:         txHash,
		Opportunity:    best,
		Plan:           plan,
	}
	log.Info("opportunity executed",
		slog.String("tx_hash", txHash),
		slog.String("storage_hash", storageHash),
	)

	p.afterExecution(ctx, ChannelArb, result, domain.ExecutionRecord{
		Kind:           domain.ExecutionKindArbitrage,
		Agent:          in.Agent,
		Asset:          in.Asset,
		Amount:         amount,
		Price:          best.Source.Ask,
		ExpectedProfit: best.ExpectedProfit,
		StorageHash:    storageHash,
		DecisionHash:   decisionHash,
		TxHash:         txHash,
		RequestID:      inf.RequestID,
		Provider:       inf.Provider,
	}, EventArbExecuted, "Arbitrage executed",
		fmt.Sprintf("%s: buy %s @ %.6f, sell %s @ %.6f, expected profit %.6f\ntx %s",
			in.Asset, best.Source.Venue(), best.Source.Ask, best.Target.Venue(), best.Target.Bid, best.ExpectedProfit, txHash))

	return result, nil
}

// commit encodes and submits executeTrade, then waits for the receipt.
func (p *Pipeline) commit(ctx context.Context, agent, asset string, amount, price float64, isBuy bool, decisionHash, proof string) (string, error) {
	fixedAmount, err := chain.ToFixed(amount)
	if err != nil {
		return "", stepError("encode amount", err)
	}
	fixedPrice, err := chain.ToFixed(price)
	if err != nil {
		return "", stepError("encode price", err)
	}

	tx, err := p.deps.Contract.ExecuteTrade(ctx, domain.TradeCall{
		Agent:        agent,
		AssetAddress: asset,
		Amount:       fixedAmount,
		Price:        fixedPrice,
		IsBuy:        isBuy,
		DecisionHash: decisionHash,
		Proof:        proofBytes(proof),
	})
	if err != nil {
		return "", stepError("submit trade", err)
	}

	receipt, err := tx.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("executor: await receipt for %s: %w", tx.Hash(), err)
	}
	if receipt.TxHash != "" {
		return receipt.TxHash, nil
	}
	return tx.Hash(), nil
}

// stepError wraps a failure past request validation. An invalid-input error
// raised this late is a pipeline failure, so the sentinel is dropped.
func stepError(step string, err error) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("executor: %s: %s", step, err.Error())
	}
	return fmt.Errorf("executor: %s: %w", step, err)
}

// afterExecution fans a committed execution out to the optional sinks.
// Failures are logged and never reach the caller.
func (p *Pipeline) afterExecution(ctx context.Context, channel string, payload any, rec domain.ExecutionRecord, event, title, message string) {
	if p.deps.Bus != nil {
		if data, err := json.Marshal(payload); err == nil {
			if err := p.deps.Bus.Publish(ctx, channel, data); err != nil {
				p.logger.Warn("publish execution failed", slog.String("channel", channel), slog.String("error", err.Error()))
			}
		}
	}

	if p.deps.Executions != nil {
		rec.ID = uuid.NewString()
		rec.CreatedAt = p.now().UTC()
		if err := p.deps.Executions.Insert(ctx, rec); err != nil {
			p.logger.Warn("record execution failed", slog.String("tx_hash", rec.TxHash), slog.String("error", err.Error()))
		}
	}

	if p.deps.Audit != nil {
		detail := map[string]any{
			"kind":         string(rec.Kind),
			"agent":        rec.Agent,
			"asset":        rec.Asset,
			"amount":       rec.Amount,
			"price":        rec.Price,
			"tx_hash":      rec.TxHash,
			"storage_hash": rec.StorageHash,
			"request_id":   rec.RequestID,
		}
		if err := p.deps.Audit.Log(ctx, event, detail); err != nil {
			p.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}

	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.Notify(ctx, event, title, message); err != nil {
			p.logger.Warn("notify failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
}
