package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbagent/internal/arbitrage"
	"github.com/alanyoungcy/arbagent/internal/domain"
)

const (
	agentAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	assetAddr = "0x1111111111111111111111111111111111111111"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeFinder struct {
	rec    *recorder
	opps   []domain.ArbitrageOpportunity
	err    error
	params arbitrage.Params
}

func (f *fakeFinder) FindOpportunities(_ context.Context, p arbitrage.Params) ([]domain.ArbitrageOpportunity, error) {
	f.rec.add("scan")
	f.params = p
	return f.opps, f.err
}

type fakeBroker struct {
	rec *recorder
	req domain.InferenceRequest
	res domain.InferenceResult
	err error
}

func (f *fakeBroker) RunInference(_ context.Context, req domain.InferenceRequest) (domain.InferenceResult, error) {
	f.rec.add("inference")
	f.req = req
	return f.res, f.err
}

type fakeStore struct {
	rec    *recorder
	stored []any
	err    error
}

func (f *fakeStore) StoreObject(_ context.Context, obj any) (string, error) {
	f.rec.add("store")
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, obj)
	return fmt.Sprintf("0x%064x", len(f.stored)), nil
}

func (f *fakeStore) Load(context.Context, string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

type fakeTx struct {
	hash    string
	receipt domain.TxReceipt
	err     error
}

func (t *fakeTx) Hash() string { return t.hash }
func (t *fakeTx) Wait(context.Context) (domain.TxReceipt, error) {
	return t.receipt, t.err
}

type fakeContract struct {
	rec     *recorder
	call    domain.TradeCall
	err     error
	waitErr error
}

func (f *fakeContract) ExecuteTrade(_ context.Context, call domain.TradeCall) (domain.SubmittedTx, error) {
	f.rec.add("chain")
	f.call = call
	if f.err != nil {
		return nil, f.err
	}
	return &fakeTx{
		hash:    "0xsubmitted",
		receipt: domain.TxReceipt{TxHash: "0xmined", BlockNumber: 9, Status: 1},
		err:     f.waitErr,
	}, nil
}

type fakeBus struct {
	published map[string][][]byte
	err       error
}

func (b *fakeBus) Publish(_ context.Context, ch string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[ch] = append(b.published[ch], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type fakeExecStore struct {
	records []domain.ExecutionRecord
	err     error
}

func (s *fakeExecStore) Insert(_ context.Context, rec domain.ExecutionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeExecStore) GetByTxHash(context.Context, string) (domain.ExecutionRecord, error) {
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *fakeExecStore) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return s.records, nil
}

type fakeAudit struct{ events []string }

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct{ events []string }

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	rec      *recorder
	finder   *fakeFinder
	broker   *fakeBroker
	store    *fakeStore
	contract *fakeContract
	bus      *fakeBus
	execs    *fakeExecStore
	audit    *fakeAudit
	notifier *fakeNotifier
	pipeline *Pipeline
}

func testOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Asset:          "ETH/USDC",
		Source:         domain.PricePoint{Chain: "bsc", Exchange: "binance", Asset: "ETH/USDC", Bid: 99, Ask: 100, Timestamp: 1},
		Target:         domain.PricePoint{Chain: "ethereum", Exchange: "coinbase", Asset: "ETH/USDC", Bid: 104, Ask: 105, Timestamp: 1},
		Spread:         0.04,
		Amount:         0.1,
		ExpectedProfit: 0.1552,
		Slippage:       0.01,
		FeesBps:        20,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:    rec,
		finder: &fakeFinder{rec: rec, opps: []domain.ArbitrageOpportunity{testOpportunity()}},
		broker: &fakeBroker{rec: rec, res: domain.InferenceResult{
			RequestID: "req-1",
			Output:    `{"decision":"execute"}`,
			Proof:     "0xbeef",
			ModelHash: "0xmodel",
			Provider:  "0xprovider",
		}},
		store:    &fakeStore{rec: rec},
		contract: &fakeContract{rec: rec},
		bus:      &fakeBus{},
		execs:    &fakeExecStore{},
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
	h.pipeline = NewPipeline(Deps{
		Scanner:    h.finder,
		Broker:     h.broker,
		Store:      h.store,
		Contract:   h.contract,
		Bus:        h.bus,
		Executions: h.execs,
		Audit:      h.audit,
		Notifier:   h.notifier,
	}, Config{ArbAssetAddress: assetAddr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.pipeline.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

func arbInput() ExecuteInput {
	return ExecuteInput{Agent: agentAddr, Asset: "ETH/USDC", Amount: 0.1, Model: "llama-3.3-70b-instruct"}
}

// ---------------------------------------------------------------------------
// arbitrage path
// ---------------------------------------------------------------------------

func TestExecute_HappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"scan", "inference", "store", "chain"}, h.rec.list())
	assert.Equal(t, "ETH/USDC", h.finder.params.Asset)
	assert.Equal(t, 0.1, h.finder.params.Amount)

	// inference request
	assert.True(t, h.broker.req.GenerateProof)
	in, ok := h.broker.req.Input.(arbInferenceInput)
	require.True(t, ok)
	assert.Equal(t, "arbitrage-execution", in.Task)
	require.NotNil(t, in.Source.Ask)
	assert.Equal(t, 100.0, *in.Source.Ask)
	assert.Nil(t, in.Source.Bid)
	require.NotNil(t, in.Target.Bid)
	assert.Equal(t, 104.0, *in.Target.Bid)

	// plan
	require.Len(t, h.store.stored, 1)
	plan, ok := h.store.stored[0].(domain.Plan)
	require.True(t, ok)
	assert.Equal(t, domain.PlanTypeArbitrage, plan.Type)
	assert.Equal(t, "0xmodel", plan.ModelHash)
	assert.Equal(t, "req-1", plan.RequestID)
	assert.Equal(t, `{"decision":"execute"}`, plan.Decision)
	assert.Equal(t, int64(1700000000000), plan.Timestamp)
	assert.Equal(t, plan, res.Plan)

	// commitment
	want, err := CommitmentHash(domain.DecisionEnvelope{
		Asset:       "ETH/USDC",
		Amount:      0.1,
		Source:      res.Opportunity.Source.BuySide(),
		Target:      res.Opportunity.Target.SellSide(),
		ModelHash:   "0xmodel",
		RequestID:   "req-1",
		Provider:    "0xprovider",
		StorageHash: res.StorageHash,
		Timestamp:   plan.Timestamp,
	})
	require.NoError(t, err)
	assert.Equal(t, want, res.AIDecisionHash)

	// chain call
	call := h.contract.call
	assert.Equal(t, agentAddr, call.Agent)
	assert.Equal(t, assetAddr, call.AssetAddress)
	assert.Equal(t, 0, big.NewInt(100_000).Cmp(call.Amount))
	assert.Equal(t, 0, big.NewInt(100_000_000).Cmp(call.Price))
	assert.True(t, call.IsBuy)
	assert.Equal(t, res.AIDecisionHash, call.DecisionHash)
	assert.Equal(t, []byte{0xbe, 0xef}, call.Proof)

	assert.Equal(t, "0xmined", res.TxHash)
	assert.Equal(t, testOpportunity(), res.Opportunity)

	// sinks
	require.Len(t, h.bus.published[ChannelArb], 1)
	var published domain.ExecutionResult
	require.NoError(t, json.Unmarshal(h.bus.published[ChannelArb][0], &published))
	assert.Equal(t, res.TxHash, published.TxHash)
	require.Len(t, h.execs.records, 1)
	assert.Equal(t, domain.ExecutionKindArbitrage, h.execs.records[0].Kind)
	assert.Equal(t, "0xmined", h.execs.records[0].TxHash)
	assert.NotEmpty(t, h.execs.records[0].ID)
	assert.Equal(t, []string{EventArbExecuted}, h.audit.events)
	assert.Equal(t, []string{EventArbExecuted}, h.notifier.events)
}

func TestExecute_NoOpportunityHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	h.finder.opps = nil

	_, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoOpportunity)
	assert.Equal(t, "no profitable opportunity found", err.Error())

	assert.Equal(t, []string{"scan"}, h.rec.list())
	assert.Empty(t, h.bus.published)
	assert.Empty(t, h.execs.records)
	assert.Empty(t, h.notifier.events)
}

func TestExecute_SuppliedOpportunitySkipsScan(t *testing.T) {
	h := newHarness(t)
	opp := testOpportunity()

	in := arbInput()
	in.Amount = 0
	res, err := h.pipeline.Execute(context.Background(), in, &opp)
	require.NoError(t, err)

	assert.Equal(t, []string{"inference", "store", "chain"}, h.rec.list())
	assert.Equal(t, 0.1, res.Plan.Amount)
	assert.Equal(t, 0.01, res.Plan.Slippage)
	assert.Equal(t, 20.0, res.Plan.FeesBps)
}

func TestExecute_StepFailuresAbort(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name  string
		setup func(h *harness)
		calls []string
		is    error
	}{
		{
			name:  "scan",
			setup: func(h *harness) { h.finder.err = boom },
			calls: []string{"scan"},
			is:    boom,
		},
		{
			name:  "inference",
			setup: func(h *harness) { h.broker.err = boom },
			calls: []string{"scan", "inference"},
			is:    boom,
		},
		{
			name:  "storage",
			setup: func(h *harness) { h.store.err = boom },
			calls: []string{"scan", "inference", "store"},
			is:    boom,
		},
		{
			name:  "submit",
			setup: func(h *harness) { h.contract.err = boom },
			calls: []string{"scan", "inference", "store", "chain"},
			is:    boom,
		},
		{
			name:  "confirmation timeout",
			setup: func(h *harness) { h.contract.waitErr = domain.ErrConfirmTimeout },
			calls: []string{"scan", "inference", "store", "chain"},
			is:    domain.ErrConfirmTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			_, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.is)
			assert.Equal(t, tc.calls, h.rec.list())
			assert.Empty(t, h.execs.records)
			assert.Empty(t, h.notifier.events)
		})
	}
}

func TestExecute_SinkFailuresIgnored(t *testing.T) {
	h := newHarness(t)
	h.bus.err = errors.New("redis down")
	h.execs.err = errors.New("pg down")

	res, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "0xmined", res.TxHash)
}

func TestExecute_EmptyProofSentinel(t *testing.T) {
	h := newHarness(t)
	h.broker.res.Proof = ""

	_, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.NoError(t, err)
	assert.NotNil(t, h.contract.call.Proof)
	assert.Empty(t, h.contract.call.Proof)
}

func TestExecute_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Execute(context.Background(), ExecuteInput{Asset: "ETH/USDC"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in := arbInput()
	in.Amount = -1
	_, err = h.pipeline.Execute(context.Background(), in, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, h.rec.list())
}

func TestExecute_NonAddressAgentRejectedUpFront(t *testing.T) {
	h := newHarness(t)
	in := arbInput()
	in.Agent = "alice"

	_, err := h.pipeline.Execute(context.Background(), in, nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "alice")
	assert.Empty(t, h.rec.list())
	assert.Empty(t, h.store.stored)
}

func TestExecute_ExplicitZeroCostsHonoured(t *testing.T) {
	h := newHarness(t)
	zero := 0.0
	in := arbInput()
	in.Slippage = &zero
	in.FeesBps = &zero

	res, err := h.pipeline.Execute(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Zero(t, h.finder.params.Slippage)
	assert.Zero(t, h.finder.params.FeesBps)
	assert.Equal(t, arbitrage.DefaultMinSpread, h.finder.params.MinSpread)
	assert.Zero(t, res.Plan.Slippage)
	assert.Zero(t, res.Plan.FeesBps)
}

func TestExecute_OmittedCostsUseDefaults(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, arbitrage.DefaultParams("ETH/USDC").Slippage, h.finder.params.Slippage)
	assert.Equal(t, arbitrage.DefaultParams("ETH/USDC").FeesBps, h.finder.params.FeesBps)
}

func TestExecute_LateInvalidInputIsPipelineFailure(t *testing.T) {
	h := newHarness(t)
	h.contract.err = fmt.Errorf("chain: %w: decision hash is not 32 bytes", domain.ErrInvalidInput)

	_, err := h.pipeline.Execute(context.Background(), arbInput(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "decision hash")
	assert.Equal(t, []string{"scan", "inference", "store", "chain"}, h.rec.list())
}

func TestCommitmentHash_Deterministic(t *testing.T) {
	opp := testOpportunity()
	env := domain.DecisionEnvelope{
		Asset:       "ETH/USDC",
		Amount:      0.1,
		Source:      opp.Source.BuySide(),
		Target:      opp.Target.SellSide(),
		ModelHash:   "0xmodel",
		RequestID:   "req-1",
		Provider:    "0xprovider",
		StorageHash: "0xstorage",
		Timestamp:   1700000000000,
	}
	a, err := CommitmentHash(env)
	require.NoError(t, err)
	b, err := CommitmentHash(env)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, a)

	env.Timestamp++
	c, err := CommitmentHash(env)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestProofBytes(t *testing.T) {
	assert.Equal(t, []byte{}, proofBytes(""))
	assert.Equal(t, []byte{}, proofBytes("0x"))
	assert.Equal(t, []byte{0x01, 0x02}, proofBytes("0x0102"))
	assert.Equal(t, []byte("not-hex"), proofBytes("not-hex"))
}

// ---------------------------------------------------------------------------
// direct trades
// ---------------------------------------------------------------------------

func tradeRequest() domain.TradeRequest {
	return domain.TradeRequest{
		Agent:           agentAddr,
		Asset:           "ETH/USDC",
		Amount:          2,
		Price:           3999.5,
		IsBuy:           false,
		Model:           "deepseek-r1-70b",
		DecisionPayload: map[string]any{"signal": "overbought"},
	}
}

func TestExecuteTrade_HappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.ExecuteTrade(context.Background(), tradeRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"inference", "store", "chain"}, h.rec.list())

	in, ok := h.broker.req.Input.(tradeInferenceInput)
	require.True(t, ok)
	assert.Equal(t, "trade-execution", in.Task)
	assert.Equal(t, "sell", in.Side)
	assert.Equal(t, "overbought", in.Context["signal"])

	plan, ok := h.store.stored[0].(domain.TradePlan)
	require.True(t, ok)
	assert.Equal(t, domain.PlanTypeDirectTrade, plan.Type)

	call := h.contract.call
	assert.False(t, call.IsBuy)
	assert.Equal(t, assetAddr, call.AssetAddress)
	assert.Equal(t, 0, big.NewInt(2_000_000).Cmp(call.Amount))
	assert.Equal(t, 0, big.NewInt(3_999_500_000).Cmp(call.Price))

	assert.Equal(t, "0xmined", res.TxHash)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "0xprovider", res.Provider)
	assert.Equal(t, call.DecisionHash, res.AIDecisionHash)

	require.Len(t, h.bus.published[ChannelTrades], 1)
	assert.Equal(t, domain.ExecutionKindTrade, h.execs.records[0].Kind)
	assert.Equal(t, []string{EventTradeExecuted}, h.notifier.events)
}

func TestExecuteTrade_ExplicitAssetAddress(t *testing.T) {
	h := newHarness(t)
	req := tradeRequest()
	req.AssetAddress = "0x2222222222222222222222222222222222222222"

	_, err := h.pipeline.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.AssetAddress, h.contract.call.AssetAddress)
}

func TestExecuteTrade_Dedup(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.ExecuteTrade(context.Background(), tradeRequest())
	require.NoError(t, err)

	_, err = h.pipeline.ExecuteTrade(context.Background(), tradeRequest())
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	other := tradeRequest()
	other.Amount = 3
	_, err = h.pipeline.ExecuteTrade(context.Background(), other)
	assert.NoError(t, err)
}

func TestExecuteTrade_FailureReleasesDedup(t *testing.T) {
	h := newHarness(t)
	h.broker.err = errors.New("provider offline")

	_, err := h.pipeline.ExecuteTrade(context.Background(), tradeRequest())
	require.Error(t, err)

	h.broker.err = nil
	_, err = h.pipeline.ExecuteTrade(context.Background(), tradeRequest())
	assert.NoError(t, err)
}

func TestExecuteTrade_Validation(t *testing.T) {
	h := newHarness(t)
	req := tradeRequest()
	req.Price = 0

	_, err := h.pipeline.ExecuteTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, h.rec.list())
}

func TestExecuteTrade_AddressesValidatedUpFront(t *testing.T) {
	cases := map[string]func(r *domain.TradeRequest){
		"agent":         func(r *domain.TradeRequest) { r.Agent = "alice" },
		"asset address": func(r *domain.TradeRequest) { r.AssetAddress = "0x123" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			req := tradeRequest()
			mutate(&req)

			_, err := h.pipeline.ExecuteTrade(context.Background(), req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, h.rec.list())
		})
	}
}

func TestDedup_Expiry(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Zero(t, d.Len())
	assert.False(t, d.IsDuplicate("k"))
}
