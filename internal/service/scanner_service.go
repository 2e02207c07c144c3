// Package service runs the background arbitrage scanner and keeps the recent
// operations log the dashboard reads.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arbagent/internal/arbitrage"
	"github.com/alanyoungcy/arbagent/internal/domain"
	"github.com/alanyoungcy/arbagent/internal/executor"
)

// ChannelScanner is the signal bus channel recent-log entries are published on.
const ChannelScanner = "scanner"

// EventScannerError is the notification event for a failed iteration.
const EventScannerError = "scanner_error"

// scannerLockKey serialises scanning across processes sharing one Redis.
const scannerLockKey = "arb:scanner"

const (
	defaultScanInterval = 15 * time.Second
	defaultScanAmount   = 0.1
)

var defaultScanAssets = []string{"ETH/USDC"}

// OpportunityFinder ranks the opportunities for an asset.
type OpportunityFinder interface {
	FindOpportunities(ctx context.Context, p arbitrage.Params) ([]domain.ArbitrageOpportunity, error)
}

// Executor commits an opportunity.
type Executor interface {
	Execute(ctx context.Context, in executor.ExecuteInput, opp *domain.ArbitrageOpportunity) (domain.ExecutionResult, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ScannerConfig configures one scanner loop.
type ScannerConfig struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"-"`
	Assets   []string      `json:"assets"`
	Agent    string        `json:"agent,omitempty"`
	Model    string        `json:"model"`
	Provider string        `json:"provider,omitempty"`
	// MinSpread, Slippage and FeesBps fall back to the arbitrage package
	// defaults only when nil; an explicit zero is used as is.
	MinSpread *float64 `json:"minSpread,omitempty"`
	Slippage  *float64 `json:"slippage,omitempty"`
	FeesBps   *float64 `json:"feesBps,omitempty"`
	// Amount is the notional per scan; zero means the scanner default.
	Amount float64 `json:"amount"`
}

func (c ScannerConfig) params(asset string) arbitrage.Params {
	p := arbitrage.Overrides{
		MinSpread: c.MinSpread,
		Slippage:  c.Slippage,
		FeesBps:   c.FeesBps,
	}.Apply(arbitrage.DefaultParams(asset))
	p.Amount = c.Amount
	return p
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.Interval <= 0 {
		c.Interval = defaultScanInterval
	}
	if len(c.Assets) == 0 {
		c.Assets = append([]string(nil), defaultScanAssets...)
	}
	if c.Amount == 0 {
		c.Amount = defaultScanAmount
	}
	return c
}

// ScannerDeps are the loop's collaborators. Executor is required only when
// an agent is configured. Lock, Bus and Notifier are optional.
type ScannerDeps struct {
	Scanner  OpportunityFinder
	Executor Executor
	Recent   *RecentLog
	Lock     domain.LockManager
	Bus      domain.Publisher
	Notifier Notifier
}

// ScannerStatus is a snapshot of the loop state.
type ScannerStatus struct {
	Running     bool     `json:"running"`
	IntervalMs  int64    `json:"intervalMs,omitempty"`
	Assets      []string `json:"assets,omitempty"`
	Executing   bool     `json:"executing"`
	StartedAt   int64    `json:"startedAt,omitempty"`
	LastRunAt   int64    `json:"lastRunAt,omitempty"`
	LastError   string   `json:"lastError,omitempty"`
	Iterations  int64    `json:"iterations"`
	Skipped     int64    `json:"skipped"`
	RecentCount int      `json:"recentCount"`
}

// ScannerService periodically scans the configured assets and either
// executes or records the best opportunity for each. At most one loop is
// active; at most one iteration runs at a time.
type ScannerService struct {
	deps   ScannerDeps
	logger *slog.Logger
	now    func() time.Time

	// life bounds in-flight iterations. Stop leaves it alone so a running
	// iteration completes; Shutdown cancels it.
	life       context.Context
	lifeCancel context.CancelFunc

	mu        sync.Mutex
	cfg       ScannerConfig
	running   bool
	stopLoop  context.CancelFunc
	startedAt time.Time
	lastRunAt time.Time
	lastErr   string

	busy       atomic.Bool
	iterations atomic.Int64
	skipped    atomic.Int64
	wg         sync.WaitGroup
}

// NewScannerService creates an idle ScannerService.
func NewScannerService(deps ScannerDeps, logger *slog.Logger) *ScannerService {
	if deps.Recent == nil {
		deps.Recent = NewRecentLog(DefaultRecentCapacity)
	}
	life, cancel := context.WithCancel(context.Background())
	return &ScannerService{
		deps:       deps,
		logger:     logger.With(slog.String("component", "arb_scanner_loop")),
		now:        time.Now,
		life:       life,
		lifeCancel: cancel,
	}
}

// Recent returns the recent operations log.
func (s *ScannerService) Recent() *RecentLog {
	return s.deps.Recent
}

// Start begins a loop with cfg, replacing any running loop. A disabled cfg is
// a no-op. The loop outlives ctx; use Stop or Shutdown to end it.
func (s *ScannerService) Start(ctx context.Context, cfg ScannerConfig) error {
	if !cfg.Enabled {
		s.logger.DebugContext(ctx, "scanner start ignored: disabled")
		return nil
	}
	if cfg.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", domain.ErrInvalidInput)
	}
	cfg = cfg.withDefaults()
	for _, asset := range cfg.Assets {
		if err := cfg.params(asset).Validate(); err != nil {
			return err
		}
	}
	if cfg.Agent != "" {
		if cfg.Model == "" || s.deps.Executor == nil {
			return fmt.Errorf("%w: executing scanner requires a model and an executor", domain.ErrInvalidInput)
		}
		if !common.IsHexAddress(cfg.Agent) {
			return fmt.Errorf("%w: agent %q is not an address", domain.ErrInvalidInput, cfg.Agent)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.life.Err() != nil {
		return errors.New("scanner: service shut down")
	}
	if s.stopLoop != nil {
		s.stopLoop()
	}

	loopCtx, cancel := context.WithCancel(s.life)
	s.stopLoop = cancel
	s.cfg = cfg
	s.running = true
	s.startedAt = s.now()

	s.wg.Add(1)
	go s.loop(loopCtx, cfg)

	s.logger.InfoContext(ctx, "scanner started",
		slog.Duration("interval", cfg.Interval),
		slog.Any("assets", cfg.Assets),
		slog.Bool("executing", cfg.Agent != ""),
	)
	return nil
}

// Stop cancels future iterations. An iteration in flight runs to completion.
// It reports whether a loop was running.
func (s *ScannerService) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLoop == nil {
		return false
	}
	s.stopLoop()
	s.stopLoop = nil
	s.running = false
	s.logger.Info("scanner stopped")
	return true
}

// Shutdown stops the loop, cancels any in-flight iteration and waits for the
// goroutines to exit or ctx to expire.
func (s *ScannerService) Shutdown(ctx context.Context) error {
	s.Stop()
	s.lifeCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scanner: shutdown: %w", ctx.Err())
	}
}

// Status returns a snapshot of the loop state.
func (s *ScannerService) Status() ScannerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ScannerStatus{
		Running:     s.running,
		Executing:   s.running && s.cfg.Agent != "",
		LastError:   s.lastErr,
		Iterations:  s.iterations.Load(),
		Skipped:     s.skipped.Load(),
		RecentCount: s.deps.Recent.Len(),
	}
	if s.running {
		st.IntervalMs = s.cfg.Interval.Milliseconds()
		st.Assets = append([]string(nil), s.cfg.Assets...)
		st.StartedAt = s.startedAt.UnixMilli()
	}
	if !s.lastRunAt.IsZero() {
		st.LastRunAt = s.lastRunAt.UnixMilli()
	}
	return st
}

func (s *ScannerService) loop(ctx context.Context, cfg ScannerConfig) {
	defer s.wg.Done()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.tick(cfg)
			}()
		}
	}
}

// tick runs one iteration unless another is still in flight.
func (s *ScannerService) tick(cfg ScannerConfig) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("scanner iteration skipped: previous iteration still running")
		return
	}
	defer s.busy.Store(false)

	ctx := s.life
	if s.deps.Lock != nil {
		unlock, err := s.deps.Lock.Acquire(ctx, scannerLockKey, cfg.Interval)
		if err != nil {
			s.skipped.Add(1)
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Debug("scanner iteration skipped: lock held elsewhere")
			} else {
				s.logger.Warn("scanner lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	_ = s.RunOnce(ctx, cfg)
}

// RunOnce scans every asset in cfg once. The first failure is recorded and
// notified, and aborts the remaining assets of this iteration.
func (s *ScannerService) RunOnce(ctx context.Context, cfg ScannerConfig) error {
	cfg = cfg.withDefaults()
	s.iterations.Add(1)

	err := s.scanAssets(ctx, cfg)

	s.mu.Lock()
	s.lastRunAt = s.now()
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	return err
}

func (s *ScannerService) scanAssets(ctx context.Context, cfg ScannerConfig) error {
	for _, asset := range cfg.Assets {
		opps, err := s.deps.Scanner.FindOpportunities(ctx, cfg.params(asset))
		if err != nil {
			s.fail(ctx, asset, fmt.Errorf("scanner: find %s: %w", asset, err))
			return err
		}
		if len(opps) == 0 {
			s.logger.DebugContext(ctx, "no opportunity", slog.String("asset", asset))
			continue
		}

		top := opps[0]
		if cfg.Agent == "" {
			s.record(ctx, domain.RecentEntry{Asset: asset, Top: &top})
			continue
		}

		res, err := s.deps.Executor.Execute(ctx, executor.ExecuteInput{
			Agent:    cfg.Agent,
			Asset:    asset,
			Amount:   top.Amount,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Slippage: cfg.Slippage,
			FeesBps:  cfg.FeesBps,
		}, &top)
		if err != nil {
			s.fail(ctx, asset, fmt.Errorf("scanner: execute %s: %w", asset, err))
			return err
		}
		s.record(ctx, domain.RecentEntry{Asset: asset, Result: &res})
	}
	return nil
}

// Record appends an entry produced outside the loop, such as an
// API-triggered execution, and publishes it like a loop entry.
func (s *ScannerService) Record(ctx context.Context, e domain.RecentEntry) domain.RecentEntry {
	return s.record(ctx, e)
}

func (s *ScannerService) record(ctx context.Context, e domain.RecentEntry) domain.RecentEntry {
	e = s.deps.Recent.Add(e)
	if s.deps.Bus == nil {
		return e
	}
	data, err := json.Marshal(e)
	if err != nil {
		return e
	}
	if err := s.deps.Bus.Publish(ctx, ChannelScanner, data); err != nil {
		s.logger.WarnContext(ctx, "publish scanner entry failed", slog.String("error", err.Error()))
	}
	return e
}

func (s *ScannerService) fail(ctx context.Context, asset string, err error) {
	s.logger.ErrorContext(ctx, "scanner iteration failed",
		slog.String("asset", asset),
		slog.String("error", err.Error()),
	)
	s.record(ctx, domain.RecentEntry{Asset: asset, Error: err.Error()})

	if s.deps.Notifier != nil {
		if nerr := s.deps.Notifier.Notify(ctx, EventScannerError, "Arbitrage scanner error",
			fmt.Sprintf("%s: %v", asset, err)); nerr != nil {
			s.logger.WarnContext(ctx, "notify scanner error failed", slog.String("error", nerr.Error()))
		}
	}
}
