package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/arbagent/internal/arbitrage"
	"github.com/alanyoungcy/arbagent/internal/domain"
	"github.com/alanyoungcy/arbagent/internal/executor"
	"github.com/alanyoungcy/arbagent/internal/service"
)

// OpportunityFinder ranks the opportunities for one asset.
type OpportunityFinder interface {
	FindOpportunities(ctx context.Context, p arbitrage.Params) ([]domain.ArbitrageOpportunity, error)
}

// ArbExecutor runs the execution pipeline.
type ArbExecutor interface {
	Execute(ctx context.Context, in executor.ExecuteInput, opp *domain.ArbitrageOpportunity) (domain.ExecutionResult, error)
}

// ScannerControl is the part of the scanner service the API drives.
type ScannerControl interface {
	Start(ctx context.Context, cfg service.ScannerConfig) error
	Stop() bool
	Status() service.ScannerStatus
	Record(ctx context.Context, e domain.RecentEntry) domain.RecentEntry
	Recent() *service.RecentLog
}

// ArbHandler serves the arbitrage endpoints.
type ArbHandler struct {
	finder       OpportunityFinder
	exec         ArbExecutor
	scanner      ScannerControl
	defaultModel string
	logger       *slog.Logger
}

// NewArbHandler creates an ArbHandler. exec may be nil when no wallet is
// configured; execute then answers 503.
func NewArbHandler(finder OpportunityFinder, exec ArbExecutor, scanner ScannerControl, defaultModel string, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{
		finder:       finder,
		exec:         exec,
		scanner:      scanner,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Find returns every profitable opportunity for an asset, best first.
// GET /api/arbitrage/find?asset=ETH/USDC&minSpread=0.003&amount=0.1
func (h *ArbHandler) Find(w http.ResponseWriter, r *http.Request) {
	params, err := findParams(r)
	if err != nil {
		writeError(w, "invalid query", err)
		return
	}

	opps, err := h.finder.FindOpportunities(r.Context(), params)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: find opportunities failed",
			slog.String("asset", params.Asset),
			slog.String("error", err.Error()),
		)
		writePipelineError(w, "failed to find arbitrage opportunities", err)
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}

func findParams(r *http.Request) (arbitrage.Params, error) {
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	if asset == "" {
		return arbitrage.Params{}, fmt.Errorf("%w: asset is required", domain.ErrInvalidInput)
	}
	var (
		o   arbitrage.Overrides
		err error
	)
	if o.MinSpread, err = queryFloat(r, "minSpread"); err != nil {
		return arbitrage.Params{}, err
	}
	if o.Amount, err = queryFloat(r, "amount"); err != nil {
		return arbitrage.Params{}, err
	}
	if o.Slippage, err = queryFloat(r, "slippage"); err != nil {
		return arbitrage.Params{}, err
	}
	if o.FeesBps, err = queryFloat(r, "feesBps"); err != nil {
		return arbitrage.Params{}, err
	}
	return o.Apply(arbitrage.DefaultParams(asset)), nil
}

// Execute scans the asset and commits the best opportunity. The outcome is
// added to the recent operations log.
// POST /api/arbitrage/execute
func (h *ArbHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Message: "execution disabled",
			Error:   "no wallet configured",
		})
		return
	}

	var in executor.ExecuteInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	if in.Model == "" {
		in.Model = h.defaultModel
	}
	if err := in.Validate(); err != nil {
		writeError(w, "invalid execute request", err)
		return
	}

	res, err := h.exec.Execute(r.Context(), in, nil)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: arbitrage execution failed",
			slog.String("asset", in.Asset),
			slog.String("error", err.Error()),
		)
		// The request already passed validation, so every failure from
		// here on is a pipeline failure.
		h.record(r, domain.RecentEntry{Asset: in.Asset, Error: err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "arbitrage execution failed", Error: err.Error()})
		return
	}

	h.record(r, domain.RecentEntry{Asset: in.Asset, Result: &res})
	writeJSON(w, http.StatusOK, res)
}

func (h *ArbHandler) record(r *http.Request, e domain.RecentEntry) {
	if h.scanner != nil {
		h.scanner.Record(r.Context(), e)
	}
}

// Recent returns the recent operations log, most recent first.
// GET /api/arbitrage/recent
func (h *ArbHandler) Recent(w http.ResponseWriter, r *http.Request) {
	entries := []domain.RecentEntry{}
	if h.scanner != nil {
		entries = h.scanner.Recent().List()
	}
	writeJSON(w, http.StatusOK, entries)
}

// startScannerRequest is the body of POST /api/arbitrage/scanner/start.
type startScannerRequest struct {
	IntervalMs int64    `json:"intervalMs"`
	Assets     []string `json:"assets"`
	Agent      string   `json:"agent"`
	Model      string   `json:"model"`
	Provider   string   `json:"provider"`
	MinSpread  *float64 `json:"minSpread"`
	Amount     float64  `json:"amount"`
	Slippage   *float64 `json:"slippage"`
	FeesBps    *float64 `json:"feesBps"`
}

func (req startScannerRequest) config(defaultModel string) service.ScannerConfig {
	cfg := service.ScannerConfig{
		Enabled:   true,
		Interval:  time.Duration(req.IntervalMs) * time.Millisecond,
		Assets:    req.Assets,
		Agent:     req.Agent,
		Model:     req.Model,
		Provider:  req.Provider,
		MinSpread: req.MinSpread,
		Amount:    req.Amount,
		Slippage:  req.Slippage,
		FeesBps:   req.FeesBps,
	}
	if cfg.Agent != "" && cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return cfg
}

// StartScanner starts or restarts the background scanner.
// POST /api/arbitrage/scanner/start
func (h *ArbHandler) StartScanner(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "scanner unavailable", Error: "scanner not configured"})
		return
	}
	var req startScannerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	if req.IntervalMs < 0 {
		writeError(w, "invalid scanner config", fmt.Errorf("%w: intervalMs must not be negative", domain.ErrInvalidInput))
		return
	}
	if err := h.scanner.Start(r.Context(), req.config(h.defaultModel)); err != nil {
		writeError(w, "failed to start scanner", err)
		return
	}
	writeJSON(w, http.StatusOK, h.scanner.Status())
}

// StopScanner stops the background scanner.
// POST /api/arbitrage/scanner/stop
func (h *ArbHandler) StopScanner(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "scanner unavailable", Error: "scanner not configured"})
		return
	}
	stopped := h.scanner.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"status":  h.scanner.Status(),
	})
}

// ScannerStatus reports the scanner loop state.
// GET /api/arbitrage/scanner
func (h *ArbHandler) ScannerStatus(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeJSON(w, http.StatusOK, service.ScannerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.scanner.Status())
}
