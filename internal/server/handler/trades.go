package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// TradeExecutor commits direct trades.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error)
}

// TradeHandler serves POST /api/trades.
type TradeHandler struct {
	exec         TradeExecutor
	defaultModel string
	logger       *slog.Logger
}

// NewTradeHandler creates a TradeHandler. exec may be nil when no wallet is
// configured.
func NewTradeHandler(exec TradeExecutor, defaultModel string, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{exec: exec, defaultModel: defaultModel, logger: logger}
}

// ExecuteTrade runs a direct buy or sell through the execution pipeline.
// POST /api/trades
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Message: "execution disabled",
			Error:   "no wallet configured",
		})
		return
	}

	var req domain.TradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", err)
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}

	res, err := h.exec.ExecuteTrade(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trade execution failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeError(w, "trade execution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
