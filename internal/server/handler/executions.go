package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// ExecutionHandler serves the durable execution and audit logs. Both stores
// are optional.
type ExecutionHandler struct {
	executions domain.ExecutionStore
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(executions domain.ExecutionStore, audit domain.AuditStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, audit: audit, logger: logger}
}

func notConfigured(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotImplemented, errorResponse{
		Message: what + " unavailable",
		Error:   "postgres not configured",
	})
}

// ListExecutions returns the latest committed executions.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		notConfigured(w, "execution log")
		return
	}
	recs, err := h.executions.ListRecent(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed", slog.String("error", err.Error()))
		writeError(w, "failed to list executions", err)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetExecution returns one execution by transaction hash.
// GET /api/executions/{txHash}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		notConfigured(w, "execution log")
		return
	}
	rec, err := h.executions.GetByTxHash(r.Context(), r.PathValue("txHash"))
	if err != nil {
		writeError(w, "failed to load execution", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?limit=50&offset=0&since=2026-01-01T00:00:00Z
func (h *ExecutionHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		notConfigured(w, "audit log")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, "invalid query", err)
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, "failed to list audit log", err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	opts := domain.ListOpts{Limit: queryLimit(r, 50, 500)}
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 0 {
			return opts, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrInvalidInput)
		}
		opts.Offset = n
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidInput, bound.name)
		}
		*bound.dst = &t
	}
	return opts, nil
}
