package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// PlanStore reads stored plans back by content hash.
type PlanStore interface {
	Load(ctx context.Context, hash string) ([]byte, error)
	List(ctx context.Context, limit int) ([]domain.BlobInfo, error)
}

// StorageHandler serves stored plan envelopes.
type StorageHandler struct {
	plans  PlanStore
	logger *slog.Logger
}

// NewStorageHandler creates a StorageHandler.
func NewStorageHandler(plans PlanStore, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{plans: plans, logger: logger}
}

// GetPlan returns the stored plan JSON verbatim. A malformed hash is a 400
// and an unknown one a 404.
// GET /api/storage/{hash}
func (h *StorageHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	data, err := h.plans.Load(r.Context(), hash)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: load plan failed",
				slog.String("hash", hash),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, "failed to load plan", err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type storedPlan struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ListPlans returns the newest stored plans.
// GET /api/storage?limit=20
func (h *StorageHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	infos, err := h.plans.List(r.Context(), queryLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list plans failed", slog.String("error", err.Error()))
		writeError(w, "failed to list plans", err)
		return
	}
	out := make([]storedPlan, 0, len(infos))
	for _, info := range infos {
		out = append(out, storedPlan{Path: info.Path, Size: info.Size, LastModified: info.LastModified})
	}
	writeJSON(w, http.StatusOK, out)
}
