package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/repository"
)

// CycleTrigger runs one scheduling cycle on demand.
type CycleTrigger interface {
	Trigger(ctx context.Context) domain.CycleReport
}

// CycleHandler exposes cycle reports and manual cycle runs to operators.
type CycleHandler struct {
	trigger CycleTrigger
	repo    repository.CycleRepository
	logger  *zap.Logger
}

func NewCycleHandler(trigger CycleTrigger, repo repository.CycleRepository, logger *zap.Logger) *CycleHandler {
	return &CycleHandler{trigger: trigger, repo: repo, logger: logger}
}

// List handles GET /api/v1/cycles?limit=N (default 20, max 200).
func (h *CycleHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	reports, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list cycles failed", zap.Error(err))
		mapError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.CycleReport{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": reports, "limit": limit})
}

// GetByID handles GET /api/v1/cycles/{id}
func (h *CycleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	report, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Run handles POST /api/v1/cycles and returns the finished cycle's report.
func (h *CycleHandler) Run(w http.ResponseWriter, r *http.Request) {
	report := h.trigger.Trigger(r.Context())
	respondJSON(w, http.StatusOK, report)
}
