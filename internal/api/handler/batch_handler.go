package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-scheduler/internal/api/middleware"
	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/service"
)

// BatchHandler handles bulk ingestion.
type BatchHandler struct {
	svc    *service.IngestService
	logger *zap.Logger
}

func NewBatchHandler(svc *service.IngestService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{svc: svc, logger: logger}
}

// CreateBatch handles POST /api/v1/notifications/batch
//
// Accepts {"notifications": [...]} with up to 1000 records. Invalid
// records are reported per index and do not fail the request.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results, err := h.svc.EnqueueBatch(r.Context(), req.Notifications)
	if err != nil {
		h.logger.Warn("enqueue batch failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	accepted := 0
	for _, res := range results {
		if res.Error == "" {
			accepted++
		}
	}

	status := http.StatusCreated
	if accepted < len(results) {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, map[string]any{
		"accepted": accepted,
		"rejected": len(results) - accepted,
		"results":  results,
	})
}
