package handler

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-scheduler/internal/api/middleware"
	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/service"
)

// NotificationHandler handles single-record ingestion.
type NotificationHandler struct {
	svc    *service.IngestService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.IngestService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

type enqueuedResponse struct {
	ID         string      `json:"id"`
	Lane       domain.Lane `json:"lane"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Create handles POST /api/v1/notifications
//
// The body is the notification record itself. It is stored as sent, plus
// an id and enqueued_at when missing.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	n, err := h.svc.Enqueue(r.Context(), body)
	if err != nil {
		h.logger.Warn("enqueue notification failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, enqueuedResponse{ID: n.ID, Lane: n.Lane, EnqueuedAt: n.EnqueuedAt})
}
