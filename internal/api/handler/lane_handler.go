package handler

import (
	"net/http"

	"github.com/notifyhub/notification-scheduler/internal/service"
)

// LaneHandler serves a human-readable JSON snapshot of the pending lanes.
// Raw Prometheus gauges are available at /metrics.
type LaneHandler struct {
	svc *service.IngestService
}

func NewLaneHandler(svc *service.IngestService) *LaneHandler {
	return &LaneHandler{svc: svc}
}

// GetLanes handles GET /api/v1/lanes
func (h *LaneHandler) GetLanes(w http.ResponseWriter, r *http.Request) {
	depths, err := h.svc.Depths(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	var total int64
	lanes := make(map[string]int64, len(depths))
	for lane, n := range depths {
		lanes[string(lane)] = n
		total += n
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"lanes": lanes,
		"total": total,
	})
}
