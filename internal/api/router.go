package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/api/handler"
	apimw "github.com/notifyhub/notification-scheduler/internal/api/middleware"
	"github.com/notifyhub/notification-scheduler/internal/repository"
	"github.com/notifyhub/notification-scheduler/internal/service"
)

// Deps bundles what the HTTP surface needs.
type Deps struct {
	Ingest  *service.IngestService
	Cycles  handler.CycleTrigger
	Reports repository.CycleRepository
	Store   handler.Pinger
	Metrics prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(8 << 20)) // a full batch of 1000 records
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(d.Ingest, logger)
	bh := handler.NewBatchHandler(d.Ingest, logger)
	lh := handler.NewLaneHandler(d.Ingest)
	ch := handler.NewCycleHandler(d.Cycles, d.Reports, logger)
	hh := handler.NewHealthHandler(d.Store)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications/batch", bh.CreateBatch)
		r.Post("/notifications", nh.Create)

		r.Get("/lanes", lh.GetLanes)

		r.Get("/cycles", ch.List)
		r.Post("/cycles", ch.Run)
		r.Get("/cycles/{id}", ch.GetByID)
	})

	return r
}
