package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/repository"
)

// CycleRunner runs one scheduling cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) domain.CycleReport
}

// CycleWorker runs a scheduling cycle every interval, stores the report and
// hands it to the metrics hook. Several CycleWorkers may share one store.
type CycleWorker struct {
	id       int
	driver   CycleRunner
	repo     repository.CycleRepository
	interval time.Duration
	logger   *zap.Logger

	onCycle func(domain.CycleReport)
}

// NewCycleWorker constructs a worker. onCycle is optional (nil = no-op).
func NewCycleWorker(
	id int,
	driver CycleRunner,
	repo repository.CycleRepository,
	interval time.Duration,
	logger *zap.Logger,
	onCycle func(domain.CycleReport),
) *CycleWorker {
	if onCycle == nil {
		onCycle = func(domain.CycleReport) {}
	}
	return &CycleWorker{
		id: id, driver: driver, repo: repo, interval: interval,
		logger: logger, onCycle: onCycle,
	}
}

// Run ticks every interval and runs one cycle per tick.
// Stops cleanly when ctx is cancelled; a cycle in flight finishes first.
func (w *CycleWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cycle worker started", zap.Int("id", w.id), zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cycle worker stopping", zap.Int("id", w.id))
			return
		case <-ticker.C:
			w.Trigger(ctx)
		}
	}
}

// Trigger runs one cycle immediately and returns its report.
func (w *CycleWorker) Trigger(ctx context.Context) domain.CycleReport {
	r := w.driver.RunCycle(ctx)
	w.onCycle(r)

	// A report is worth keeping even if shutdown began mid-cycle.
	if err := w.repo.Save(context.WithoutCancel(ctx), &r); err != nil {
		w.logger.Error("failed to save cycle report",
			zap.String("cycle_id", r.ID), zap.Error(err))
	}
	return r
}
