package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// DepthReader reports how many notifications wait in each lane.
type DepthReader interface {
	Depths(ctx context.Context) (map[domain.Lane]int64, error)
}

// DepthWorker samples lane depths on its own schedule so the gauges stay
// fresh even while cycles are slow or failing.
type DepthWorker struct {
	lanes    DepthReader
	interval time.Duration
	logger   *zap.Logger

	onDepth func(map[domain.Lane]int64)
}

func NewDepthWorker(
	lanes DepthReader,
	interval time.Duration,
	logger *zap.Logger,
	onDepth func(map[domain.Lane]int64),
) *DepthWorker {
	if onDepth == nil {
		onDepth = func(map[domain.Lane]int64) {}
	}
	return &DepthWorker{lanes: lanes, interval: interval, logger: logger, onDepth: onDepth}
}

// Run samples once immediately, then every interval until ctx is cancelled.
func (dw *DepthWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dw.interval)
	defer ticker.Stop()

	dw.logger.Info("depth worker started", zap.Duration("interval", dw.interval))
	dw.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			dw.logger.Info("depth worker stopping")
			return
		case <-ticker.C:
			dw.poll(ctx)
		}
	}
}

func (dw *DepthWorker) poll(ctx context.Context) {
	depths, err := dw.lanes.Depths(ctx)
	if err != nil {
		if ctx.Err() == nil {
			dw.logger.Warn("lane depth poll error", zap.Error(err))
		}
		return
	}
	dw.onDepth(depths)
}
