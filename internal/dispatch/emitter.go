package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/provider"
	"github.com/notifyhub/notification-scheduler/internal/ratelimiter"
)

// Requeuer returns notifications to the head of a pending lane.
type Requeuer interface {
	Requeue(ctx context.Context, lane domain.Lane, ns []domain.Notification) error
}

// EmitterConfig bounds the retry policy of one batch.
type EmitterConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff holds the delay before retry N at index N-1; the last entry
	// is reused for later retries.
	Backoff []time.Duration
}

// EmitResult summarises one Emit call.
type EmitResult struct {
	BatchesEmitted int
	BatchesFailed  int
	Dispatched     int
	Requeued       int
	// Lost counts notifications of failed batches that could not be
	// returned to their lane either.
	Lost     int
	Attempts int
}

// Emitter sends batches through a transport with a bounded retry policy.
type Emitter struct {
	transport provider.Transport
	lanes     Requeuer
	limiters  *ratelimiter.OutboundLimiters
	cfg       EmitterConfig
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewEmitter(
	transport provider.Transport,
	lanes Requeuer,
	limiters *ratelimiter.OutboundLimiters,
	cfg EmitterConfig,
	logger *zap.Logger,
) *Emitter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Emitter{
		transport: transport,
		lanes:     lanes,
		limiters:  limiters,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Emit sends every batch in order. A batch whose retries are exhausted is
// returned to the head of the lanes its notifications were drained from;
// batches already emitted stay emitted. Once an ordered batch fails, the
// remaining batches of its lane are held back and returned with it so the
// lane keeps its order.
func (e *Emitter) Emit(ctx context.Context, batches []domain.Batch) EmitResult {
	var res EmitResult
	var failed []domain.Notification
	halted := make(map[domain.Lane]bool)

	for _, b := range batches {
		if halted[b.Lane] {
			res.BatchesFailed++
			failed = append(failed, b.Notifications...)
			continue
		}

		attempts, err := e.send(ctx, b)
		res.Attempts += attempts
		if err == nil {
			res.BatchesEmitted++
			res.Dispatched += len(b.Entries)
			continue
		}

		e.logger.Warn("batch emission exhausted",
			zap.String("lane", string(b.Lane)),
			zap.Int("entries", len(b.Entries)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		res.BatchesFailed++
		failed = append(failed, b.Notifications...)
		if b.Ordered {
			halted[b.Lane] = true
		}
	}

	if len(failed) > 0 {
		requeued, lost := e.requeue(ctx, failed)
		res.Requeued += requeued
		res.Lost += lost
	}
	return res
}

// send performs up to 1+MaxRetries attempts and reports how many it made.
func (e *Emitter) send(ctx context.Context, b domain.Batch) (int, error) {
	var err error
	attempts := 0
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := e.sleep(ctx, e.backoff(attempt)); serr != nil {
				return attempts, fmt.Errorf("%w: %v (last error: %v)", domain.ErrEmissionExhausted, serr, err)
			}
		}
		if werr := e.limiters.Wait(ctx, b.Lane); werr != nil {
			return attempts, fmt.Errorf("%w: %v", domain.ErrEmissionExhausted, werr)
		}

		attempts++
		if err = e.transport.Send(ctx, b); err == nil {
			return attempts, nil
		}
		e.logger.Debug("batch send failed",
			zap.String("lane", string(b.Lane)),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}
	return attempts, fmt.Errorf("%w: %v", domain.ErrEmissionExhausted, err)
}

func (e *Emitter) backoff(retry int) time.Duration {
	if len(e.cfg.Backoff) == 0 {
		return 0
	}
	idx := retry - 1
	if idx >= len(e.cfg.Backoff) {
		idx = len(e.cfg.Backoff) - 1
	}
	return e.cfg.Backoff[idx]
}

// requeue returns ns to their source lanes, preserving relative order
// within each lane. It runs even if ctx is already cancelled.
func (e *Emitter) requeue(ctx context.Context, ns []domain.Notification) (requeued, lost int) {
	ctx = context.WithoutCancel(ctx)

	byLane := make(map[domain.Lane][]domain.Notification)
	var order []domain.Lane
	for _, n := range ns {
		lane := n.Source
		if lane == "" {
			lane = n.Lane
		}
		if _, seen := byLane[lane]; !seen {
			order = append(order, lane)
		}
		byLane[lane] = append(byLane[lane], n)
	}

	for _, lane := range order {
		group := byLane[lane]
		if err := e.lanes.Requeue(ctx, lane, group); err != nil {
			ids := make([]string, len(group))
			for i, n := range group {
				ids[i] = n.ID
			}
			e.logger.Error("failed to return notifications to lane",
				zap.String("lane", string(lane)),
				zap.Strings("ids", ids),
				zap.Error(err),
			)
			lost += len(group)
			continue
		}
		requeued += len(group)
	}
	return requeued, lost
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
