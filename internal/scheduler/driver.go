// Package scheduler runs scheduling cycles: drain the pending lanes, admit
// regular notifications through the per-user rate limit, batch and emit,
// then sweep stale state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/dispatch"
	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/queue"
	"github.com/notifyhub/notification-scheduler/internal/ratelimiter"
)

// DefaultBatchSize is how many notifications one cycle drains per lane.
const DefaultBatchSize = 50

// Lanes is the pending queue store as the driver uses it.
type Lanes interface {
	Pop(ctx context.Context, lane domain.Lane, max int) (queue.PopResult, error)
	Push(ctx context.Context, lane domain.Lane, n domain.Notification) error
	Requeue(ctx context.Context, lane domain.Lane, ns []domain.Notification) error
}

// Admitter decides whether a user may receive one more regular notification.
type Admitter interface {
	Admit(ctx context.Context, userID string) (ratelimiter.Decision, error)
}

// Emitter sends batches and returns failed ones to their lanes.
type Emitter interface {
	Emit(ctx context.Context, batches []domain.Batch) dispatch.EmitResult
}

// Sweeper performs one cleanup pass.
type Sweeper interface {
	Sweep(ctx context.Context) domain.SweepReport
}

// Config controls a single cycle.
type Config struct {
	// BatchSize caps how many notifications are drained from the priority
	// lane, and separately from the regular and deferred lanes combined.
	BatchSize int
}

// Driver keeps no queue state between cycles. Several drivers may run cycles
// against the same store at once; pops and admission are atomic there.
type Driver struct {
	lanes   Lanes
	admit   Admitter
	batcher *dispatch.Batcher
	emitter Emitter
	sweeper Sweeper
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	// turn alternates which lane goes first when the budget is a single
	// notification.
	turn atomic.Uint64
}

func NewDriver(
	lanes Lanes,
	admit Admitter,
	batcher *dispatch.Batcher,
	emitter Emitter,
	sweeper Sweeper,
	cfg Config,
	logger *zap.Logger,
) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Driver{
		lanes:   lanes,
		admit:   admit,
		batcher: batcher,
		emitter: emitter,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock. Returns d.
func (d *Driver) WithClock(now func() time.Time) *Driver {
	d.now = now
	return d
}

// cycle carries the working set of one RunCycle call between phases.
type cycle struct {
	report   domain.CycleReport
	log      *zap.Logger
	priority []domain.Notification
	regular  []domain.Notification
	admitted []domain.Notification
	batches  []domain.Batch
}

// RunCycle executes one full cycle. It never aborts early: a failing phase
// is recorded in the report and the cycle moves on, and the sweep runs no
// matter what happened before it.
func (d *Driver) RunCycle(ctx context.Context) domain.CycleReport {
	c := &cycle{
		report: domain.CycleReport{
			ID:        uuid.New().String(),
			StartedAt: d.now().UTC(),
		},
	}
	c.log = d.logger.With(zap.String("cycle_id", c.report.ID))

	d.drainPriority(ctx, c)
	d.drainRegular(ctx, c)
	d.admitRegular(ctx, c)
	d.batch(c)
	d.emit(ctx, c)
	d.sweep(ctx, c)

	c.report.FinishedAt = d.now().UTC()
	c.log.Info("cycle complete",
		zap.Int("priority_drained", c.report.PriorityDrained),
		zap.Int("regular_drained", c.report.RegularDrained),
		zap.Int("deferred_drained", c.report.DeferredDrained),
		zap.Int("admitted", c.report.Admitted),
		zap.Int("deferred", c.report.Deferred),
		zap.Int("dispatched", c.report.Dispatched),
		zap.Int("requeued", c.report.Requeued),
		zap.Bool("failed", c.report.Failed()),
		zap.Duration("duration", c.report.FinishedAt.Sub(c.report.StartedAt)),
	)
	return c.report
}

func (c *cycle) record(pr domain.PhaseReport, err error) {
	if err != nil {
		pr.Error = err.Error()
		c.log.Warn("cycle phase failed", zap.String("phase", string(pr.Phase)), zap.Error(err))
	}
	c.report.Phases = append(c.report.Phases, pr)
}

func (d *Driver) pop(ctx context.Context, lane domain.Lane, max int) (queue.PopResult, error) {
	if err := ctx.Err(); err != nil {
		return queue.PopResult{}, fmt.Errorf("pop %s lane: %w", lane, err)
	}
	return d.lanes.Pop(ctx, lane, max)
}

// drainPriority pops priority notifications. They bypass admission.
func (d *Driver) drainPriority(ctx context.Context, c *cycle) {
	res, err := d.pop(ctx, domain.LanePriority, d.cfg.BatchSize)
	c.priority = res.Notifications
	c.report.PriorityDrained = len(res.Notifications)
	c.report.IngestionErrors += res.Dropped

	c.record(domain.PhaseReport{
		Phase:     domain.PhaseDrainPriority,
		Succeeded: len(res.Notifications),
		Failed:    res.Dropped,
	}, err)
}

// drainRegular pops regular work with one shared budget. Deferred
// notifications go first, capped at half the budget so a backlog of
// deferrals cannot starve fresh regular traffic; any budget the regular lane
// leaves unused goes back to the deferred lane. A budget of one alternates
// between the two lanes from cycle to cycle.
func (d *Driver) drainRegular(ctx context.Context, c *cycle) {
	budget := d.cfg.BatchSize
	deferredShare := budget / 2
	if budget == 1 && d.turn.Add(1)%2 == 1 {
		deferredShare = 1
	}

	var errs []error
	failed := 0
	take := func(lane domain.Lane, max int) int {
		if max <= 0 {
			return 0
		}
		res, err := d.pop(ctx, lane, max)
		if err != nil {
			errs = append(errs, err)
		}
		failed += res.Dropped
		c.regular = append(c.regular, res.Notifications...)
		if lane == domain.LaneDeferred {
			c.report.DeferredDrained += len(res.Notifications)
		} else {
			c.report.RegularDrained += len(res.Notifications)
		}
		// Dropped entries were removed from the lane, so they use budget too.
		return len(res.Notifications) + res.Dropped
	}

	budget -= take(domain.LaneDeferred, deferredShare)
	budget -= take(domain.LaneRegular, budget)
	take(domain.LaneDeferred, budget)

	c.report.IngestionErrors += failed
	c.record(domain.PhaseReport{
		Phase:     domain.PhaseDrainRegular,
		Succeeded: len(c.regular),
		Failed:    failed,
	}, errors.Join(errs...))
}

// admitRegular checks every drained regular notification against the
// per-user limit. Denied ones go to the tail of the deferred lane. If the
// limiter itself fails, the notification is neither sent nor deferred but
// returned to the head of the lane it came from.
func (d *Driver) admitRegular(ctx context.Context, c *cycle) {
	var (
		unchecked []domain.Notification
		errs      []error
		failed    int
	)

	for _, n := range c.regular {
		c.report.RateLimiterCalls++
		dec, err := d.admit.Admit(ctx, n.UserID)
		if err != nil {
			errs = append(errs, err)
			failed++
			unchecked = append(unchecked, n)
			continue
		}
		if dec.Allowed {
			c.admitted = append(c.admitted, n)
			continue
		}

		c.log.Debug("notification deferred",
			zap.String("id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Int64("window_id", dec.WindowID),
		)
		if err := d.lanes.Push(context.WithoutCancel(ctx), domain.LaneDeferred, n); err != nil {
			errs = append(errs, err)
			failed++
			unchecked = append(unchecked, n)
			continue
		}
		c.report.Deferred++
	}
	c.report.Admitted = len(c.admitted)

	if len(unchecked) > 0 {
		requeued, lost := d.returnToSource(ctx, c, unchecked)
		c.report.Requeued += requeued
		c.report.Lost += lost
	}

	c.record(domain.PhaseReport{
		Phase:     domain.PhaseAdmit,
		Succeeded: len(c.admitted) + c.report.Deferred,
		Failed:    failed,
	}, errors.Join(errs...))
}

// returnToSource puts ns back at the head of the lanes they were drained
// from, keeping their relative order.
func (d *Driver) returnToSource(ctx context.Context, c *cycle, ns []domain.Notification) (requeued, lost int) {
	ctx = context.WithoutCancel(ctx)
	for _, lane := range domain.Lanes {
		var group []domain.Notification
		for _, n := range ns {
			if n.Source == lane {
				group = append(group, n)
			}
		}
		if len(group) == 0 {
			continue
		}
		if err := d.lanes.Requeue(ctx, lane, group); err != nil {
			c.log.Error("failed to return notifications to lane",
				zap.String("lane", string(lane)),
				zap.Int("count", len(group)),
				zap.Error(err),
			)
			lost += len(group)
			continue
		}
		requeued += len(group)
	}
	return requeued, lost
}

// batch groups priority and admitted regular notifications separately, so
// priority batches are emitted first.
func (d *Driver) batch(c *cycle) {
	now := d.now()
	c.batches = append(c.batches, d.batcher.Batch(c.priority, domain.LanePriority, c.report.ID, now)...)
	c.batches = append(c.batches, d.batcher.Batch(c.admitted, domain.LaneRegular, c.report.ID, now)...)

	c.record(domain.PhaseReport{
		Phase:     domain.PhaseBatch,
		Succeeded: len(c.batches),
	}, nil)
}

func (d *Driver) emit(ctx context.Context, c *cycle) {
	if len(c.batches) == 0 {
		c.record(domain.PhaseReport{Phase: domain.PhaseEmit}, nil)
		return
	}

	res := d.emitter.Emit(ctx, c.batches)
	c.report.BatchesEmitted = res.BatchesEmitted
	c.report.BatchesFailed = res.BatchesFailed
	c.report.Dispatched = res.Dispatched
	c.report.Requeued += res.Requeued
	c.report.Lost += res.Lost

	var err error
	if res.BatchesFailed > 0 {
		err = fmt.Errorf("%w: %d of %d batches, %d notifications requeued, %d lost",
			domain.ErrEmissionExhausted, res.BatchesFailed, len(c.batches), res.Requeued, res.Lost)
	}
	c.record(domain.PhaseReport{
		Phase:     domain.PhaseEmit,
		Succeeded: res.BatchesEmitted,
		Failed:    res.BatchesFailed,
	}, err)
}

func (d *Driver) sweep(ctx context.Context, c *cycle) {
	// The sweep runs even when the cycle's context is already done.
	r := d.sweeper.Sweep(context.WithoutCancel(ctx))
	c.report.Sweep = r

	var err error
	if r.Failures > 0 {
		err = fmt.Errorf("%d cleanup steps failed", r.Failures)
	}
	c.record(domain.PhaseReport{
		Phase:     domain.PhaseSweep,
		Succeeded: r.CountersDeleted + r.IndexPruned + r.HistoriesTrimmed + r.HistoriesExpired + r.EphemeralsExpired,
		Failed:    r.Failures,
	}, err)
}
