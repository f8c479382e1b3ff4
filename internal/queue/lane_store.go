package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/store"
)

// KeyPrefix is prepended to the lane name to form the list key.
const KeyPrefix = "notification_queue:"

// Key returns the store key holding lane.
func Key(lane domain.Lane) string {
	return KeyPrefix + string(lane)
}

// PopResult is what one Pop call drained from a lane.
type PopResult struct {
	Notifications []domain.Notification
	// Dropped counts malformed entries removed from the lane and discarded.
	Dropped int
}

// LaneStore is the pending queue store. Each call maps onto a single atomic
// list operation, so concurrent schedulers never pop the same entry twice.
type LaneStore struct {
	kv     store.KV
	logger *zap.Logger
	now    func() time.Time
}

func NewLaneStore(kv store.KV, logger *zap.Logger) *LaneStore {
	return &LaneStore{kv: kv, logger: logger, now: time.Now}
}

// WithClock overrides the clock used to stamp enqueued_at. Returns s.
func (s *LaneStore) WithClock(now func() time.Time) *LaneStore {
	s.now = now
	return s
}

// Pop removes up to max notifications from the head of lane in FIFO order.
// It never blocks and returns an empty result for an empty lane.
func (s *LaneStore) Pop(ctx context.Context, lane domain.Lane, max int) (PopResult, error) {
	var res PopResult
	if max <= 0 {
		return res, nil
	}

	raws, err := s.kv.PopHead(ctx, Key(lane), max)
	if err != nil {
		return res, fmt.Errorf("pop %s lane: %w", lane, err)
	}

	now := s.now()
	res.Notifications = make([]domain.Notification, 0, len(raws))
	for _, raw := range raws {
		n, err := Decode([]byte(raw), lane, now)
		if err != nil {
			s.logger.Warn("dropping malformed notification",
				zap.String("lane", string(lane)),
				zap.Error(err),
				zap.Int("size", len(raw)),
			)
			res.Dropped++
			continue
		}
		n.Source = lane
		res.Notifications = append(res.Notifications, n)
	}
	return res, nil
}

// Push appends n to the tail of lane.
func (s *LaneStore) Push(ctx context.Context, lane domain.Lane, n domain.Notification) error {
	if err := s.kv.PushTail(ctx, Key(lane), string(n.Payload)); err != nil {
		return fmt.Errorf("push %s lane: %w", lane, err)
	}
	return nil
}

// PushRaw appends already-encoded records to the tail of lane in order.
func (s *LaneStore) PushRaw(ctx context.Context, lane domain.Lane, payloads ...[]byte) error {
	values := make([]string, len(payloads))
	for i, p := range payloads {
		values[i] = string(p)
	}
	if err := s.kv.PushTail(ctx, Key(lane), values...); err != nil {
		return fmt.Errorf("push %s lane: %w", lane, err)
	}
	return nil
}

// Requeue returns ns to the head of lane so that ns[0] is popped next.
func (s *LaneStore) Requeue(ctx context.Context, lane domain.Lane, ns []domain.Notification) error {
	values := make([]string, len(ns))
	for i, n := range ns {
		values[i] = string(n.Payload)
	}
	if err := s.kv.PushHead(ctx, Key(lane), values...); err != nil {
		return fmt.Errorf("requeue %s lane: %w", lane, err)
	}
	return nil
}

// Depths returns the current length of every pending lane.
func (s *LaneStore) Depths(ctx context.Context) (map[domain.Lane]int64, error) {
	depths := make(map[domain.Lane]int64, len(domain.Lanes))
	for _, lane := range domain.Lanes {
		n, err := s.kv.Len(ctx, Key(lane))
		if err != nil {
			return nil, fmt.Errorf("depth of %s lane: %w", lane, err)
		}
		depths[lane] = n
	}
	return depths, nil
}
