package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/queue"
)

// MaxBatch is the largest number of records EnqueueBatch accepts.
const MaxBatch = 1000

// LaneWriter is the part of the pending queue store ingestion needs.
type LaneWriter interface {
	PushRaw(ctx context.Context, lane domain.Lane, payloads ...[]byte) error
	Depths(ctx context.Context) (map[domain.Lane]int64, error)
}

// IngestService validates producer records and appends them to the tail
// of their lane. Records are stamped with an id and enqueued_at on the way
// in, so every stored record already carries its identity.
type IngestService struct {
	lanes  LaneWriter
	logger *zap.Logger
	now    func() time.Time

	onAccepted func(domain.Lane)
	onRejected func()
}

// NewIngestService constructs the service. The hooks are optional (nil = no-op).
func NewIngestService(
	lanes LaneWriter,
	logger *zap.Logger,
	onAccepted func(domain.Lane),
	onRejected func(),
) *IngestService {
	if onAccepted == nil {
		onAccepted = func(domain.Lane) {}
	}
	if onRejected == nil {
		onRejected = func() {}
	}
	return &IngestService{
		lanes: lanes, logger: logger, now: time.Now,
		onAccepted: onAccepted, onRejected: onRejected,
	}
}

// WithClock overrides the clock used for enqueued_at. Returns s.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// Enqueue validates and stores one record.
func (s *IngestService) Enqueue(ctx context.Context, raw []byte) (domain.Notification, error) {
	n, err := s.prepare(raw)
	if err != nil {
		s.onRejected()
		return domain.Notification{}, err
	}
	if err := s.lanes.PushRaw(ctx, n.Lane, n.Payload); err != nil {
		return domain.Notification{}, fmt.Errorf("enqueue notification: %w", err)
	}
	s.onAccepted(n.Lane)
	return n, nil
}

// EnqueueBatch validates up to MaxBatch records and stores the valid ones
// in input order, one store call per lane. Invalid records do not stop the
// batch; each gets its own result.
func (s *IngestService) EnqueueBatch(ctx context.Context, raws []json.RawMessage) ([]domain.IngestResult, error) {
	if len(raws) == 0 {
		return nil, domain.ErrBatchEmpty
	}
	if len(raws) > MaxBatch {
		return nil, domain.ErrBatchTooLarge
	}

	results := make([]domain.IngestResult, len(raws))
	byLane := make(map[domain.Lane][]int)
	payloads := make(map[domain.Lane][][]byte)

	for i, raw := range raws {
		results[i].Index = i
		n, err := s.prepare(raw)
		if err != nil {
			s.onRejected()
			results[i].Error = err.Error()
			continue
		}
		results[i].ID = n.ID
		results[i].Lane = n.Lane
		byLane[n.Lane] = append(byLane[n.Lane], i)
		payloads[n.Lane] = append(payloads[n.Lane], n.Payload)
	}

	for _, lane := range []domain.Lane{domain.LanePriority, domain.LaneRegular} {
		idx := byLane[lane]
		if len(idx) == 0 {
			continue
		}
		if err := s.lanes.PushRaw(ctx, lane, payloads[lane]...); err != nil {
			s.logger.Error("batch enqueue failed",
				zap.String("lane", string(lane)), zap.Int("records", len(idx)), zap.Error(err))
			for _, i := range idx {
				results[i].ID = ""
				results[i].Error = err.Error()
			}
			continue
		}
		for range idx {
			s.onAccepted(lane)
		}
	}

	return results, nil
}

// Depths reports the current length of every pending lane.
func (s *IngestService) Depths(ctx context.Context) (map[domain.Lane]int64, error) {
	return s.lanes.Depths(ctx)
}

func (s *IngestService) prepare(raw []byte) (domain.Notification, error) {
	lane, err := queue.LaneFor(raw)
	if err != nil {
		return domain.Notification{}, err
	}
	return queue.Decode(raw, lane, s.now())
}
