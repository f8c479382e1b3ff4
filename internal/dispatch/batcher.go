// Package dispatch groups admitted notifications into provider-sized
// batches and emits them to the outbound lanes.
package dispatch

import (
	"fmt"
	"time"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// DefaultBatchSize mirrors the common queue-service limit of ten messages
// per send call.
const DefaultBatchSize = 10

// Batcher splits notifications into bounded outbound batches. Batching
// itself never fails.
type Batcher struct {
	size int
}

func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{size: size}
}

// DedupKey derives the deduplication key of the entry at position in a
// cycle's ordered dispatch sequence. The same inputs always give the same key.
// The cycle id keeps keys apart when two cycles dispatch within the same
// clock tick.
func DedupKey(userID, cycleID string, dispatchedAt time.Time, position int) string {
	return fmt.Sprintf("%s_%d_%d_%s", userID, dispatchedAt.UnixMilli(), position, cycleID)
}

// Batch groups ns, in order, into batches of at most the configured size.
// cycleID identifies the dispatching cycle and only feeds the dedup keys.
// Priority batches are ordered: every entry carries the user as its group
// key and a deduplication key, so an ordered transport can keep per-user
// order and reject redelivery. Regular batches carry neither.
func (b *Batcher) Batch(ns []domain.Notification, lane domain.Lane, cycleID string, now time.Time) []domain.Batch {
	if len(ns) == 0 {
		return nil
	}
	ordered := lane == domain.LanePriority

	batches := make([]domain.Batch, 0, (len(ns)+b.size-1)/b.size)
	for start := 0; start < len(ns); start += b.size {
		end := start + b.size
		if end > len(ns) {
			end = len(ns)
		}
		chunk := ns[start:end]

		batch := domain.Batch{
			Lane:          lane,
			Ordered:       ordered,
			Entries:       make([]domain.Entry, len(chunk)),
			Notifications: append([]domain.Notification(nil), chunk...),
		}
		for i, n := range chunk {
			e := domain.Entry{ID: n.ID, Body: n.Payload}
			if ordered {
				e.GroupKey = n.UserID
				e.DedupKey = DedupKey(n.UserID, cycleID, now, start+i)
			}
			batch.Entries[i] = e
		}
		batches = append(batches, batch)
	}
	return batches
}
