package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/store"
)

// OutboundPrefix namespaces the outbound delivery lists consumed by the
// channel processors.
const OutboundPrefix = "outbound_queue:"

// OutboundKey returns the list a lane's batches are delivered to.
func OutboundKey(lane domain.Lane) string {
	return OutboundPrefix + string(lane)
}

// RedisTransport appends every entry of a batch to the lane's outbound list
// in a single push, so a batch lands completely or not at all.
type RedisTransport struct {
	kv store.KV
}

func NewRedisTransport(kv store.KV) *RedisTransport {
	return &RedisTransport{kv: kv}
}

func (t *RedisTransport) Send(ctx context.Context, batch domain.Batch) error {
	values := make([]string, 0, len(batch.Entries))
	for _, e := range batch.Entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.ID, err)
		}
		values = append(values, string(b))
	}
	if err := t.kv.PushTail(ctx, OutboundKey(batch.Lane), values...); err != nil {
		return fmt.Errorf("push outbound batch: %w", err)
	}
	return nil
}

var _ Transport = (*RedisTransport)(nil)
