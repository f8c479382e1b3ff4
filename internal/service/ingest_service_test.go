package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/queue"
	"github.com/notifyhub/notification-scheduler/internal/service"
	"github.com/notifyhub/notification-scheduler/internal/store"
)

var ingestTime = time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

func newService() (*service.IngestService, *store.Memory, *queue.LaneStore) {
	kv := store.NewMemory()
	lanes := queue.NewLaneStore(kv, zap.NewNop())
	svc := service.NewIngestService(lanes, zap.NewNop(), nil, nil).
		WithClock(func() time.Time { return ingestTime })
	return svc, kv, lanes
}

func TestIngestService_Enqueue(t *testing.T) {
	svc, _, lanes := newService()
	ctx := context.Background()

	n, err := svc.Enqueue(ctx, []byte(`{"user_id":"u1","type":"promo","title":"Sale","lane":"priority"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" || n.Lane != domain.LanePriority {
		t.Fatalf("unexpected notification %+v", n)
	}

	popped, _ := lanes.Pop(ctx, domain.LanePriority, 10)
	if len(popped.Notifications) != 1 {
		t.Fatalf("expected 1 stored, got %d", len(popped.Notifications))
	}
	got := popped.Notifications[0]
	if got.ID != n.ID {
		t.Fatalf("stored id %s differs from returned id %s", got.ID, n.ID)
	}
	if !got.EnqueuedAt.Equal(ingestTime) {
		t.Fatalf("expected enqueued_at %s, got %s", ingestTime, got.EnqueuedAt)
	}

	var body map[string]any
	_ = json.Unmarshal(got.Payload, &body)
	if body["title"] != "Sale" || body["type"] != "promo" {
		t.Fatalf("record fields lost: %v", body)
	}
}

func TestIngestService_Enqueue_DefaultsToRegular(t *testing.T) {
	svc, _, _ := newService()

	n, err := svc.Enqueue(context.Background(), []byte(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Lane != domain.LaneRegular {
		t.Fatalf("expected regular lane, got %s", n.Lane)
	}
}

func TestIngestService_Enqueue_Invalid(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	tests := []struct {
		raw  string
		want error
	}{
		{`{"title":"no user"}`, domain.ErrMissingUserID},
		{`{"user_id":"u1","lane":"deferred"}`, domain.ErrInvalidLane},
		{`{"user_id":"u1","lane":"urgent"}`, domain.ErrInvalidLane},
		{`not json`, domain.ErrMalformedRecord},
	}
	for _, tt := range tests {
		if _, err := svc.Enqueue(ctx, []byte(tt.raw)); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.raw, tt.want, err)
		}
	}
}

func TestIngestService_Enqueue_StoreError(t *testing.T) {
	svc, kv, _ := newService()
	kv.Failures[queue.Key(domain.LaneRegular)] = errors.New("connection refused")

	if _, err := svc.Enqueue(context.Background(), []byte(`{"user_id":"u1"}`)); err == nil {
		t.Fatal("expected store error")
	}
}

func TestIngestService_EnqueueBatch(t *testing.T) {
	svc, _, lanes := newService()
	ctx := context.Background()

	raws := []json.RawMessage{
		json.RawMessage(`{"id":"a","user_id":"u1"}`),
		json.RawMessage(`{"title":"missing user"}`),
		json.RawMessage(`{"id":"b","user_id":"u2","lane":"priority"}`),
		json.RawMessage(`{"id":"c","user_id":"u3"}`),
	}
	results, err := svc.EnqueueBatch(ctx, raws)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[1].Error == "" || results[1].ID != "" {
		t.Fatalf("expected record 1 rejected, got %+v", results[1])
	}
	if results[2].Lane != domain.LanePriority || results[2].ID != "b" {
		t.Fatalf("unexpected result %+v", results[2])
	}

	popped, _ := lanes.Pop(ctx, domain.LaneRegular, 10)
	var ids []string
	for _, n := range popped.Notifications {
		ids = append(ids, n.ID)
	}
	if fmt.Sprint(ids) != "[a c]" {
		t.Fatalf("expected regular records in input order, got %v", ids)
	}
}

func TestIngestService_EnqueueBatch_Limits(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	if _, err := svc.EnqueueBatch(ctx, nil); !errors.Is(err, domain.ErrBatchEmpty) {
		t.Fatalf("expected ErrBatchEmpty, got %v", err)
	}

	big := make([]json.RawMessage, service.MaxBatch+1)
	for i := range big {
		big[i] = json.RawMessage(`{"user_id":"u"}`)
	}
	if _, err := svc.EnqueueBatch(ctx, big); !errors.Is(err, domain.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestIngestService_Hooks(t *testing.T) {
	accepted := map[domain.Lane]int{}
	rejected := 0
	lanes := queue.NewLaneStore(store.NewMemory(), zap.NewNop())
	svc := service.NewIngestService(lanes, zap.NewNop(),
		func(l domain.Lane) { accepted[l]++ },
		func() { rejected++ },
	)

	_, _ = svc.EnqueueBatch(context.Background(), []json.RawMessage{
		json.RawMessage(`{"user_id":"u1","lane":"priority"}`),
		json.RawMessage(`{"user_id":"u1"}`),
		json.RawMessage(`{}`),
	})

	if accepted[domain.LanePriority] != 1 || accepted[domain.LaneRegular] != 1 || rejected != 1 {
		t.Fatalf("unexpected hook counts accepted=%v rejected=%d", accepted, rejected)
	}
}
