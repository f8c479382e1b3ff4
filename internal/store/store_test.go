package store_test

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/notification-scheduler/internal/store"
)

// backends runs fn against both KV implementations so their semantics
// stay in lockstep.
func backends(t *testing.T, fn func(t *testing.T, kv store.KV)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		fn(t, store.NewRedis(client))
	})
}

func TestKV_ListIsFIFO(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		if err := kv.PushTail(ctx, "q", "a", "b"); err != nil {
			t.Fatal(err)
		}
		if err := kv.PushTail(ctx, "q", "c"); err != nil {
			t.Fatal(err)
		}

		got, err := kv.PopHead(ctx, "q", 2)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Fatalf("expected [a b], got %v", got)
		}

		got, err = kv.PopHead(ctx, "q", 10)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"c"}) {
			t.Fatalf("expected [c], got %v", got)
		}
	})
}

func TestKV_PopEmptyList(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		got, err := kv.PopHead(context.Background(), "missing", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no values, got %v", got)
		}
	})
}

func TestKV_PushHeadRestoresOrder(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		_ = kv.PushTail(ctx, "q", "a", "b", "c", "d")

		popped, _ := kv.PopHead(ctx, "q", 2)
		if err := kv.PushHead(ctx, "q", popped...); err != nil {
			t.Fatal(err)
		}

		got, _ := kv.PopHead(ctx, "q", 10)
		if !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
			t.Fatalf("expected original order, got %v", got)
		}
	})
}

func TestKV_TrimKeepsNewest(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		_ = kv.PushTail(ctx, "h", "1", "2", "3", "4", "5")

		if err := kv.Trim(ctx, "h", 2); err != nil {
			t.Fatal(err)
		}
		n, _ := kv.Len(ctx, "h")
		if n != 2 {
			t.Fatalf("expected len 2, got %d", n)
		}
		got, _ := kv.PopHead(ctx, "h", 10)
		if !reflect.DeepEqual(got, []string{"4", "5"}) {
			t.Fatalf("expected newest [4 5], got %v", got)
		}
	})
}

func TestKV_IncrBelowStopsAtLimit(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		admitted := 0
		for i := 0; i < 5; i++ {
			ok, _, err := kv.IncrBelow(ctx, "rate_limit:u1:1", 3, time.Hour, "rate_limit:index")
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				admitted++
			}
		}
		if admitted != 3 {
			t.Fatalf("expected 3 admissions, got %d", admitted)
		}

		_, count, _ := kv.IncrBelow(ctx, "rate_limit:u1:1", 3, time.Hour, "rate_limit:index")
		if count != 3 {
			t.Fatalf("counter must saturate at the limit, got %d", count)
		}

		ttl, _ := kv.TTL(ctx, "rate_limit:u1:1")
		if ttl <= 0 || ttl > time.Hour {
			t.Fatalf("expected ttl within (0, 1h], got %v", ttl)
		}

		var members []string
		_ = kv.ScanIndex(ctx, "rate_limit:index", func(m string) error {
			members = append(members, m)
			return nil
		})
		if !reflect.DeepEqual(members, []string{"rate_limit:u1:1"}) {
			t.Fatalf("expected counter in index, got %v", members)
		}
	})
}

func TestRedis_IncrBelowRecoversFromCorruptCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.NewRedis(client)
	ctx := context.Background()

	if err := mr.Set("rate_limit:u1:1", "not-a-number"); err != nil {
		t.Fatal(err)
	}

	ok, count, err := kv.IncrBelow(ctx, "rate_limit:u1:1", 3, time.Hour, "rate_limit:index")
	if err != nil {
		t.Fatalf("corrupt counter must not block admission: %v", err)
	}
	if !ok || count != 1 {
		t.Fatalf("expected a fresh counter at 1, got ok=%v count=%d", ok, count)
	}
	if ttl, _ := kv.TTL(ctx, "rate_limit:u1:1"); ttl <= 0 {
		t.Fatalf("expected the fresh counter to expire, got %v", ttl)
	}
}

func TestKV_TTLSentinels(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		_ = kv.PushTail(ctx, "k", "v")

		ttl, err := kv.TTL(ctx, "k")
		if err != nil || ttl != store.NoExpiry {
			t.Fatalf("expected NoExpiry, got %v (err=%v)", ttl, err)
		}
		ttl, err = kv.TTL(ctx, "gone")
		if err != nil || ttl != store.KeyMissing {
			t.Fatalf("expected KeyMissing, got %v (err=%v)", ttl, err)
		}

		_ = kv.Expire(ctx, "k", time.Minute)
		ttl, _ = kv.TTL(ctx, "k")
		if ttl <= 0 || ttl > time.Minute {
			t.Fatalf("expected ttl within (0, 1m], got %v", ttl)
		}
	})
}

func TestKV_ScanKeysMatchesPattern(t *testing.T) {
	backends(t, func(t *testing.T, kv store.KV) {
		ctx := context.Background()
		_ = kv.PushTail(ctx, "user_notifications:u1", "x")
		_ = kv.PushTail(ctx, "user_notifications:u2", "x")
		_ = kv.PushTail(ctx, "other:u3", "x")

		var keys []string
		err := kv.ScanKeys(ctx, "user_notifications:*", func(k string) error {
			keys = append(keys, k)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		sort.Strings(keys)
		if !reflect.DeepEqual(keys, []string{"user_notifications:u1", "user_notifications:u2"}) {
			t.Fatalf("unexpected keys %v", keys)
		}
	})
}

func TestMemory_ExpiredKeysVanish(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := store.NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	m.SetCounter("c", 1, time.Minute)
	now = now.Add(2 * time.Minute)

	ttl, _ := m.TTL(ctx, "c")
	if ttl != store.KeyMissing {
		t.Fatalf("expected expired key to be missing, got %v", ttl)
	}
}
