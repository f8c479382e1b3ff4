// Package store defines the key-value contract the scheduler keeps its
// externally held state in: pending lanes, rate limit counters and the
// per-user history lists it sweeps.
//
// Lists follow one convention everywhere: producers append at the tail
// (the left end, LPUSH) and consumers pop from the head (the right end,
// RPOP), so a list read right-to-left is FIFO.
package store

import (
	"context"
	"errors"
	"time"
)

// TTL sentinels, mirroring the Redis TTL reply.
const (
	NoExpiry   time.Duration = -1
	KeyMissing time.Duration = -2
)

// ErrWrongType is returned when an operation targets a key holding another kind of value.
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// KV is implemented by Redis (production) and Memory (tests and local runs).
// Every method is a single atomic operation against the store.
type KV interface {
	// PopHead removes and returns up to n values from the head of a list,
	// oldest first. An empty or missing list yields an empty slice.
	PopHead(ctx context.Context, key string, n int) ([]string, error)
	// PushTail appends values at the tail, in order.
	PushTail(ctx context.Context, key string, values ...string) error
	// PushHead puts values back at the head so that values[0] is popped next.
	PushHead(ctx context.Context, key string, values ...string) error
	// Len returns the list length; zero for a missing key.
	Len(ctx context.Context, key string) (int64, error)
	// Trim keeps the keep most recently appended values of a list.
	Trim(ctx context.Context, key string, keep int64) error

	// IncrBelow increments the counter at key when its current value is
	// below limit, sets its expiry to ttl and records key in index scored by
	// its expiry time. It reports whether the increment happened and the
	// counter value after the call.
	IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration, index string) (bool, int64, error)

	// TTL returns the remaining lifetime, NoExpiry or KeyMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// ScanKeys calls fn for every key matching a glob pattern.
	ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error
	// ScanIndex calls fn for every member of a sorted-set index.
	ScanIndex(ctx context.Context, index string, fn func(member string) error) error
	RemoveFromIndex(ctx context.Context, index string, members ...string) error

	Ping(ctx context.Context) error
}
