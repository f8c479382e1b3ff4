package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/notifyhub/notification-scheduler/internal/store"
)

const (
	// CounterPrefix namespaces per-user window counters.
	CounterPrefix = "rate_limit:"
	// IndexKey is the sorted set of live counter keys scored by expiry,
	// walked by the sweeper instead of scanning the counter namespace.
	IndexKey = "rate_limit_index"
)

// CounterKey names the counter for userID in windowID. The window is part
// of the key, so a new window starts from a fresh counter with no reset.
func CounterKey(userID string, windowID int64) string {
	return fmt.Sprintf("%s%s:%d", CounterPrefix, userID, windowID)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed  bool
	UserID   string
	WindowID int64
	Count    int64
}

// WindowConfig configures the fixed-window limiter.
type WindowConfig struct {
	Limit  int
	Window time.Duration
	Grace  time.Duration
}

// WindowLimiter admits at most Limit regular notifications per user per
// fixed window. The check-and-increment is one atomic store call, so
// overlapping cycles can never jointly admit more than Limit.
type WindowLimiter struct {
	kv  store.KV
	cfg WindowConfig
	now func() time.Time
}

func NewWindowLimiter(kv store.KV, cfg WindowConfig) *WindowLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &WindowLimiter{kv: kv, cfg: cfg, now: time.Now}
}

// WithClock overrides the wall clock. Returns l.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// WindowID returns the fixed window containing t.
func (l *WindowLimiter) WindowID(t time.Time) int64 {
	return t.UnixNano() / int64(l.cfg.Window)
}

// Admit reports whether userID may receive one more regular notification in
// the current window, consuming one unit of its allowance if so.
func (l *WindowLimiter) Admit(ctx context.Context, userID string) (Decision, error) {
	now := l.now()
	windowID := l.WindowID(now)
	d := Decision{UserID: userID, WindowID: windowID}

	if l.cfg.Limit <= 0 {
		return d, nil
	}

	// The counter outlives the end of its window by the grace period only.
	windowEnd := time.Unix(0, (windowID+1)*int64(l.cfg.Window))
	ttl := windowEnd.Sub(now) + l.cfg.Grace

	ok, count, err := l.kv.IncrBelow(ctx, CounterKey(userID, windowID), int64(l.cfg.Limit), ttl, IndexKey)
	if err != nil {
		return d, fmt.Errorf("admit %s: %w", userID, err)
	}
	d.Allowed = ok
	d.Count = count
	return d, nil
}
