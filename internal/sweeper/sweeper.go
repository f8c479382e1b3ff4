// Package sweeper expires stale rate limit counters and trims per-user
// history lists. A sweep is best effort: a failure on one key is logged
// and counted, and the sweep moves on to the next key.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/ratelimiter"
	"github.com/notifyhub/notification-scheduler/internal/store"
)

const (
	// HistoryPattern matches the per-user notification lists kept for UI display.
	HistoryPattern = "user_notifications:*"
	// EphemeralPattern matches realtime message buffers that must never
	// outlive their consumers.
	EphemeralPattern = "websocket_message:*"
)

// Config controls retention. Zero durations fall back to the defaults.
type Config struct {
	CounterMaxLifetime    time.Duration
	HistoryRetentionCount int
	HistoryTTL            time.Duration
	EphemeralTTL          time.Duration

	// ScanCounterNamespace additionally scans every rate_limit:* key, to
	// catch counters that never made it into the index.
	ScanCounterNamespace bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CounterMaxLifetime:    24 * time.Hour,
		HistoryRetentionCount: 50,
		HistoryTTL:            7 * 24 * time.Hour,
		EphemeralTTL:          time.Hour,
	}
}

// Sweeper runs once per scheduling cycle, independent of dispatch.
// Every action it takes is idempotent, so overlapping sweepers need no
// coordination.
type Sweeper struct {
	kv     store.KV
	cfg    Config
	logger *zap.Logger
}

func New(kv store.KV, cfg Config, logger *zap.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.CounterMaxLifetime <= 0 {
		cfg.CounterMaxLifetime = def.CounterMaxLifetime
	}
	if cfg.HistoryRetentionCount <= 0 {
		cfg.HistoryRetentionCount = def.HistoryRetentionCount
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = def.HistoryTTL
	}
	if cfg.EphemeralTTL <= 0 {
		cfg.EphemeralTTL = def.EphemeralTTL
	}
	return &Sweeper{kv: kv, cfg: cfg, logger: logger}
}

// Sweep performs one full cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) domain.SweepReport {
	var r domain.SweepReport
	s.sweepCounters(ctx, &r)
	s.sweepHistories(ctx, &r)
	s.sweepEphemerals(ctx, &r)

	if r.Failures > 0 {
		s.logger.Warn("sweep finished with failures", zap.Int("failures", r.Failures))
	}
	return r
}

// sweepCounters walks the counter index rather than the whole keyspace.
// Counters without an expiry, or with one beyond the maximum lifetime, are
// left over from partial failures and get deleted outright.
func (s *Sweeper) sweepCounters(ctx context.Context, r *domain.SweepReport) {
	var prune []string
	err := s.kv.ScanIndex(ctx, ratelimiter.IndexKey, func(key string) error {
		if s.checkCounter(ctx, key, r) {
			prune = append(prune, key)
		}
		return nil
	})
	if err != nil {
		s.keyFailed(r, "scan counter index", ratelimiter.IndexKey, err)
	}

	if len(prune) > 0 {
		if err := s.kv.RemoveFromIndex(ctx, ratelimiter.IndexKey, prune...); err != nil {
			s.keyFailed(r, "prune counter index", ratelimiter.IndexKey, err)
		} else {
			r.IndexPruned += len(prune)
		}
	}

	if !s.cfg.ScanCounterNamespace {
		return
	}
	err = s.kv.ScanKeys(ctx, ratelimiter.CounterPrefix+"*", func(key string) error {
		s.checkCounter(ctx, key, r)
		return nil
	})
	if err != nil {
		s.keyFailed(r, "scan counters", ratelimiter.CounterPrefix+"*", err)
	}
}

// checkCounter deletes key if its expiry is unset or too long. It reports
// whether the key is gone afterwards.
func (s *Sweeper) checkCounter(ctx context.Context, key string, r *domain.SweepReport) bool {
	r.CountersScanned++
	ttl, err := s.kv.TTL(ctx, key)
	if err != nil {
		s.keyFailed(r, "counter ttl", key, err)
		return false
	}
	switch {
	case ttl == store.KeyMissing:
		return true
	case ttl == store.NoExpiry || ttl > s.cfg.CounterMaxLifetime:
		if err := s.kv.Delete(ctx, key); err != nil {
			s.keyFailed(r, "delete counter", key, err)
			return false
		}
		r.CountersDeleted++
		return true
	}
	return false
}

func (s *Sweeper) sweepHistories(ctx context.Context, r *domain.SweepReport) {
	keep := int64(s.cfg.HistoryRetentionCount)
	err := s.kv.ScanKeys(ctx, HistoryPattern, func(key string) error {
		n, err := s.kv.Len(ctx, key)
		if err != nil {
			s.keyFailed(r, "history length", key, err)
			return nil
		}
		if n > keep {
			if err := s.kv.Trim(ctx, key, keep); err != nil {
				s.keyFailed(r, "trim history", key, err)
				return nil
			}
			r.HistoriesTrimmed++
		}

		expired, err := s.ensureExpiry(ctx, key, s.cfg.HistoryTTL)
		if err != nil {
			s.keyFailed(r, "history expiry", key, err)
			return nil
		}
		if expired {
			r.HistoriesExpired++
		}
		return nil
	})
	if err != nil {
		s.keyFailed(r, "scan histories", HistoryPattern, err)
	}
}

func (s *Sweeper) sweepEphemerals(ctx context.Context, r *domain.SweepReport) {
	err := s.kv.ScanKeys(ctx, EphemeralPattern, func(key string) error {
		expired, err := s.ensureExpiry(ctx, key, s.cfg.EphemeralTTL)
		if err != nil {
			s.keyFailed(r, "ephemeral expiry", key, err)
			return nil
		}
		if expired {
			r.EphemeralsExpired++
		}
		return nil
	})
	if err != nil {
		s.keyFailed(r, "scan ephemerals", EphemeralPattern, err)
	}
}

// ensureExpiry sets ttl on key only if it has none. Reports whether it did.
func (s *Sweeper) ensureExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cur, err := s.kv.TTL(ctx, key)
	if err != nil {
		return false, err
	}
	if cur != store.NoExpiry {
		return false, nil
	}
	return true, s.kv.Expire(ctx, key, ttl)
}

func (s *Sweeper) keyFailed(r *domain.SweepReport, op, key string, err error) {
	r.Failures++
	s.logger.Warn("cleanup step failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
