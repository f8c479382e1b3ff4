package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for NewRedisClient.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient creates a go-redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// incrBelowScript is the rate limiter's check-and-increment.
//
//	KEYS[1] counter, KEYS[2] expiry index
//	ARGV[1] limit, ARGV[2] ttl seconds, ARGV[3] expiry unix seconds
//
// Returns {admitted, count}. A counter holding something other than an
// integer is discarded and counting restarts from zero.
var incrBelowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current == nil then
	redis.call('DEL', KEYS[1])
	current = 0
end
if current >= tonumber(ARGV[1]) then
	if redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], KEYS[1])
return {1, current}
`)

const scanCount = 500

// Redis implements KV on a single Redis node. The counter script touches
// two keys, so on a cluster both must hash to one slot.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (r *Redis) PopHead(ctx context.Context, key string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := r.client.RPopCount(ctx, key, n).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rpop %s: %w", key, err)
	}
	return vals, nil
}

func (r *Redis) PushTail(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.client.LPush(ctx, key, toArgs(values)...).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) PushHead(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	// RPUSH appends left to right, so the last argument becomes the head.
	reversed := make([]interface{}, len(values))
	for i, v := range values {
		reversed[len(values)-1-i] = v
	}
	if err := r.client.RPush(ctx, key, reversed...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Len(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Trim(ctx context.Context, key string, keep int64) error {
	if err := r.client.LTrim(ctx, key, 0, keep-1).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

func (r *Redis) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration, index string) (bool, int64, error) {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	expiresAt := r.now().Add(time.Duration(secs) * time.Second).Unix()

	res, err := incrBelowScript.Run(ctx, r.client, []string{key, index}, limit, secs, expiresAt).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("incr below %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("incr below %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, res[1], nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	// go-redis passes the -1/-2 replies through unscaled.
	switch d {
	case -1:
		return NoExpiry, nil
	case -2:
		return KeyMissing, nil
	}
	return d, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (r *Redis) ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}
	return nil
}

func (r *Redis) ScanIndex(ctx context.Context, index string, fn func(member string) error) error {
	iter := r.client.ZScan(ctx, index, 0, "", scanCount).Iterator()
	// ZSCAN yields member, score, member, score...
	member := true
	for iter.Next(ctx) {
		if member {
			if err := fn(iter.Val()); err != nil {
				return err
			}
		}
		member = !member
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("zscan %s: %w", index, err)
	}
	return nil
}

func (r *Redis) RemoveFromIndex(ctx context.Context, index string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.client.ZRem(ctx, index, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", index, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

var _ KV = (*Redis)(nil)
