package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Transport names accepted by OUTBOUND_TRANSPORT.
const (
	TransportRedis   = "redis"
	TransportWebhook = "webhook"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a default. DATABASE_URL is optional: without it cycle
// reports are kept in memory only.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Redis holds the lanes, counters and everything the sweeper cleans.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Database (optional)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Scheduling
	CycleInterval time.Duration
	CycleWorkers  int
	BatchSize     int
	DepthInterval time.Duration
	CycleHistory  int

	// Per-user admission
	RateLimitPerUser int
	RateLimitWindow  time.Duration
	RateLimitGrace   time.Duration

	// Outbound
	OutboundTransport   string
	OutboundBatchSize   int
	PriorityOutboundURL string
	RegularOutboundURL  string
	OutboundTimeout     time.Duration
	OutboundRateLimit   int

	// Emission retries: EmitBackoff[i] is the delay before retry i+1.
	EmitMaxRetries int
	EmitBackoff    []time.Duration

	// Cleanup
	HistoryRetentionCount int
	HistoryTTL            time.Duration
	EphemeralTTL          time.Duration
	CounterMaxLifetime    time.Duration
	ScanCounterNamespace  bool
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 1)),

		CycleInterval: getDuration("CYCLE_INTERVAL", 5*time.Second),
		CycleWorkers:  getInt("CYCLE_WORKERS", 1),
		BatchSize:     getInt("BATCH_SIZE", 50),
		DepthInterval: getDuration("DEPTH_INTERVAL", 15*time.Second),
		CycleHistory:  getInt("CYCLE_HISTORY", 500),

		RateLimitPerUser: getInt("RATE_LIMIT_PER_USER", 10),
		RateLimitWindow:  getDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitGrace:   getDuration("RATE_LIMIT_GRACE", time.Minute),

		OutboundTransport:   getEnv("OUTBOUND_TRANSPORT", TransportRedis),
		OutboundBatchSize:   getInt("OUTBOUND_BATCH_SIZE", 10),
		PriorityOutboundURL: getEnv("PRIORITY_OUTBOUND_URL", ""),
		RegularOutboundURL:  getEnv("REGULAR_OUTBOUND_URL", ""),
		OutboundTimeout:     getDuration("OUTBOUND_TIMEOUT", 10*time.Second),
		OutboundRateLimit:   getInt("OUTBOUND_RATE_LIMIT", 0),

		EmitMaxRetries: getInt("EMIT_MAX_RETRIES", 3),
		EmitBackoff: []time.Duration{
			getDuration("EMIT_BACKOFF_1", 200*time.Millisecond),
			getDuration("EMIT_BACKOFF_2", time.Second),
			getDuration("EMIT_BACKOFF_3", 3*time.Second),
		},

		HistoryRetentionCount: getInt("HISTORY_RETENTION_COUNT", 50),
		HistoryTTL:            getDuration("HISTORY_TTL", 7*24*time.Hour),
		EphemeralTTL:          getDuration("EPHEMERAL_TTL", time.Hour),
		CounterMaxLifetime:    getDuration("COUNTER_MAX_LIFETIME", 24*time.Hour),
		ScanCounterNamespace:  getBool("SCAN_COUNTER_NAMESPACE", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	case c.OutboundBatchSize <= 0 || c.OutboundBatchSize > 10:
		return fmt.Errorf("OUTBOUND_BATCH_SIZE must be between 1 and 10, got %d", c.OutboundBatchSize)
	case c.RateLimitPerUser < 0:
		return fmt.Errorf("RATE_LIMIT_PER_USER must not be negative, got %d", c.RateLimitPerUser)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	case c.CycleInterval <= 0:
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %s", c.CycleInterval)
	case c.CycleWorkers <= 0:
		return fmt.Errorf("CYCLE_WORKERS must be positive, got %d", c.CycleWorkers)
	case c.EmitMaxRetries < 0:
		return fmt.Errorf("EMIT_MAX_RETRIES must not be negative, got %d", c.EmitMaxRetries)
	case c.HistoryRetentionCount <= 0:
		return fmt.Errorf("HISTORY_RETENTION_COUNT must be positive, got %d", c.HistoryRetentionCount)
	case c.HistoryTTL <= 0:
		return fmt.Errorf("HISTORY_TTL must be positive, got %s", c.HistoryTTL)
	case c.EphemeralTTL <= 0:
		return fmt.Errorf("EPHEMERAL_TTL must be positive, got %s", c.EphemeralTTL)
	case c.CounterMaxLifetime < c.RateLimitWindow+c.RateLimitGrace:
		// The sweeper would delete live counters.
		return fmt.Errorf("COUNTER_MAX_LIFETIME (%s) must cover RATE_LIMIT_WINDOW plus RATE_LIMIT_GRACE", c.CounterMaxLifetime)
	}

	switch c.OutboundTransport {
	case TransportRedis:
	case TransportWebhook:
		if c.PriorityOutboundURL == "" || c.RegularOutboundURL == "" {
			return fmt.Errorf("PRIORITY_OUTBOUND_URL and REGULAR_OUTBOUND_URL are required for the webhook transport")
		}
	default:
		return fmt.Errorf("unknown OUTBOUND_TRANSPORT %q", c.OutboundTransport)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
