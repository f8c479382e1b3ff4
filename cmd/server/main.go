package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/api"
	"github.com/notifyhub/notification-scheduler/internal/config"
	"github.com/notifyhub/notification-scheduler/internal/db"
	"github.com/notifyhub/notification-scheduler/internal/dispatch"
	"github.com/notifyhub/notification-scheduler/internal/metrics"
	"github.com/notifyhub/notification-scheduler/internal/provider"
	"github.com/notifyhub/notification-scheduler/internal/queue"
	"github.com/notifyhub/notification-scheduler/internal/ratelimiter"
	"github.com/notifyhub/notification-scheduler/internal/repository"
	"github.com/notifyhub/notification-scheduler/internal/scheduler"
	"github.com/notifyhub/notification-scheduler/internal/service"
	"github.com/notifyhub/notification-scheduler/internal/store"
	"github.com/notifyhub/notification-scheduler/internal/sweeper"
	"github.com/notifyhub/notification-scheduler/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- redis ----
	ctx := context.Background()
	rdb, err := store.NewRedisClient(ctx, store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()
	kv := store.NewRedis(rdb)

	// ---- cycle report storage ----
	var reports repository.CycleRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL, db.DefaultMigrationsDir); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
		reports = repository.NewPgCycleRepository(pool)
	} else {
		logger.Info("DATABASE_URL not set, keeping cycle reports in memory")
		reports = repository.NewMemoryCycleRepository(cfg.CycleHistory)
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	lanes := queue.NewLaneStore(kv, logger.Named("lanes"))
	limiter := ratelimiter.NewWindowLimiter(kv, ratelimiter.WindowConfig{
		Limit:  cfg.RateLimitPerUser,
		Window: cfg.RateLimitWindow,
		Grace:  cfg.RateLimitGrace,
	})

	var transport provider.Transport
	switch cfg.OutboundTransport {
	case config.TransportWebhook:
		transport = provider.NewWebhookTransport(cfg.PriorityOutboundURL, cfg.RegularOutboundURL, cfg.OutboundTimeout)
	default:
		transport = provider.NewRedisTransport(kv)
	}

	emitter := dispatch.NewEmitter(
		transport,
		lanes,
		ratelimiter.NewOutbound(cfg.OutboundRateLimit),
		dispatch.EmitterConfig{MaxRetries: cfg.EmitMaxRetries, Backoff: cfg.EmitBackoff},
		logger.Named("emitter"),
	)
	sweep := sweeper.New(kv, sweeper.Config{
		CounterMaxLifetime:    cfg.CounterMaxLifetime,
		HistoryRetentionCount: cfg.HistoryRetentionCount,
		HistoryTTL:            cfg.HistoryTTL,
		EphemeralTTL:          cfg.EphemeralTTL,
		ScanCounterNamespace:  cfg.ScanCounterNamespace,
	}, logger.Named("sweeper"))

	driver := scheduler.NewDriver(
		lanes,
		limiter,
		dispatch.NewBatcher(cfg.OutboundBatchSize),
		emitter,
		sweep,
		scheduler.Config{BatchSize: cfg.BatchSize},
		logger.Named("scheduler"),
	)

	onAccepted, onRejected := m.IngestHooks()
	ingest := service.NewIngestService(lanes, logger.Named("ingest"), onAccepted, onRejected)

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	runners := []worker.Runner{
		worker.NewDepthWorker(lanes, cfg.DepthInterval, logger.Named("depth"), m.DepthHook()),
	}
	cycleWorkers := make([]*worker.CycleWorker, cfg.CycleWorkers)
	for i := range cycleWorkers {
		cycleWorkers[i] = worker.NewCycleWorker(
			i, driver, reports, cfg.CycleInterval,
			logger.Named("cycle").With(zap.Int("worker_id", i)),
			m.CycleHook(),
		)
		runners = append(runners, cycleWorkers[i])
	}
	pool := worker.NewPool(runners...)
	pool.Start(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Ingest:  ingest,
		Cycles:  cycleWorkers[0],
		Reports: reports,
		Store:   kv,
		Metrics: reg,
	}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop scheduling new cycles.
	cancelWorkers()

	// 3. Wait for in-flight cycles to requeue or finish their batches.
	pool.Wait()

	logger.Info("scheduler stopped cleanly")
}
