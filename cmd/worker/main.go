package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/app"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/database"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/metrics"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/tasks"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/telemetry"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	gen, err := app.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}
	// worker 只推进已有 dream，不需要投递清理任务。
	services := app.NewServices(cfg, db, storageClient, gen, redisClient, nil, logger)

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCharacterPurge, worker.NewPurgeHandler(storageClient, logger))
	mux.Handle(tasks.TypeDreamSweep, worker.NewSweepHandler(services.Dreams, cfg.Worker.SweepBatch, logger))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	sweepTask, err := tasks.NewDreamSweepTask(cfg.Worker.SweepBatch)
	if err != nil {
		log.Fatalf("build sweep task: %v", err)
	}
	if cfg.Worker.SweepSpec != "" {
		entryID, err := scheduler.Register(cfg.Worker.SweepSpec, sweepTask,
			asynq.MaxRetry(0),
			asynq.Timeout(5*time.Minute),
			asynq.Unique(time.Minute),
		)
		if err != nil {
			log.Fatalf("register dream sweep: %v", err)
		}
		logger.Info("dream sweep scheduled", slog.String("spec", cfg.Worker.SweepSpec), slog.String("entry_id", entryID))
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	defer func() { _ = metricsSrv.Close() }()

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	// Run 会在收到 SIGTERM/SIGINT 后优雅退出。
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
