package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/api"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/app"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/database"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/ratelimit"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/telemetry"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("shutdown telemetry failed", slog.Any("error", err))
		}
	}()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	gen, err := app.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}

	services := app.NewServices(cfg, db, storageClient, gen, redisClient, asynqClient, logger)
	dispatcher := api.NewDispatcher(services.Users, services.Characters, services.Dreams,
		api.WithLoginRateLimit(ratelimit.NewLimiter(redisClient, "login", cfg.Auth.LoginRateLimitPerHour)),
		api.WithLoginGuard(ratelimit.NewLoginGuard(redisClient, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL)),
	)

	router := api.NewRouter(logger, cfg.Telemetry.ServiceName)
	api.RegisterRoutes(router, dispatcher)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("api listening",
		slog.String("addr", srv.Addr),
		slog.String("generator_mode", cfg.Generator.Mode),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to start api server: %v", err)
	}
}
