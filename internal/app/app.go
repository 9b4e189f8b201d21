// Package app 组装 api、worker 与 admin 共用的服务依赖。
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/auth"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/characters"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/dreams"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/generator"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/metrics"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/ratelimit"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/tasks"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/users"
)

// Services 是业务层的全部服务。
type Services struct {
	Users      *users.Service
	Characters *characters.Service
	Dreams     *dreams.Service
}

// NewGenerator 按配置构造生成器；sync 模式在提交时阻塞等待结果。
func NewGenerator(ctx context.Context, cfg config.GeneratorConfig) (generator.Generator, error) {
	bedrock, err := generator.NewBedrock(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init bedrock generator: %w", err)
	}
	if cfg.Mode == config.GeneratorModeSync {
		return generator.NewBlocking(bedrock, cfg.PollInterval, cfg.Timeout), nil
	}
	return bedrock, nil
}

// NewServices 组装服务。asynqClient 为 nil 时删除角色不会投递清理任务。
func NewServices(
	cfg *config.Config,
	db *gorm.DB,
	objects *storage.Client,
	gen generator.Generator,
	redisClient redis.UniversalClient,
	asynqClient *asynq.Client,
	logger *slog.Logger,
) *Services {
	issuer := storage.NewIssuer(objects, cfg.Dream.PresignTTL, logger)

	var charOpts []characters.Option
	if cfg.Clamd.Addr != "" {
		charOpts = append(charOpts, characters.WithScanner(characters.NewClamdScanner(cfg.Clamd.Addr)))
	}
	if asynqClient != nil {
		charOpts = append(charOpts, characters.WithPurger(tasks.NewEnqueuer(asynqClient, logger)))
	}
	charSvc := characters.NewService(characters.NewGormStore(db), objects, issuer, logger, charOpts...)

	dreamOpts := []dreams.Option{dreams.WithObserver(metrics.DreamObserver{})}
	if redisClient != nil {
		dreamOpts = append(dreamOpts, dreams.WithQuota(ratelimit.NewLimiter(redisClient, "dream", cfg.Dream.RateLimitPerHour)))
	}
	dreamSvc := dreams.NewService(
		dreams.NewGormStore(db),
		charSvc,
		objects,
		gen,
		issuer,
		dreams.NewFallbackPolicy(cfg.Dream.FallbackVideoURL, cfg.Dream.StrictMode, logger),
		dreams.Config{
			Bucket: objects.Bucket(),
			// sync 模式下提交可能阻塞整个超时时长。
			StaleAfter: 2 * cfg.Generator.Timeout,
		},
		logger,
		dreamOpts...,
	)

	return &Services{
		Users:      users.NewService(users.NewGormStore(db), auth.NewPasswordHasher(bcrypt.DefaultCost), logger),
		Characters: charSvc,
		Dreams:     dreamSvc,
	}
}
