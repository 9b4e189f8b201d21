package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/tasks"
)

// PrefixDeleter 删除某个前缀下的全部对象。
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// PurgeHandler 消费 character:purge 任务，清理已删除角色的图片。
type PurgeHandler struct {
	objects PrefixDeleter
	logger  *slog.Logger
}

// NewPurgeHandler 创建任务处理器。
func NewPurgeHandler(objects PrefixDeleter, logger *slog.Logger) *PurgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeHandler{objects: objects, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *PurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.CharacterPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode purge payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("prefix", payload.Prefix),
	)
	if !strings.HasPrefix(payload.Prefix, "characters/") || !strings.HasSuffix(payload.Prefix, "/") {
		log.Warn("purge prefix outside character namespace, skipping")
		return fmt.Errorf("invalid purge prefix %q: %w", payload.Prefix, asynq.SkipRetry)
	}

	removed, err := h.objects.DeletePrefix(ctx, payload.Prefix)
	if err != nil {
		log.Error("purge character images failed", slog.Int("removed", removed), slog.Any("error", err))
		return err
	}
	log.Info("character images purged", slog.Int("removed", removed))
	return nil
}
