package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/dreams"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/tasks"
)

// Sweeper 推进未终结的 dream。
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (dreams.SweepResult, error)
}

// SweepHandler 消费周期性的 dream:sweep 任务。
// 与客户端轮询走同一套条件状态迁移，二者并发也不会产生重复的终态。
type SweepHandler struct {
	sweeper      Sweeper
	defaultLimit int
	logger       *slog.Logger
}

func NewSweepHandler(sweeper Sweeper, defaultLimit int, logger *slog.Logger) *SweepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepHandler{sweeper: sweeper, defaultLimit: defaultLimit, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	limit := h.defaultLimit
	if len(t.Payload()) > 0 {
		var payload tasks.DreamSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			h.logger.Warn("unmarshal sweep payload failed, using default limit", slog.Any("error", err))
		} else if payload.Limit > 0 {
			limit = payload.Limit
		}
	}

	res, err := h.sweeper.Sweep(ctx, limit)
	if err != nil {
		h.logger.Error("dream sweep failed", slog.Any("error", err))
		return err
	}
	if res.Checked > 0 {
		h.logger.Info("dream sweep finished",
			slog.Int("checked", res.Checked),
			slog.Int("advanced", res.Advanced),
			slog.Int("errors", res.Errors),
		)
	}
	return nil
}
