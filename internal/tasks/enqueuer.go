package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/correlation"
)

// taskClient 是 asynq.Client 的最小子集，便于测试替换。
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer 把后台工作投递到 asynq 队列。
type Enqueuer struct {
	client taskClient
	logger *slog.Logger
}

func NewEnqueuer(client taskClient, logger *slog.Logger) *Enqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{client: client, logger: logger}
}

// EnqueuePurge 投递角色图片清理任务。
func (e *Enqueuer) EnqueuePurge(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("refusing to purge prefix %q", prefix)
	}
	task, err := NewCharacterPurgeTask(prefix, correlation.FromContext(ctx))
	if err != nil {
		return fmt.Errorf("build purge task: %w", err)
	}
	info, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("enqueue purge task: %w", err)
	}
	e.logger.InfoContext(ctx, "character purge enqueued",
		slog.String("task_id", info.ID),
		slog.String("prefix", prefix),
	)
	return nil
}
