package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务结果标签。skipped 表示 handler 返回了 asynq.SkipRetry，不会再重试。
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

var (
	taskOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dream_creator",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "按类型与结果统计的后台任务数。",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dream_creator",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "后台任务耗时（秒）。",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"task_type"},
	)

	tasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dream_creator",
			Subsystem: "worker",
			Name:      "tasks_running",
			Help:      "正在执行的后台任务数。",
		},
		[]string{"task_type"},
	)
)

// AsynqMetricsMiddleware 为 purge/sweep 等任务记录结果、耗时与并发。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			tasksRunning.WithLabelValues(taskType).Inc()
			start := time.Now()

			err := next.ProcessTask(ctx, task)

			tasksRunning.WithLabelValues(taskType).Dec()
			taskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			taskOutcomeTotal.WithLabelValues(taskType, taskOutcome(err)).Inc()
			return err
		})
	}
}

func taskOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return outcomeSkipped
	default:
		return outcomeFailed
	}
}
