package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certengine",
			Subsystem: "asynq",
			Name:      "tasks_processed_total",
			Help:      "任务处理总数，按结果区分。",
		},
		[]string{"task_type", "result"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "certengine",
			Subsystem: "asynq",
			Name:      "task_duration_seconds",
			Help:      "单个任务处理耗时（秒）。批量任务可达数分钟。",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"task_type"},
	)

	taskInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "certengine",
			Subsystem: "asynq",
			Name:      "tasks_in_progress",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// taskResult classifies a handler error: retried tasks and dropped tasks are
// told apart so malformed payloads do not look like transient failures.
func taskResult(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "skipped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return "canceled"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware 记录 Asynq 任务处理指标。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			taskInProgress.WithLabelValues(taskType).Inc()
			defer taskInProgress.WithLabelValues(taskType).Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			taskProcessedTotal.WithLabelValues(taskType, taskResult(ctx, err)).Inc()

			return err
		})
	}
}
