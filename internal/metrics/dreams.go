package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/dreams"
)

var (
	dreamTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dream_creator",
			Subsystem: "dreams",
			Name:      "transitions_total",
			Help:      "dream 状态迁移次数。",
		},
		[]string{"from", "to"},
	)

	dreamFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dream_creator",
			Subsystem: "dreams",
			Name:      "fallbacks_total",
			Help:      "外部生成服务失败后触发降级的次数。",
		},
		[]string{"op"},
	)
)

// DreamObserver 把 dream 生命周期事件记为 Prometheus 指标。
type DreamObserver struct{}

var _ dreams.Observer = DreamObserver{}

func (DreamObserver) ObserveTransition(from, to dreams.Status) {
	dreamTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (DreamObserver) ObserveFallback(op string) {
	dreamFallbacksTotal.WithLabelValues(op).Inc()
}
