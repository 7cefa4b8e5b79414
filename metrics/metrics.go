// Package metrics 暴露 prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bgremover"

type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
}

// PoolStatsFunc 返回会话池的空闲数与使用数
type PoolStatsFunc func() (idle, inUse int)

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of handled requests by operation and status.",
		}, []string{"operation", "status"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
	}
	registry.MustRegister(m.requests, m.stageSeconds, m.cacheHits)
	return m
}

func (m *Metrics) ObserveRequest(operation, status string) {
	m.requests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveStage(stage string, cost time.Duration) {
	m.stageSeconds.WithLabelValues(stage).Observe(cost.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.WithLabelValues(result).Inc()
}

// RegisterPool 以 GaugeFunc 的方式暴露会话池状态
func (m *Metrics) RegisterPool(stats PoolStatsFunc) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_pool_idle",
			Help:      "Idle inference sessions.",
		}, func() float64 {
			idle, _ := stats()
			return float64(idle)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_pool_in_use",
			Help:      "Inference sessions currently in use.",
		}, func() float64 {
			_, inUse := stats()
			return float64(inUse)
		}),
	)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
