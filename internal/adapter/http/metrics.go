package handler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 回调处理结果标签
const (
	resultReply            = "reply"
	resultAck              = "ack"
	resultUnauthorized     = "unauthorized"
	resultBadRequest       = "bad_request"
	resultDecryptFailed    = "decrypt_failed"
	resultFrameCorrupt     = "frame_corrupt"
	resultReceiverMismatch = "receiver_mismatch"
	resultInternal         = "internal"
)

// Metrics 回调网关的 Prometheus 指标
type Metrics struct {
	registry        *prometheus.Registry
	callbackCounter *prometheus.CounterVec
	callbackLatency *prometheus.HistogramVec
}

// NewMetrics 创建独立 registry 并注册回调指标与 Go 运行时指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		callbackCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wecom",
				Subsystem: "callback",
				Name:      "requests_total",
				Help:      "Total number of WeCom callback requests by result",
			},
			[]string{"method", "result"},
		),
		callbackLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wecom",
				Subsystem: "callback",
				Name:      "duration_seconds",
				Help:      "WeCom callback handling duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		),
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(method, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callbackCounter.WithLabelValues(method, result).Inc()
	m.callbackLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
