package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute replaces the raw path of requests no route matched, keeping
// label cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	registerOnce sync.Once

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "certengine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP 请求耗时分布（秒），包含 PDF 与压缩包生成。",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"method", "route", "status"},
	)

	responseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certengine",
			Subsystem: "http",
			Name:      "response_bytes_total",
			Help:      "HTTP 响应体字节数。",
		},
		[]string{"method", "route"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "certengine",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "当前正在处理的 HTTP 请求数量。",
		},
	)
)

// GinMiddleware 为 Gin 路由注册 Prometheus 指标采集逻辑。
// skip 中的路由（如 /metrics、/health）不计入。
func GinMiddleware(skip ...string) gin.HandlerFunc {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestDuration, responseBytes, requestsInFlight)
	})
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		start := time.Now()
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		c.Next()

		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		requestDuration.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			responseBytes.WithLabelValues(method, route).Add(float64(n))
		}
	}
}
