package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 聊天流水线指标：按终态（done/errored）统计会话数，token输出量
	ChatSessionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_total",
			Help: "Total number of chat sessions by outcome",
		},
		[]string{"outcome"},
	)

	ChatTokenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_tokens_streamed_total",
			Help: "Total number of answer tokens streamed to callers",
		},
	)

	RelatedRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "related_recompute_duration_seconds",
			Help:    "Duration of related-question recompute runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ChatSessionCounter)
	prometheus.MustRegister(ChatTokenCounter)
	prometheus.MustRegister(RelatedRecomputeDuration)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
