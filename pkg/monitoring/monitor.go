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

	// 连接核心的业务指标
	ConnectionsEstablished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connections_established_total",
			Help: "Total number of connection edge pairs established",
		},
	)

	RequestsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_requests_merged_total",
			Help: "Total number of simultaneous-request merges",
		},
	)

	ExpiredRequestsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_requests_expired_purged_total",
			Help: "Total number of expired connection requests deleted on read",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ConnectionsEstablished)
	prometheus.MustRegister(RequestsMerged)
	prometheus.MustRegister(ExpiredRequestsPurged)
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
