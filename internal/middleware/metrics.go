package middleware

import (
	"strconv"
	"time"

	"tipytap/internal/metrics"

	"github.com/gin-gonic/gin"
)

// HTTPMetrics counts requests and observes their latency per route
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched" // Keeps 404 paths out of the label set
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		metrics.RequestLatency.WithLabelValues(c.Request.Method, route, status).
			Observe(time.Since(start).Seconds())
	}
}
