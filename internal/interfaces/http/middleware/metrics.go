// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/metrics"
)

// Metrics Prometheus 指标采集中间件；skipPath（通常为指标端点本身）不计入
func Metrics(skipPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPath != "" && c.Request.URL.Path == skipPath {
			c.Next()
			return
		}

		start := time.Now()
		method := c.Request.Method
		if size := c.Request.ContentLength; size > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, routeLabel(c)).Observe(float64(size))
		}

		c.Next()

		path := routeLabel(c)
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// routeLabel 使用路由模板避免标签基数膨胀
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
