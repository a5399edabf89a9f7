// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/logger"
)

// Audit 记录修改知识库的请求（上传、删除、清空）；只读请求不记录
func Audit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "knowledge base mutation",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"user_id", c.GetString(ctxUserID),
			"request_id", c.GetString("request_id"),
			"body_bytes", c.Request.ContentLength,
		)
	}
}
