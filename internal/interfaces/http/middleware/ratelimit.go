// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int
	// Burst 窗口内额外允许的突发请求数
	Burst int
}

// RateLimiter 限流器接口，返回是否放行与剩余配额
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// KeyFunc 由调用方与路由生成限流键
type KeyFunc func(subject, route string) string

// RateLimit 按调用方与路由限流；限流器故障时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter, keyFn KeyFunc) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst < 0 {
		cfg.Burst = 0
	}
	if keyFn == nil {
		keyFn = func(subject, route string) string { return "ratelimit:" + subject + ":" + route }
	}
	limit := cfg.RequestsPerSecond + cfg.Burst

	return func(c *gin.Context) {
		subject := c.GetString(ctxUserID)
		if subject == "" || subject == "anonymous" {
			subject = "ip:" + c.ClientIP()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), keyFn(subject, route), limit, time.Second)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}
		c.Next()
	}
}
