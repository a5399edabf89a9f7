// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/utils"
)

// gin.Context 中的键
const (
	ctxUserID = "user_id"
	ctxScope  = "scope"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Secret string
	Issuer string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
	Enabled   bool
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// Auth Bearer JWT 认证中间件。关闭时所有请求视为具有 write 作用域的匿名调用方。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Set(ctxUserID, "anonymous")
			c.Set(ctxScope, utils.ScopeWrite)
			c.Next()
		}
	}

	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, utils.ErrExpiredToken) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxScope, claims.Scope)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.UserIDKey, claims.UserID))
		c.Next()
	}
}

// GetUserIDFromGin 当前调用方
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     http.StatusUnauthorized,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
