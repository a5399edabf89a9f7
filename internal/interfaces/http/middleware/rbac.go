// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/utils"
)

// RequireWrite 修改知识库的接口要求 write 作用域
func RequireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxScope) != utils.ScopeWrite {
			abortForbidden(c, "write scope required")
			return
		}
		c.Next()
	}
}

func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     http.StatusForbidden,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
