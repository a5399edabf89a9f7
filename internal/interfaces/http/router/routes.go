// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/internal/interfaces/http/handler"
	"rag-knowledge-hub/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, documentHandler *handler.DocumentHandler, queryHandler *handler.QueryHandler) {
	// 文档管理
	documents := v1.Group("/documents")
	{
		documents.GET("", documentHandler.ListDocuments)
		documents.GET("/:id", documentHandler.GetDocument)
		documents.POST("", middleware.RequireWrite(), documentHandler.Upload)
		documents.DELETE("/:id", middleware.RequireWrite(), documentHandler.DeleteDocument)
		documents.DELETE("", middleware.RequireWrite(), documentHandler.ResetKnowledgeBase)
	}

	v1.GET("/stats", documentHandler.Stats)

	// 问答与检索
	v1.POST("/query", queryHandler.Query)
	v1.POST("/search", queryHandler.Search)
}
