// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/internal/application/qa"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/interfaces/http/dto"
	apperrors "rag-knowledge-hub/pkg/errors"
	"rag-knowledge-hub/pkg/logger"
)

// QAService 问答与检索
type QAService interface {
	Ask(ctx context.Context, q *qa.Question) (*qa.Answer, error)
	Search(ctx context.Context, query string, o qa.Overrides) (*retrieval.SearchOutput, error)
}

// QueryHandler 问答处理器
type QueryHandler struct {
	svc QAService
}

func NewQueryHandler(svc QAService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Query 基于知识库回答问题
// @Summary 问答
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问题"
// @Success 200 {object} dto.Response[qa.Answer]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "知识库为空"
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ans, err := h.svc.Ask(ctx, &qa.Question{
		Query:     req.Query,
		History:   req.History,
		Overrides: req.Overrides(),
	})
	if err != nil {
		respondAppError(c, "query failed", err)
		return
	}
	dto.Success(c, ans)
}

// Search 只运行混合检索
// @Summary 检索
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Router /api/v1/search [post]
func (h *QueryHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.svc.Search(ctx, req.Query, req.Overrides())
	if err != nil {
		respondAppError(c, "search failed", err)
		return
	}
	dto.Success(c, dto.ToSearchResponse(out))
}

// respondAppError 业务错误只记 warn，其余记 error
func respondAppError(c *gin.Context, msg string, err error) {
	if appErr := apperrors.AsAppError(err); appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), msg, err)
	} else {
		logger.Warn(c.Request.Context(), msg, "error", err.Error())
	}
	dto.FromError(c, err)
}
