// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/internal/application/knowledge"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/repository"
	"rag-knowledge-hub/internal/interfaces/http/dto"
	apperrors "rag-knowledge-hub/pkg/errors"
	"rag-knowledge-hub/pkg/logger"
)

// 单次上传最多文件数
const maxUploadFiles = 32

// KnowledgeService 知识库管理
type KnowledgeService interface {
	Ingest(ctx context.Context, uploads []knowledge.Upload) *knowledge.IngestResult
	Delete(ctx context.Context, documentID string) error
	Reset(ctx context.Context) error
	List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error)
	Get(ctx context.Context, documentID string) (*knowledge.DocumentDetail, error)
	Stats() retrieval.Stats
}

// DocumentHandler 文档处理器
type DocumentHandler struct {
	svc          KnowledgeService
	maxFileBytes int64
}

// NewDocumentHandler maxFileBytes 只限制读取量，超限判定在服务层
func NewDocumentHandler(svc KnowledgeService, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, maxFileBytes: maxFileBytes}
}

// Upload 上传并入库文档
// @Summary 上传文档
// @Description multipart 表单字段 files，可多个；逐个文件返回入库结果
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} dto.Response[knowledge.IngestResult]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	form, err := c.MultipartForm()
	if err != nil {
		dto.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		dto.BadRequest(c, "no files uploaded")
		return
	}
	if len(files) > maxUploadFiles {
		dto.BadRequest(c, fmt.Sprintf("at most %d files per upload", maxUploadFiles))
		return
	}

	uploads := make([]knowledge.Upload, 0, len(files))
	for _, fh := range files {
		data, err := h.readFile(fh)
		if err != nil {
			logger.Warn(ctx, "failed to read uploaded file", "filename", fh.Filename, "error", err.Error())
			dto.BadRequest(c, "failed to read "+fh.Filename)
			return
		}
		uploads = append(uploads, knowledge.Upload{Filename: fh.Filename, Data: data})
	}

	dto.Success(c, h.svc.Ingest(ctx, uploads))
}

// readFile 最多读 maxFileBytes+1 字节，让服务层能识别超限
func (h *DocumentHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxFileBytes > 0 {
		r = io.LimitReader(f, h.maxFileBytes+1)
	}
	return io.ReadAll(r)
}

// ListDocuments 获取文档列表
// @Summary 文档列表
// @Tags Documents
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	result, err := h.svc.List(ctx, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list documents", err)
		dto.InternalError(c, "failed to list documents")
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.ToDocumentListResponse(result.Items), meta)
}

// GetDocument 获取文档详情（含切片）
// @Summary 文档详情
// @Tags Documents
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} dto.Response[dto.DocumentDetailResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindDocumentID(c)

	detail, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, "failed to get document", err)
		return
	}
	dto.Success(c, dto.ToDocumentDetailResponse(detail))
}

// DeleteDocument 删除文档
// @Summary 删除文档
// @Tags Documents
// @Param id path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/documents/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindDocumentID(c)

	if err := h.svc.Delete(ctx, id); err != nil {
		h.fail(c, "failed to delete document", err)
		return
	}
	dto.NoContent(c)
}

// ResetKnowledgeBase 清空知识库
// @Summary 清空知识库
// @Tags Documents
// @Success 204
// @Router /api/v1/documents [delete]
func (h *DocumentHandler) ResetKnowledgeBase(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.svc.Reset(ctx); err != nil {
		h.fail(c, "failed to reset knowledge base", err)
		return
	}
	dto.NoContent(c)
}

// Stats 知识库规模
// @Summary 知识库统计
// @Tags Documents
// @Produce json
// @Success 200 {object} dto.Response[dto.StatsResponse]
// @Router /api/v1/stats [get]
func (h *DocumentHandler) Stats(c *gin.Context) {
	dto.Success(c, dto.ToStatsResponse(h.svc.Stats()))
}

func (h *DocumentHandler) fail(c *gin.Context, msg string, err error) {
	if errors.Is(err, retrieval.ErrDocumentNotFound) {
		dto.FromError(c, apperrors.ErrDocumentNotFound)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.FromError(c, err)
}
