// Package knowledge 管理知识库文档的生命周期：入库、删除、清空、启动重建与副本同步
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/repository"
	"rag-knowledge-hub/internal/infrastructure/extraction"
	"rag-knowledge-hub/internal/infrastructure/messaging"
	apperrors "rag-knowledge-hub/pkg/errors"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
	"rag-knowledge-hub/pkg/tracer"
)

// 单个文件的入库状态
const (
	FileStatusIngested = "ingested"
	FileStatusFailed   = "failed"
)

// 批次整体状态
const (
	BatchStatusSuccess = "success"
	BatchStatusPartial = "partial"
	BatchStatusFailed  = "failed"
)

var ErrFileTooLarge = errors.New("file exceeds the upload size limit")

// Extractor 文本抽取端口
type Extractor interface {
	Extract(filename string, data []byte) (entity.DocumentFormat, []string, error)
}

// Publisher 索引同步事件发布端口；为 nil 时不同步
type Publisher interface {
	DocumentIndexed(ctx context.Context, ev messaging.DocumentEvent) error
	DocumentRemoved(ctx context.Context, documentID string) error
	KnowledgeReset(ctx context.Context) error
}

// Upload 一个待入库文件
type Upload struct {
	Filename string
	Data     []byte
}

// FileResult 单个文件的入库结果
type FileResult struct {
	Filename       string              `json:"filename"`
	DocumentID     string              `json:"document_id,omitempty"`
	Status         string              `json:"status"`
	Reason         string              `json:"reason,omitempty"`
	Code           apperrors.ErrorCode `json:"code,omitempty"`
	Pages          int                 `json:"pages,omitempty"`
	Chunks         int                 `json:"chunks"`
	EmbeddedChunks int                 `json:"embedded_chunks"`

	err error
}

// Err 失败原因（成功时为 nil）
func (r FileResult) Err() error {
	return r.err
}

// IngestResult 一批文件的入库结果
type IngestResult struct {
	Status         string       `json:"status"`
	IngestedChunks int          `json:"ingested_chunks"`
	FilesProcessed int          `json:"files_processed"`
	TotalChunks    int          `json:"total_chunks"`
	Files          []FileResult `json:"files"`
}

// DocumentDetail 文档及其切片
type DocumentDetail struct {
	Document *entity.Document
	Chunks   []*entity.Chunk
}

// Options 服务参数
type Options struct {
	MaxFileBytes int64
	// SharedVectorIndex 向量索引由多个实例共用（如 Milvus），同步事件不再重复删除向量
	SharedVectorIndex bool
}

// Service 知识库管理服务
//
// 写入顺序：先持久化到 PostgreSQL（单事务），再写入内存索引，最后发布同步事件。
// 删除与清空同样先改存储再改索引。
type Service struct {
	kb        *retrieval.KnowledgeBase
	chunker   retrieval.Chunker
	indexer   *retrieval.Indexer
	extractor Extractor

	docs   repository.DocumentRepository
	chunks repository.ChunkRepository
	tx     repository.Transactor

	publisher Publisher
	opts      Options
	newID     func() string
}

func NewService(
	kb *retrieval.KnowledgeBase,
	chunker retrieval.Chunker,
	indexer *retrieval.Indexer,
	extractor Extractor,
	docs repository.DocumentRepository,
	chunks repository.ChunkRepository,
	tx repository.Transactor,
	publisher Publisher,
	opts Options,
) *Service {
	return &Service{
		kb:        kb,
		chunker:   chunker,
		indexer:   indexer,
		extractor: extractor,
		docs:      docs,
		chunks:    chunks,
		tx:        tx,
		publisher: publisher,
		opts:      opts,
		newID:     uuid.NewString,
	}
}

// Ingest 逐个处理文件；单个文件失败只记录在结果里，不中断批次
func (s *Service) Ingest(ctx context.Context, uploads []Upload) *IngestResult {
	ctx, span := tracer.Start(ctx, "knowledge.Service.Ingest")
	defer span.End()

	res := &IngestResult{Files: make([]FileResult, 0, len(uploads))}
	ok := 0
	for _, up := range uploads {
		fr := s.ingestOne(ctx, up)
		if fr.err == nil {
			ok++
			res.IngestedChunks += fr.Chunks
		}
		res.Files = append(res.Files, fr)
	}

	res.FilesProcessed = len(uploads)
	res.TotalChunks = s.kb.Stats().Chunks
	switch {
	case ok == len(uploads) && ok > 0:
		res.Status = BatchStatusSuccess
	case ok > 0:
		res.Status = BatchStatusPartial
	default:
		res.Status = BatchStatusFailed
	}
	return res
}

func (s *Service) ingestOne(ctx context.Context, up Upload) FileResult {
	fr := FileResult{Filename: up.Filename, Status: FileStatusFailed}
	fail := func(format entity.DocumentFormat, err error) FileResult {
		appErr := ingestError(err)
		fr.err = appErr
		fr.Reason = err.Error()
		fr.Code = appErr.Code
		metrics.IngestedDocumentsTotal.WithLabelValues(formatLabel(format), FileStatusFailed).Inc()
		logger.Warn(ctx, "document ingestion failed", "filename", up.Filename, "error", err.Error())
		return fr
	}

	if s.opts.MaxFileBytes > 0 && int64(len(up.Data)) > s.opts.MaxFileBytes {
		return fail("", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(up.Data)))
	}

	format, pages, err := s.extractor.Extract(up.Filename, up.Data)
	if err != nil {
		return fail(format, err)
	}

	doc := &entity.Document{
		ID:        s.newID(),
		Filename:  up.Filename,
		Format:    format,
		Pages:     pages,
		SizeBytes: int64(len(up.Data)),
		CreatedAt: time.Now().UTC(),
	}
	chunks := s.chunker.ChunkDocument(doc.ID, pages)
	if len(chunks) == 0 {
		return fail(format, fmt.Errorf("document %s produced no chunks", up.Filename))
	}
	doc.ChunkCount = len(chunks)

	report, err := s.indexer.EmbedChunks(ctx, chunks)
	if err != nil {
		return fail(format, err)
	}

	if err := s.persist(ctx, doc, chunks); err != nil {
		return fail(format, err)
	}
	if err := s.kb.AddDocument(ctx, doc, chunks); err != nil {
		s.unpersist(ctx, doc.ID)
		return fail(format, err)
	}

	s.publishIndexed(ctx, doc)
	metrics.IngestedDocumentsTotal.WithLabelValues(formatLabel(format), FileStatusIngested).Inc()
	logger.Info(ctx, "document ingested",
		"document_id", doc.ID, "filename", doc.Filename,
		"chunks", len(chunks), "embedded", report.Embedded, "pages", len(pages))

	fr.DocumentID = doc.ID
	fr.Status = FileStatusIngested
	fr.Pages = len(pages)
	fr.Chunks = len(chunks)
	fr.EmbeddedChunks = report.Embedded
	return fr
}

// ingestError 为单文件失败归类错误码
func ingestError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return apperrors.ErrFileTooLarge.WithError(err)
	case errors.Is(err, extraction.ErrUnsupportedFormat):
		return apperrors.ErrUnsupportedFormat.WithError(err)
	case errors.Is(err, extraction.ErrExtractionFailed):
		return apperrors.ErrExtractionFailed.WithError(err)
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		return apperrors.ErrDimensionMismatch.WithError(err)
	case apperrors.IsAppError(err):
		return apperrors.AsAppError(err)
	default:
		return apperrors.ErrInternalError.WithError(err)
	}
}

func (s *Service) persist(ctx context.Context, doc *entity.Document, chunks []*entity.Chunk) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.docs.Create(ctx, doc); err != nil {
			return err
		}
		return s.chunks.CreateBatch(ctx, chunks)
	})
}

// unpersist 内存索引写入失败后回滚持久化数据
func (s *Service) unpersist(ctx context.Context, documentID string) {
	if err := s.deleteStored(ctx, documentID); err != nil {
		logger.Error(ctx, "failed to roll back stored document", err, "document_id", documentID)
	}
}

func (s *Service) deleteStored(ctx context.Context, documentID string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.chunks.DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		return s.docs.Delete(ctx, documentID)
	})
}

// Delete 从两个索引与 PostgreSQL 级联删除文档
func (s *Service) Delete(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "knowledge.Service.Delete")
	defer span.End()

	// 先删存储：事务失败时索引保持原样，调用方可以重试
	if _, indexed := s.kb.Document(documentID); !indexed {
		stored, err := s.docs.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if stored == nil {
			return retrieval.ErrDocumentNotFound
		}
	}
	if err := s.deleteStored(ctx, documentID); err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := s.kb.RemoveDocument(ctx, documentID); err != nil && !errors.Is(err, retrieval.ErrDocumentNotFound) {
		tracer.RecordError(span, err)
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.DocumentRemoved(ctx, documentID); err != nil {
			logger.Warn(ctx, "failed to publish document_removed", "document_id", documentID, "error", err.Error())
		}
	}
	logger.Info(ctx, "document removed", "document_id", documentID)
	return nil
}

// Reset 清空知识库
func (s *Service) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "knowledge.Service.Reset")
	defer span.End()

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.chunks.DeleteAll(ctx); err != nil {
			return err
		}
		return s.docs.DeleteAll(ctx)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := s.kb.Reset(ctx); err != nil {
		tracer.RecordError(span, err)
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.KnowledgeReset(ctx); err != nil {
			logger.Warn(ctx, "failed to publish knowledge_reset", "error", err.Error())
		}
	}
	logger.Info(ctx, "knowledge base reset")
	return nil
}

// List 分页列出已入库文档
func (s *Service) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	return s.docs.List(ctx, pagination)
}

// Get 文档详情；不存在时返回 ErrDocumentNotFound
func (s *Service) Get(ctx context.Context, documentID string) (*DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, retrieval.ErrDocumentNotFound
	}
	chunks, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: doc, Chunks: chunks}, nil
}

// Stats 知识库规模（当前实例的内存索引）
func (s *Service) Stats() retrieval.Stats {
	return s.kb.Stats()
}

func (s *Service) publishIndexed(ctx context.Context, doc *entity.Document) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.DocumentIndexed(ctx, messaging.DocumentEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		ChunkCount: doc.ChunkCount,
	})
	if err != nil {
		logger.Warn(ctx, "failed to publish document_indexed", "document_id", doc.ID, "error", err.Error())
	}
}

func formatLabel(f entity.DocumentFormat) string {
	if f == "" {
		return "unknown"
	}
	return string(f)
}
