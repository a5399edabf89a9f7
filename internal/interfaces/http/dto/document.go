// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"rag-knowledge-hub/internal/application/knowledge"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
)

// DocumentResponse 文档摘要
type DocumentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	Pages      int    `json:"pages"`
	ChunkCount int    `json:"chunk_count"`
	SizeBytes  int64  `json:"size_bytes"`
	CreatedAt  string `json:"created_at"`
}

// ChunkResponse 切片
type ChunkResponse struct {
	ID       string `json:"id"`
	Ordinal  int    `json:"ordinal"`
	Page     int    `json:"page"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
	Embedded bool   `json:"embedded"`
}

// DocumentDetailResponse 文档详情
type DocumentDetailResponse struct {
	DocumentResponse
	Chunks []*ChunkResponse `json:"chunks"`
}

// DocumentListResponse 文档列表
type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}

// StatsResponse 知识库规模
type StatsResponse struct {
	Documents      int `json:"documents"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
	Dimension      int `json:"dimension"`
}

func ToDocumentResponse(d *entity.Document) *DocumentResponse {
	if d == nil {
		return nil
	}
	pages := d.PageCount()
	return &DocumentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		Format:     string(d.Format),
		Pages:      pages,
		ChunkCount: d.ChunkCount,
		SizeBytes:  d.SizeBytes,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

func ToDocumentListResponse(docs []*entity.Document) *DocumentListResponse {
	out := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, ToDocumentResponse(d))
	}
	return &DocumentListResponse{Documents: out}
}

func ToDocumentDetailResponse(detail *knowledge.DocumentDetail) *DocumentDetailResponse {
	resp := &DocumentDetailResponse{
		DocumentResponse: *ToDocumentResponse(detail.Document),
		Chunks:           make([]*ChunkResponse, 0, len(detail.Chunks)),
	}
	for _, c := range detail.Chunks {
		resp.Chunks = append(resp.Chunks, &ChunkResponse{
			ID:       c.ID,
			Ordinal:  c.Ordinal,
			Page:     c.Page,
			Start:    c.Start,
			End:      c.End,
			Text:     c.Text,
			Embedded: c.HasEmbedding(),
		})
	}
	return resp
}

func ToStatsResponse(s retrieval.Stats) *StatsResponse {
	return &StatsResponse{
		Documents:      s.Documents,
		Chunks:         s.Chunks,
		EmbeddedChunks: s.EmbeddedChunks,
		Dimension:      s.Dimension,
	}
}
