// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"rag-knowledge-hub/internal/application/qa"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
)

// QueryRequest 问答请求
type QueryRequest struct {
	Query   string        `json:"query" binding:"required,max=4000"`
	History []entity.Turn `json:"history,omitempty" binding:"max=50"`

	TopK           *int     `json:"top_k,omitempty" binding:"omitempty,min=1,max=50"`
	Threshold      *float64 `json:"threshold,omitempty" binding:"omitempty,min=0,max=1"`
	Hybrid         *bool    `json:"hybrid,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" binding:"omitempty,min=0,max=1"`
}

// Overrides 请求里的检索参数覆盖
func (r *QueryRequest) Overrides() qa.Overrides {
	return qa.Overrides{
		TopK:           r.TopK,
		Threshold:      r.Threshold,
		Hybrid:         r.Hybrid,
		SemanticWeight: r.SemanticWeight,
	}
}

// SearchRequest 只检索不生成
type SearchRequest struct {
	Query string `json:"query" binding:"required,max=4000"`

	TopK           *int     `json:"top_k,omitempty" binding:"omitempty,min=1,max=50"`
	Threshold      *float64 `json:"threshold,omitempty" binding:"omitempty,min=0,max=1"`
	Hybrid         *bool    `json:"hybrid,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" binding:"omitempty,min=0,max=1"`
}

func (r *SearchRequest) Overrides() qa.Overrides {
	return qa.Overrides{
		TopK:           r.TopK,
		Threshold:      r.Threshold,
		Hybrid:         r.Hybrid,
		SemanticWeight: r.SemanticWeight,
	}
}

// SearchHit 单条检索结果
type SearchHit struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename,omitempty"`
	Page          int     `json:"page"`
	Text          string  `json:"text"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	FusedScore    float64 `json:"fused_score"`
	Rank          int     `json:"rank"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Hits           []*SearchHit `json:"hits"`
	Mode           string       `json:"mode"`
	Degraded       bool         `json:"degraded"`
	DegradedReason string       `json:"degraded_reason,omitempty"`
	ElapsedMs      int64        `json:"elapsed_ms"`
}

func ToSearchResponse(out *retrieval.SearchOutput) *SearchResponse {
	resp := &SearchResponse{
		Hits:           make([]*SearchHit, 0, len(out.Hits)),
		Mode:           string(out.Mode),
		Degraded:       out.DisabledReason != "",
		DegradedReason: out.DisabledReason,
		ElapsedMs:      out.Elapsed.Milliseconds(),
	}
	for _, h := range out.Hits {
		hit := &SearchHit{
			ChunkID:       h.ChunkID,
			Filename:      h.Filename,
			SemanticScore: h.SemanticScore,
			KeywordScore:  h.KeywordScore,
			FusedScore:    h.FusedScore,
			Rank:          h.Rank,
		}
		if h.Chunk != nil {
			hit.DocumentID = h.Chunk.DocumentID
			hit.Page = h.Chunk.Page
			hit.Text = h.Chunk.Text
		}
		resp.Hits = append(resp.Hits, hit)
	}
	return resp
}
