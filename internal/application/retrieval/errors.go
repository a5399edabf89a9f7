package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索能力未配置（Embedder 或向量索引不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")

	// ErrDimensionMismatch 写入或查询向量的维度与索引固定维度不一致。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyKnowledgeBase 两个索引均为空时发起检索。
	ErrEmptyKnowledgeBase = errors.New("knowledge base is empty")

	// ErrDocumentNotFound 文档不在知识库中。
	ErrDocumentNotFound = errors.New("document not found")
)
