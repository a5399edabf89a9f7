package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionChunks 文档切片向量集合
	CollectionChunks = "chunks"

	fieldID         = "id"
	fieldDocumentID = "document_id"
	fieldVector     = "vector"
)

// ChunksSchema 切片集合 Schema；向量维度由嵌入模型决定
func ChunksSchema(collectionName string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collectionName,
		Description:    "Document chunk embeddings for semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldDocumentID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
		},
	}
}

// vectorDimension 从已有集合的 Schema 读取向量维度，读不到时返回 0
func vectorDimension(schema *entity.Schema) int {
	if schema == nil {
		return 0
	}
	for _, f := range schema.Fields {
		if f.Name != fieldVector {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams["dim"])
		if err != nil {
			return 0
		}
		return dim
	}
	return 0
}
