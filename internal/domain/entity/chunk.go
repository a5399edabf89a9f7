package entity

import "fmt"

// Chunk 文档切片：检索的最小单元
//
// Start/End 为规范化全文中的 rune 偏移（左闭右开）。
// Embedding 在嵌入服务成功返回前为 nil，此时切片只参与关键词检索。
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// Length 切片长度（rune）
func (c *Chunk) Length() int {
	return c.End - c.Start
}

// HasEmbedding 是否已有向量
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ChunkID 生成确定性的切片 ID，重复入库同一文档得到相同 ID
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", documentID, ordinal)
}
