package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/pkg/metrics"
)

// KnowledgeBase 持有两个索引与切片元数据，进程启动时构造一次并注入各处理器。
// 写操作（增删文档）经 writeMu 串行化；读者在元数据先于索引写入、晚于索引删除的顺序下
// 不会看到缺少元数据的命中。
type KnowledgeBase struct {
	vector  VectorIndex
	keyword *KeywordIndex

	writeMu sync.Mutex

	mu       sync.RWMutex
	docs     map[string]*entity.Document
	chunks   map[string]*entity.Chunk
	byDoc    map[string][]string
	embedded int
}

// Stats 知识库规模
type Stats struct {
	Documents      int `json:"documents"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
	Dimension      int `json:"dimension"`
}

func NewKnowledgeBase(vector VectorIndex, keyword *KeywordIndex) *KnowledgeBase {
	return &KnowledgeBase{
		vector:  vector,
		keyword: keyword,
		docs:    make(map[string]*entity.Document),
		chunks:  make(map[string]*entity.Chunk),
		byDoc:   make(map[string][]string),
	}
}

func (kb *KnowledgeBase) VectorIndex() VectorIndex {
	return kb.vector
}

func (kb *KnowledgeBase) KeywordIndex() *KeywordIndex {
	return kb.keyword
}

// AddDocument 写入文档及其切片；同一文档再次写入时先移除旧切片。
// 有向量的切片进入向量索引，全部切片进入关键词索引。
func (kb *KnowledgeBase) AddDocument(ctx context.Context, doc *entity.Document, chunks []*entity.Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	kb.writeMu.Lock()
	defer kb.writeMu.Unlock()

	if kb.hasDocument(doc.ID) {
		if err := kb.removeLocked(ctx, doc.ID, true); err != nil {
			return err
		}
	}

	vectors := make([]VectorEntry, 0, len(chunks))
	keywords := make([]KeywordEntry, 0, len(chunks))
	for _, c := range chunks {
		if c.HasEmbedding() {
			vectors = append(vectors, VectorEntry{ChunkID: c.ID, DocumentID: doc.ID, Vector: c.Embedding})
		}
		keywords = append(keywords, KeywordEntry{ChunkID: c.ID, DocumentID: doc.ID, Text: c.Text})
	}

	kb.putMeta(doc, chunks, len(vectors))

	if len(vectors) > 0 {
		if err := kb.vector.Insert(ctx, vectors...); err != nil {
			kb.dropMeta(doc.ID)
			_ = kb.vector.Remove(ctx, doc.ID)
			return err
		}
	}
	kb.keyword.Insert(ctx, keywords...)

	metrics.IngestedChunksTotal.WithLabelValues("vector").Add(float64(len(vectors)))
	metrics.IngestedChunksTotal.WithLabelValues("keyword").Add(float64(len(keywords)))
	kb.reportSize()
	return nil
}

// RemoveDocument 从两个索引级联删除文档的全部切片
func (kb *KnowledgeBase) RemoveDocument(ctx context.Context, documentID string) error {
	return kb.remove(ctx, documentID, true)
}

// RemoveLocal 只删除本实例持有的关键词索引与元数据，向量索引保持不动。
// 多个实例共用同一个外部向量集合时，向量删除由发起方完成。
func (kb *KnowledgeBase) RemoveLocal(ctx context.Context, documentID string) error {
	return kb.remove(ctx, documentID, false)
}

func (kb *KnowledgeBase) Reset(ctx context.Context) error {
	return kb.reset(ctx, true)
}

// ResetLocal 清空本实例状态，不触碰共享的向量集合
func (kb *KnowledgeBase) ResetLocal(ctx context.Context) error {
	return kb.reset(ctx, false)
}

func (kb *KnowledgeBase) remove(ctx context.Context, documentID string, withVector bool) error {
	kb.writeMu.Lock()
	defer kb.writeMu.Unlock()

	if !kb.hasDocument(documentID) {
		return ErrDocumentNotFound
	}
	if err := kb.removeLocked(ctx, documentID, withVector); err != nil {
		return err
	}
	kb.reportSize()
	return nil
}

func (kb *KnowledgeBase) reset(ctx context.Context, withVector bool) error {
	kb.writeMu.Lock()
	defer kb.writeMu.Unlock()

	if withVector {
		if err := kb.vector.Reset(ctx); err != nil {
			return err
		}
	}
	kb.keyword.Reset(ctx)

	kb.mu.Lock()
	kb.docs = make(map[string]*entity.Document)
	kb.chunks = make(map[string]*entity.Chunk)
	kb.byDoc = make(map[string][]string)
	kb.embedded = 0
	kb.mu.Unlock()

	kb.reportSize()
	return nil
}

func (kb *KnowledgeBase) IsEmpty() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.chunks) == 0
}

func (kb *KnowledgeBase) Stats() Stats {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return Stats{
		Documents:      len(kb.docs),
		Chunks:         len(kb.chunks),
		EmbeddedChunks: kb.embedded,
		Dimension:      kb.vector.Dimension(),
	}
}

func (kb *KnowledgeBase) Chunk(id string) (*entity.Chunk, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	c, ok := kb.chunks[id]
	return c, ok
}

func (kb *KnowledgeBase) Document(id string) (*entity.Document, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	d, ok := kb.docs[id]
	return d, ok
}

// Documents 按入库时间倒序
func (kb *KnowledgeBase) Documents() []*entity.Document {
	kb.mu.RLock()
	out := make([]*entity.Document, 0, len(kb.docs))
	for _, d := range kb.docs {
		out = append(out, d)
	}
	kb.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (kb *KnowledgeBase) hasDocument(id string) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	_, ok := kb.docs[id]
	return ok
}

func (kb *KnowledgeBase) removeLocked(ctx context.Context, documentID string, withVector bool) error {
	if withVector {
		if err := kb.vector.Remove(ctx, documentID); err != nil {
			return err
		}
	}
	kb.keyword.Remove(ctx, documentID)
	kb.dropMeta(documentID)
	return nil
}

func (kb *KnowledgeBase) putMeta(doc *entity.Document, chunks []*entity.Chunk, embedded int) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	doc.ChunkCount = len(chunks)
	kb.docs[doc.ID] = doc
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		kb.chunks[c.ID] = c
		ids = append(ids, c.ID)
	}
	kb.byDoc[doc.ID] = ids
	kb.embedded += embedded
}

func (kb *KnowledgeBase) dropMeta(documentID string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for _, id := range kb.byDoc[documentID] {
		if c, ok := kb.chunks[id]; ok && c.HasEmbedding() {
			kb.embedded--
		}
		delete(kb.chunks, id)
	}
	delete(kb.byDoc, documentID)
	delete(kb.docs, documentID)
}

func (kb *KnowledgeBase) reportSize() {
	st := kb.Stats()
	metrics.KnowledgeBaseChunks.WithLabelValues("vector").Set(float64(st.EmbeddedChunks))
	metrics.KnowledgeBaseChunks.WithLabelValues("keyword").Set(float64(st.Chunks))
}
