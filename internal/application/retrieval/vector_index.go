package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// VectorEntry 向量索引条目
type VectorEntry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// ScoredChunk 单路检索命中，Score 已归一化到 [0,1]
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

// VectorIndex 向量索引（port）：进程内实现见 MemoryVectorIndex，Milvus 实现位于基础设施层。
// Insert 对同一 ChunkID 幂等；一次 Insert 的全部条目对读者原子可见。
type VectorIndex interface {
	Dimension() int
	Insert(ctx context.Context, entries ...VectorEntry) error
	Remove(ctx context.Context, documentID string) error
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
	Reset(ctx context.Context) error
}

type vectorSlot struct {
	chunkID    string
	documentID string
	vector     []float32
	norm       float64
	seq        uint64
}

// MemoryVectorIndex 进程内余弦相似度索引（单写多读）
type MemoryVectorIndex struct {
	dim int

	mu    sync.RWMutex
	slots map[string]*vectorSlot
	byDoc map[string]map[string]struct{}
	seq   uint64
}

var _ VectorIndex = (*MemoryVectorIndex)(nil)

func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		dim:   dimension,
		slots: make(map[string]*vectorSlot),
		byDoc: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryVectorIndex) Dimension() int {
	return m.dim
}

func (m *MemoryVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

func (m *MemoryVectorIndex) Insert(_ context.Context, entries ...VectorEntry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dim {
			return fmt.Errorf("%w: chunk %s has %d, index expects %d", ErrDimensionMismatch, e.ChunkID, len(e.Vector), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		slot := &vectorSlot{
			chunkID:    e.ChunkID,
			documentID: e.DocumentID,
			vector:     vec,
			norm:       l2norm(vec),
		}
		// 重试写入同一切片时沿用原插入序号，不产生重复条目
		if old, ok := m.slots[e.ChunkID]; ok {
			slot.seq = old.seq
			if old.documentID != e.DocumentID {
				m.unlinkLocked(old.documentID, old.chunkID)
			}
		} else {
			m.seq++
			slot.seq = m.seq
		}
		m.slots[e.ChunkID] = slot
		docs := m.byDoc[e.DocumentID]
		if docs == nil {
			docs = make(map[string]struct{})
			m.byDoc[e.DocumentID] = docs
		}
		docs[e.ChunkID] = struct{}{}
	}
	return nil
}

func (m *MemoryVectorIndex) Remove(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chunkID := range m.byDoc[documentID] {
		delete(m.slots, chunkID)
	}
	delete(m.byDoc, documentID)
	return nil
}

func (m *MemoryVectorIndex) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = make(map[string]*vectorSlot)
	m.byDoc = make(map[string]map[string]struct{})
	return nil
}

func (m *MemoryVectorIndex) Search(_ context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), m.dim)
	}
	if k <= 0 {
		return []ScoredChunk{}, nil
	}
	qn := l2norm(query)

	m.mu.RLock()
	type hit struct {
		ScoredChunk
		seq uint64
	}
	hits := make([]hit, 0, len(m.slots))
	for _, s := range m.slots {
		hits = append(hits, hit{
			ScoredChunk: ScoredChunk{ChunkID: s.chunkID, Score: RemapCosine(cosine(query, qn, s.vector, s.norm))},
			seq:         s.seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = h.ScoredChunk
	}
	return out, nil
}

func (m *MemoryVectorIndex) unlinkLocked(documentID, chunkID string) {
	docs := m.byDoc[documentID]
	delete(docs, chunkID)
	if len(docs) == 0 {
		delete(m.byDoc, documentID)
	}
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine 零向量与任何向量的相似度记为 0
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	c := dot / (an * bn)
	return math.Max(-1, math.Min(1, c))
}

// CosineSimilarity 两个等长向量的余弦相似度，范围 [-1,1]
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosine(a, l2norm(a), b, l2norm(b))
}

// RemapCosine 把 [-1,1] 线性映射到 [0,1]
func RemapCosine(c float64) float64 {
	return (c + 1) / 2
}
