package retrieval

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	defaultTopK           = 5
	defaultThreshold      = 0.6
	defaultSemanticWeight = 0.7
	defaultOversample     = 2
	maxTopK               = 50
)

// Params 融合检索参数，按值传递，不读全局配置
type Params struct {
	TopK           int
	Threshold      float64
	Hybrid         bool
	SemanticWeight float64
	Oversample     int
}

func DefaultParams() Params {
	return Params{
		TopK:           defaultTopK,
		Threshold:      defaultThreshold,
		Hybrid:         true,
		SemanticWeight: defaultSemanticWeight,
		Oversample:     defaultOversample,
	}
}

// Sanitize 把越界参数收敛到合法范围
func (p Params) Sanitize() Params {
	if p.TopK <= 0 {
		p.TopK = defaultTopK
	}
	if p.TopK > maxTopK {
		p.TopK = maxTopK
	}
	if p.Threshold < 0 {
		p.Threshold = 0
	}
	if p.SemanticWeight < 0 {
		p.SemanticWeight = 0
	}
	if p.SemanticWeight > 1 {
		p.SemanticWeight = 1
	}
	if p.Oversample < 1 {
		p.Oversample = defaultOversample
	}
	return p
}

// SearchResult 融合后的单条候选
type SearchResult struct {
	ChunkID       string
	SemanticScore float64
	KeywordScore  float64
	FusedScore    float64
	Rank          int
}

// Mode 实际执行的检索模式
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

type vectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
}

type keywordSearcher interface {
	Search(ctx context.Context, query string, limit int) []ScoredChunk
}

// Ranker 融合语义与关键词两路得分
type Ranker struct {
	vector  vectorSearcher
	keyword keywordSearcher
}

func NewRanker(vector vectorSearcher, keyword keywordSearcher) *Ranker {
	return &Ranker{vector: vector, keyword: keyword}
}

// Rank queryVec 为 nil 表示语义一路不可用，此时按关键词得分单路排序（融合分即关键词分）。
// 关闭 hybrid 时直接返回向量索引的 top_k，不做阈值过滤。
func (r *Ranker) Rank(ctx context.Context, queryText string, queryVec []float32, p Params) ([]SearchResult, Mode, error) {
	p = p.Sanitize()

	if queryVec == nil {
		hits := r.keyword.Search(ctx, queryText, p.TopK*p.Oversample)
		return fuse(nil, hits, 0, p), ModeKeyword, nil
	}

	if !p.Hybrid {
		hits, err := r.vector.Search(ctx, queryVec, p.TopK)
		if err != nil {
			return nil, ModeSemantic, err
		}
		out := make([]SearchResult, 0, len(hits))
		for i, h := range hits {
			out = append(out, SearchResult{
				ChunkID:       h.ChunkID,
				SemanticScore: h.Score,
				FusedScore:    h.Score,
				Rank:          i + 1,
			})
		}
		return out, ModeSemantic, nil
	}

	limit := p.TopK * p.Oversample
	var semantic, keyword []ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = r.vector.Search(gctx, queryVec, limit)
		return err
	})
	g.Go(func() error {
		keyword = r.keyword.Search(gctx, queryText, limit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, ModeHybrid, err
	}
	return fuse(semantic, keyword, p.SemanticWeight, p), ModeHybrid, nil
}

// fuse fused = w·semantic + (1-w)·keyword；只出现在一路的切片另一路记 0。
// 按融合分降序、切片 ID 升序排序，丢弃低于阈值者后取 top_k。
func fuse(semantic, keyword []ScoredChunk, weight float64, p Params) []SearchResult {
	merged := make(map[string]*SearchResult, len(semantic)+len(keyword))
	get := func(id string) *SearchResult {
		if r, ok := merged[id]; ok {
			return r
		}
		r := &SearchResult{ChunkID: id}
		merged[id] = r
		return r
	}
	for _, h := range semantic {
		r := get(h.ChunkID)
		r.SemanticScore = max(r.SemanticScore, h.Score)
	}
	for _, h := range keyword {
		r := get(h.ChunkID)
		r.KeywordScore = max(r.KeywordScore, h.Score)
	}

	out := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		r.FusedScore = weight*r.SemanticScore + (1-weight)*r.KeywordScore
		if r.FusedScore < p.Threshold {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > p.TopK {
		out = out[:p.TopK]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
