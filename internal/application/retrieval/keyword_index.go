package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

const (
	defaultBM25K1 = 1.2
	defaultBM25B  = 0.75
)

type keywordDoc struct {
	documentID string
	length     int
	terms      map[string]int
	seq        uint64
}

// KeywordIndex 倒排索引 + BM25 打分。
// 得分除以查询中已知词项的 idf·(k1+1) 之和归一化到 [0,1]；语料中未出现的词项不参与打分。
type KeywordIndex struct {
	k1 float64
	b  float64

	mu       sync.RWMutex
	docs     map[string]*keywordDoc
	postings map[string]map[string]int
	byDoc    map[string]map[string]struct{}
	totalLen int
	seq      uint64
}

func NewKeywordIndex(k1, b float64) *KeywordIndex {
	if k1 <= 0 {
		k1 = defaultBM25K1
	}
	if b < 0 || b > 1 {
		b = defaultBM25B
	}
	return &KeywordIndex{
		k1:       k1,
		b:        b,
		docs:     make(map[string]*keywordDoc),
		postings: make(map[string]map[string]int),
		byDoc:    make(map[string]map[string]struct{}),
	}
}

// KeywordEntry 关键词索引条目
type KeywordEntry struct {
	ChunkID    string
	DocumentID string
	Text       string
}

func (k *KeywordIndex) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.docs)
}

func (k *KeywordIndex) Insert(_ context.Context, entries ...KeywordEntry) {
	prepared := make([]*keywordDoc, len(entries))
	for i, e := range entries {
		tokens := Tokenize(e.Text)
		prepared[i] = &keywordDoc{documentID: e.DocumentID, length: len(tokens), terms: termFrequencies(tokens)}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for i, e := range entries {
		d := prepared[i]
		if old, ok := k.docs[e.ChunkID]; ok {
			d.seq = old.seq
			k.unlinkLocked(e.ChunkID, old)
		} else {
			k.seq++
			d.seq = k.seq
		}
		k.docs[e.ChunkID] = d
		k.totalLen += d.length
		for term, tf := range d.terms {
			p := k.postings[term]
			if p == nil {
				p = make(map[string]int)
				k.postings[term] = p
			}
			p[e.ChunkID] = tf
		}
		chunks := k.byDoc[e.DocumentID]
		if chunks == nil {
			chunks = make(map[string]struct{})
			k.byDoc[e.DocumentID] = chunks
		}
		chunks[e.ChunkID] = struct{}{}
	}
}

func (k *KeywordIndex) Remove(_ context.Context, documentID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for chunkID := range k.byDoc[documentID] {
		if d, ok := k.docs[chunkID]; ok {
			k.unlinkLocked(chunkID, d)
		}
	}
	delete(k.byDoc, documentID)
}

func (k *KeywordIndex) Reset(_ context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.docs = make(map[string]*keywordDoc)
	k.postings = make(map[string]map[string]int)
	k.byDoc = make(map[string]map[string]struct{})
	k.totalLen = 0
}

func (k *KeywordIndex) Search(_ context.Context, query string, limit int) []ScoredChunk {
	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 || limit <= 0 {
		return []ScoredChunk{}
	}

	k.mu.RLock()
	n := len(k.docs)
	if n == 0 {
		k.mu.RUnlock()
		return []ScoredChunk{}
	}
	avgLen := float64(k.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	raw := make(map[string]float64)
	var maxScore float64
	for _, term := range terms {
		p := k.postings[term]
		if len(p) == 0 {
			continue
		}
		idf := bm25IDF(n, len(p))
		maxScore += idf * (k.k1 + 1)
		for chunkID, tf := range p {
			d := k.docs[chunkID]
			norm := 1 - k.b + k.b*float64(d.length)/avgLen
			f := float64(tf)
			raw[chunkID] += idf * f * (k.k1 + 1) / (f + k.k1*norm)
		}
	}

	type hit struct {
		ScoredChunk
		seq uint64
	}
	hits := make([]hit, 0, len(raw))
	for chunkID, s := range raw {
		score := 0.0
		if maxScore > 0 {
			score = math.Min(1, s/maxScore)
		}
		hits = append(hits, hit{ScoredChunk: ScoredChunk{ChunkID: chunkID, Score: score}, seq: k.docs[chunkID].seq})
	}
	k.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = h.ScoredChunk
	}
	return out
}

func (k *KeywordIndex) unlinkLocked(chunkID string, d *keywordDoc) {
	for term := range d.terms {
		p := k.postings[term]
		delete(p, chunkID)
		if len(p) == 0 {
			delete(k.postings, term)
		}
	}
	k.totalLen -= d.length
	delete(k.docs, chunkID)
	if chunks := k.byDoc[d.documentID]; chunks != nil {
		delete(chunks, chunkID)
	}
}

// bm25IDF 取 Lucene 的非负 idf 形式
func bm25IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}
