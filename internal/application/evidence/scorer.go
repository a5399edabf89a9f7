// Package evidence 判定生成答案中每个句子能否被检索到的切片支撑，并给出置信度。
package evidence

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
	"rag-knowledge-hub/pkg/tracer"
)

// Measure 句子与切片之间的支撑度量
type Measure string

const (
	MeasureLexical  Measure = "lexical"
	MeasureSemantic Measure = "semantic"
	// MeasureHybrid 取词面与语义两者中较高者
	MeasureHybrid Measure = "hybrid"
)

const (
	defaultMinOverlap       = 0.5
	defaultMinEvidence      = 0.8
	defaultMinSentenceRunes = 10
	excerptRunes            = 240
)

// Disclaimer 证据不足时追加在答案末尾
const Disclaimer = "\n\n Note: This answer may not be fully supported by the available evidence."

type Params struct {
	Measure          Measure
	MinOverlap       float64
	MinEvidence      float64
	MinSentenceRunes int

	EvidenceWeight  float64
	RetrievalWeight float64
	CertaintyWeight float64
}

func DefaultParams() Params {
	return Params{
		Measure:          MeasureLexical,
		MinOverlap:       defaultMinOverlap,
		MinEvidence:      defaultMinEvidence,
		MinSentenceRunes: defaultMinSentenceRunes,
		EvidenceWeight:   0.5,
		RetrievalWeight:  0.5,
	}
}

func (p Params) normalized() Params {
	switch p.Measure {
	case MeasureLexical, MeasureSemantic, MeasureHybrid:
	default:
		p.Measure = MeasureLexical
	}
	if p.MinOverlap <= 0 {
		p.MinOverlap = defaultMinOverlap
	}
	if p.MinEvidence < 0 {
		p.MinEvidence = 0
	}
	if p.MinSentenceRunes <= 0 {
		p.MinSentenceRunes = defaultMinSentenceRunes
	}
	if p.EvidenceWeight < 0 {
		p.EvidenceWeight = 0
	}
	if p.RetrievalWeight < 0 {
		p.RetrievalWeight = 0
	}
	if p.CertaintyWeight < 0 {
		p.CertaintyWeight = 0
	}
	if p.EvidenceWeight+p.RetrievalWeight+p.CertaintyWeight == 0 {
		p.EvidenceWeight, p.RetrievalWeight = 0.5, 0.5
	}
	return p
}

// Candidate 参与支撑判定的检索切片
type Candidate struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Page       int
	Text       string
	FusedScore float64
	Embedding  []float32
}

// CandidatesFromHits 由检索结果构造候选
func CandidatesFromHits(hits []retrieval.Hit) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if h.Chunk == nil {
			continue
		}
		out = append(out, Candidate{
			ChunkID:    h.ChunkID,
			DocumentID: h.Chunk.DocumentID,
			Filename:   h.Filename,
			Page:       h.Chunk.Page,
			Text:       h.Chunk.Text,
			FusedScore: h.FusedScore,
			Embedding:  h.Chunk.Embedding,
		})
	}
	return out
}

// Result 评分结果
type Result struct {
	Report    entity.ConfidenceReport
	Citations []entity.Citation
	// Measure 实际使用的度量（语义度量不可用时退回 lexical）
	Measure Measure
}

type Scorer struct {
	params   Params
	embedder embedding.Embedder
}

// NewScorer embedder 仅在 semantic/hybrid 度量下使用，可以为 nil
func NewScorer(params Params, embedder embedding.Embedder) *Scorer {
	return &Scorer{params: params.normalized(), embedder: embedder}
}

func (s *Scorer) Params() Params {
	return s.params
}

// Score 逐句判定支撑。certainty 为模型自评置信度，nil 表示不可用，此时其权重不参与归一化。
func (s *Scorer) Score(ctx context.Context, answer string, candidates []Candidate, certainty *float64) Result {
	ctx, span := tracer.Start(ctx, "evidence.Scorer.Score")
	defer span.End()

	p := s.params
	res := Result{Measure: p.Measure}

	var claims []string
	for _, sent := range SplitSentences(answer) {
		if utf8.RuneCountInString(sent) < p.MinSentenceRunes {
			continue
		}
		claims = append(claims, sent)
	}

	var sentVecs [][]float32
	if p.Measure != MeasureLexical {
		vecs, err := s.embedClaims(ctx, claims)
		if err != nil {
			tracer.RecordError(span, err)
			logger.Warn(ctx, "semantic evidence unavailable, using lexical overlap", "error", err.Error())
			res.Measure = MeasureLexical
		} else {
			sentVecs = vecs
		}
	}

	chunkTerms := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		chunkTerms[i] = termSet(c.Text)
	}

	supporting := make(map[int]struct{})
	supported := 0
	for ci, claim := range claims {
		terms := contentTerms(claim)
		check := entity.ClaimCheck{Sentence: claim}
		for i, c := range candidates {
			var score float64
			switch res.Measure {
			case MeasureLexical:
				score = lexicalOverlap(terms, chunkTerms[i])
			case MeasureSemantic:
				score = semanticOverlap(sentVecs[ci], c.Embedding)
			case MeasureHybrid:
				score = max(lexicalOverlap(terms, chunkTerms[i]), semanticOverlap(sentVecs[ci], c.Embedding))
			}
			check.Overlap = max(check.Overlap, score)
			if score >= p.MinOverlap {
				check.ChunkIDs = append(check.ChunkIDs, c.ChunkID)
				supporting[i] = struct{}{}
			}
		}
		check.Supported = len(check.ChunkIDs) > 0
		if check.Supported {
			supported++
		}
		res.Report.Claims = append(res.Report.Claims, check)
	}

	switch {
	case len(claims) > 0:
		res.Report.EvidenceScore = float64(supported) / float64(len(claims))
	case len(SplitSentences(answer)) > 0:
		// 只有过短句子时没有可判定的论断
		res.Report.EvidenceScore = 1
	default:
		res.Report.EvidenceScore = 0
	}
	res.Report.InsufficientEvidence = res.Report.EvidenceScore < p.MinEvidence

	res.Citations = citations(candidates, supporting)
	res.Report.Confidence = confidence(p, res.Report.EvidenceScore, res.Citations, certainty)

	metrics.EvidenceScore.Observe(res.Report.EvidenceScore)
	return res
}

func (s *Scorer) embedClaims(ctx context.Context, claims []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if len(claims) == 0 {
		return nil, nil
	}
	ctx = service.WithWorkflow(ctx, service.WorkflowEvidence)
	v64, err := s.embedder.EmbedStrings(ctx, claims)
	if err != nil {
		return nil, err
	}
	if len(v64) != len(claims) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(v64), len(claims))
	}
	out := make([][]float32, len(v64))
	for i, v := range v64 {
		out[i] = make([]float32, len(v))
		for j, x := range v {
			out[i][j] = float32(x)
		}
	}
	return out, nil
}

// citations 只引用至少支撑一个句子的切片，按融合分降序
func citations(candidates []Candidate, supporting map[int]struct{}) []entity.Citation {
	out := make([]entity.Citation, 0, len(supporting))
	for i := range supporting {
		c := candidates[i]
		out = append(out, entity.Citation{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Page:       c.Page,
			Excerpt:    retrieval.Excerpt(c.Text, excerptRunes),
			Score:      c.FusedScore,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// confidence 证据分、被引切片平均融合分、自评置信度的加权和；权重按可用分量归一化
func confidence(p Params, evidence float64, cited []entity.Citation, certainty *float64) float64 {
	var retrievalScore float64
	if len(cited) > 0 {
		for _, c := range cited {
			retrievalScore += c.Score
		}
		retrievalScore /= float64(len(cited))
	}

	sum := p.EvidenceWeight*evidence + p.RetrievalWeight*retrievalScore
	weights := p.EvidenceWeight + p.RetrievalWeight
	if certainty != nil && p.CertaintyWeight > 0 {
		sum += p.CertaintyWeight * clamp01(*certainty)
		weights += p.CertaintyWeight
	}
	if weights == 0 {
		return clamp01(evidence)
	}
	return clamp01(sum / weights)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
