// Package qa 编排一次问答：安全闸门、意图、检索、生成与证据评分
package qa

import (
	"context"
	"errors"
	"strings"
	"time"

	"rag-knowledge-hub/internal/application/evidence"
	"rag-knowledge-hub/internal/application/intent"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/application/security"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/infrastructure/llm"
	apperrors "rag-knowledge-hub/pkg/errors"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
	"rag-knowledge-hub/pkg/tracer"
)

// 固定回复
const (
	GreetingAnswer  = "Hello! I'm here to help you find information from your uploaded documents. What would you like to know?"
	FinishAnswer    = "Thank you for using RAG Knowledge Hub! I'm glad I could help you find the information you needed. Have a great day and feel free to come back anytime! 👋"
	NoContextAnswer = "I couldn't find sufficient evidence in the knowledge base to answer your question. Please try rephrasing or upload more relevant documents."
)

// 证据不足时的处理方式
const (
	OnInsufficientAnnotate = "annotate"
	OnInsufficientSuppress = "suppress"
	OnInsufficientNone     = "none"
)

// 指标 outcome 标签
const (
	outcomeAnswered  = "answered"
	outcomeFixed     = "fixed"
	outcomeRefused   = "refused"
	outcomeNoContext = "no_context"
	outcomeWeak      = "insufficient_evidence"
	outcomeError     = "error"
)

// Searcher 检索端口，由 retrieval.Engine 实现
type Searcher interface {
	Search(ctx context.Context, query string, p retrieval.Params) (*retrieval.SearchOutput, error)
}

// Generator 回答生成端口，由 llm.AnswerGenerator 实现
type Generator interface {
	Generate(ctx context.Context, in *llm.GenerateInput) (*llm.GenerateOutput, error)
}

// Overrides 单次请求覆盖的检索参数
type Overrides struct {
	TopK           *int     `json:"top_k,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
	Hybrid         *bool    `json:"hybrid,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
}

// Apply 覆盖后重新校正
func (o Overrides) Apply(p retrieval.Params) retrieval.Params {
	if o.TopK != nil {
		p.TopK = *o.TopK
	}
	if o.Threshold != nil {
		p.Threshold = *o.Threshold
	}
	if o.Hybrid != nil {
		p.Hybrid = *o.Hybrid
	}
	if o.SemanticWeight != nil {
		p.SemanticWeight = *o.SemanticWeight
	}
	return p.Sanitize()
}

// Question 一次提问
type Question struct {
	Query     string
	History   []entity.Turn
	Overrides Overrides
}

// Answer 问答结果
type Answer struct {
	Answer               string            `json:"answer"`
	Citations            []entity.Citation `json:"citations"`
	Confidence           float64           `json:"confidence"`
	EvidenceScore        float64           `json:"evidence_score"`
	InsufficientEvidence bool              `json:"insufficient_evidence"`
	UnsupportedClaims    []string          `json:"unsupported_claims"`
	QueryType            string            `json:"query_type"`
	Degraded             bool              `json:"degraded"`
	DegradedReason       string            `json:"degraded_reason,omitempty"`
	Mode                 retrieval.Mode    `json:"mode,omitempty"`
	ProcessingTime       float64           `json:"processing_time"`
}

// Options 服务参数
type Options struct {
	Params          retrieval.Params
	ContextMaxRunes int
	OnInsufficient  string
}

type Service struct {
	gate       *security.Gate
	classifier *intent.Classifier
	searcher   Searcher
	generator  Generator
	scorer     *evidence.Scorer
	opts       Options
}

func NewService(gate *security.Gate, classifier *intent.Classifier, searcher Searcher, generator Generator, scorer *evidence.Scorer, opts Options) *Service {
	switch opts.OnInsufficient {
	case OnInsufficientAnnotate, OnInsufficientSuppress, OnInsufficientNone:
	default:
		opts.OnInsufficient = OnInsufficientAnnotate
	}
	opts.Params = opts.Params.Sanitize()
	return &Service{
		gate:       gate,
		classifier: classifier,
		searcher:   searcher,
		generator:  generator,
		scorer:     scorer,
		opts:       opts,
	}
}

// Ask 回答一个问题
func (s *Service) Ask(ctx context.Context, q *Question) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "qa.Service.Ask")
	defer span.End()
	start := time.Now()

	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("query is required")
	}

	if v := s.gate.Check(query); !v.Allowed {
		logger.Warn(ctx, "query refused by security gate", "reason", v.Reason())
		metrics.QueryTotal.WithLabelValues(entity.QueryTypeRefused, outcomeRefused).Inc()
		return s.finish(start, &Answer{Answer: security.RefusalMessage, QueryType: entity.QueryTypeRefused}), nil
	}

	decision := s.classifier.Classify(ctx, query, q.History)
	label := decision.Label
	logger.Debug(ctx, "query classified", "intent", label, "source", decision.Source, "rule", decision.Rule)

	switch label {
	case entity.IntentGreeting:
		metrics.QueryTotal.WithLabelValues(string(label), outcomeFixed).Inc()
		return s.finish(start, fixedAnswer(GreetingAnswer, label)), nil
	case entity.IntentFinish:
		metrics.QueryTotal.WithLabelValues(string(label), outcomeFixed).Inc()
		return s.finish(start, fixedAnswer(FinishAnswer, label)), nil
	}

	params := q.Overrides.Apply(s.opts.Params)
	out, err := s.searcher.Search(ctx, intent.Enhance(query, label), params)
	if err != nil {
		metrics.QueryTotal.WithLabelValues(string(label), outcomeError).Inc()
		tracer.RecordError(span, err)
		return nil, translateSearchError(err)
	}

	ans := &Answer{
		QueryType:      string(label),
		Mode:           out.Mode,
		Degraded:       out.DisabledReason != "",
		DegradedReason: out.DisabledReason,
		Citations:      []entity.Citation{},
	}
	if out.NoRelevantContext() {
		ans.Answer = NoContextAnswer
		ans.InsufficientEvidence = true
		metrics.QueryTotal.WithLabelValues(string(label), outcomeNoContext).Inc()
		return s.finish(start, ans), nil
	}

	gen, err := s.generator.Generate(ctx, &llm.GenerateInput{
		Intent:  label,
		Query:   query,
		Context: retrieval.BuildPromptContext(out.Hits, s.opts.ContextMaxRunes),
		History: q.History,
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues(string(label), outcomeError).Inc()
		tracer.RecordError(span, err)
		return nil, translateGenerateError(err)
	}

	scored := s.scorer.Score(ctx, gen.Answer, evidence.CandidatesFromHits(out.Hits), gen.Certainty)
	report := scored.Report
	ans.Answer = gen.Answer
	ans.Citations = scored.Citations
	ans.Confidence = report.Confidence
	ans.EvidenceScore = report.EvidenceScore
	ans.InsufficientEvidence = report.InsufficientEvidence
	ans.UnsupportedClaims = report.UnsupportedClaims()

	outcome := outcomeAnswered
	if report.InsufficientEvidence {
		outcome = outcomeWeak
		switch s.opts.OnInsufficient {
		case OnInsufficientAnnotate:
			ans.Answer += evidence.Disclaimer
		case OnInsufficientSuppress:
			ans.Answer = NoContextAnswer
			ans.Confidence = 0
		}
	}
	ans.Answer = s.gate.Redact(ans.Answer)

	metrics.QueryTotal.WithLabelValues(string(label), outcome).Inc()
	logger.Info(ctx, "query answered",
		"intent", label, "mode", out.Mode, "hits", len(out.Hits),
		"evidence", report.EvidenceScore, "confidence", report.Confidence,
		"provider", gen.Provider, "model", gen.Model)
	return s.finish(start, ans), nil
}

// Search 只运行融合检索，不生成回答
func (s *Service) Search(ctx context.Context, query string, o Overrides) (*retrieval.SearchOutput, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("query is required")
	}
	out, err := s.searcher.Search(ctx, query, o.Apply(s.opts.Params))
	if err != nil {
		return nil, translateSearchError(err)
	}
	return out, nil
}

func (s *Service) finish(start time.Time, ans *Answer) *Answer {
	if ans.Citations == nil {
		ans.Citations = []entity.Citation{}
	}
	if ans.UnsupportedClaims == nil {
		ans.UnsupportedClaims = []string{}
	}
	ans.ProcessingTime = time.Since(start).Seconds()
	return ans
}

func fixedAnswer(text string, label entity.IntentLabel) *Answer {
	return &Answer{
		Answer:        text,
		Confidence:    1,
		EvidenceScore: 1,
		QueryType:     string(label),
	}
}

func translateSearchError(err error) error {
	switch {
	case errors.Is(err, retrieval.ErrEmptyKnowledgeBase):
		return apperrors.ErrEmptyKnowledgeBase.WithError(err)
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		return apperrors.ErrDimensionMismatch.WithError(err)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.ErrRetrievalFailed.WithError(err)
	}
}

// translateGenerateError 生成端已给出错误码时保留，否则视为外部服务失败
func translateGenerateError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.ErrExternalService.WithError(err)
}
