package intent

import (
	"context"
	"strings"
	"time"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/internal/infrastructure/retry"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/tracer"
)

const defaultExternalTimeout = 5 * time.Second

// Source 意图结论的来源
type Source string

const (
	SourceRule     Source = "rule"
	SourceExternal Source = "external"
	SourceFallback Source = "fallback"
)

// Decision 带来源标记的分类结果
type Decision struct {
	Label  entity.IntentLabel
	Source Source
	// Rule 命中的规则名（仅 SourceRule）
	Rule string
}

// ExternalClassifier 外部分类端口，返回原始标签文本
type ExternalClassifier interface {
	ClassifyIntent(ctx context.Context, query string, history []entity.Turn) (string, error)
}

type Classifier struct {
	rules    []Rule
	external ExternalClassifier
	timeout  time.Duration
	policy   retry.Policy
}

// NewClassifier external 为 nil 时规则全部弃权直接给出 general。
// timeout 是外部分类（含全部重试）的总时限。
func NewClassifier(rules []Rule, external ExternalClassifier, timeout time.Duration, policy retry.Policy) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	return &Classifier{rules: rules, external: external, timeout: timeout, policy: policy}
}

func (c *Classifier) Classify(ctx context.Context, query string, history []entity.Turn) Decision {
	q := strings.TrimSpace(query)
	if q == "" {
		return Decision{Label: entity.IntentGeneral, Source: SourceFallback}
	}

	for _, r := range c.rules {
		if label, ok := r.Match(q); ok {
			return Decision{Label: label, Source: SourceRule, Rule: r.Name()}
		}
	}

	if c.external == nil {
		return Decision{Label: entity.IntentGeneral, Source: SourceFallback}
	}

	ctx, span := tracer.Start(ctx, "intent.Classifier.external")
	defer span.End()

	ctx, cancel := context.WithTimeout(service.WithWorkflow(ctx, service.WorkflowIntent), c.timeout)
	defer cancel()

	raw, err := retry.Do(ctx, c.policy, "llm_classify", func(ctx context.Context) (string, error) {
		return c.external.ClassifyIntent(ctx, q, history)
	})
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(ctx, "intent classification failed, using general", "error", err.Error())
		return Decision{Label: entity.IntentGeneral, Source: SourceFallback}
	}
	label, ok := ParseLabel(raw)
	if !ok {
		logger.Debug(ctx, "classifier returned unknown label", "raw", raw)
		return Decision{Label: entity.IntentGeneral, Source: SourceFallback}
	}
	return Decision{Label: label, Source: SourceExternal}
}

// ParseLabel 宽松解析模型输出：去掉引号、标点与多余说明，只取第一个词
func ParseLabel(raw string) (entity.IntentLabel, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "intent:")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z'))
	})
	if len(fields) == 0 {
		return "", false
	}
	return entity.ParseIntent(fields[0])
}

// Enhance 按意图改写检索用查询；改写结果只用于检索，不进入回答 prompt
func Enhance(query string, label entity.IntentLabel) string {
	switch label {
	case entity.IntentListRequest:
		return "List all items related to: " + query
	case entity.IntentSummary:
		return "Provide a comprehensive summary of: " + query
	case entity.IntentQuestion:
		return query
	default:
		return "Information about: " + query
	}
}
