// Package security 在检索前拦截含个人敏感信息或专业建议请求的查询，并可在返回前脱敏答案。
package security

import (
	"regexp"
	"strings"
)

// RefusalMessage 被拦截查询的固定回复
const RefusalMessage = "I cannot process this request as it may contain sensitive information or requests for legal/medical advice. Please consult appropriate professionals."

const redactedMark = "[REDACTED]"

// DefaultBlockedTopics 默认拦截的专业建议关键词
var DefaultBlockedTopics = []string{
	"legal advice", "medical advice", "diagnosis", "treatment", "lawsuit", "court",
}

type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

var piiPatterns = []piiPattern{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"card", regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\s?\d{4}\b`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`)},
}

// Verdict 闸门判定
type Verdict struct {
	Allowed bool
	// PII 命中的敏感信息类别
	PII []string
	// Topics 命中的拦截关键词
	Topics []string
}

// Reason 供日志使用的拦截原因
func (v Verdict) Reason() string {
	var parts []string
	if len(v.PII) > 0 {
		parts = append(parts, "pii:"+strings.Join(v.PII, ","))
	}
	if len(v.Topics) > 0 {
		parts = append(parts, "topic:"+strings.Join(v.Topics, ","))
	}
	return strings.Join(parts, ";")
}

type Options struct {
	Enabled       bool
	BlockPII      bool
	BlockedTopics []string
	RedactAnswers bool
}

type Gate struct {
	opts   Options
	topics []string
}

func NewGate(opts Options) *Gate {
	topics := opts.BlockedTopics
	if topics == nil {
		topics = DefaultBlockedTopics
	}
	g := &Gate{opts: opts}
	for _, t := range topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			g.topics = append(g.topics, t)
		}
	}
	return g
}

// Check 关闭时一律放行
func (g *Gate) Check(query string) Verdict {
	v := Verdict{Allowed: true}
	if g == nil || !g.opts.Enabled {
		return v
	}
	if g.opts.BlockPII {
		for _, p := range piiPatterns {
			if p.re.MatchString(query) {
				v.PII = append(v.PII, p.kind)
			}
		}
	}
	lower := strings.ToLower(query)
	for _, t := range g.topics {
		if strings.Contains(lower, t) {
			v.Topics = append(v.Topics, t)
		}
	}
	v.Allowed = len(v.PII) == 0 && len(v.Topics) == 0
	return v
}

// Redact 开启答案脱敏时把 PII 替换为 [REDACTED]
func (g *Gate) Redact(answer string) string {
	if g == nil || !g.opts.Enabled || !g.opts.RedactAnswers {
		return answer
	}
	for _, p := range piiPatterns {
		answer = p.re.ReplaceAllString(answer, redactedMark)
	}
	return answer
}
