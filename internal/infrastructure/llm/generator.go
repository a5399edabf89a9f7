package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/internal/infrastructure/retry"
	workflowprompt "rag-knowledge-hub/internal/workflow/prompt"
	apperrors "rag-knowledge-hub/pkg/errors"
)

// GenerateInput 一次回答生成的输入
type GenerateInput struct {
	Intent  entity.IntentLabel
	Query   string
	Context string
	History []entity.Turn

	Temperature *float32
	MaxTokens   *int
}

// certaintyLine 模板要求模型在末行给出的自评置信度
var certaintyLine = regexp.MustCompile(`(?i)^\W*certainty\W*?:\W*?(\d*\.?\d+)\W*$`)

// GenerateOutput 生成结果与用量
type GenerateOutput struct {
	Answer           string
	Certainty        *float64 // 模型自评 [0,1]，未给出时为 nil
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// AnswerGenerator 按意图选择模板，基于检索上下文生成回答
type AnswerGenerator struct {
	factory      ChatModelFactory
	prompts      *workflowprompt.Registry
	provider     string
	policy       retry.Policy
	historyTurns int
}

func NewAnswerGenerator(factory ChatModelFactory, prompts *workflowprompt.Registry, provider string, policy retry.Policy, historyTurns int) *AnswerGenerator {
	if prompts == nil {
		prompts = workflowprompt.NewRegistry()
	}
	return &AnswerGenerator{
		factory:      factory,
		prompts:      prompts,
		provider:     provider,
		policy:       policy,
		historyTurns: historyTurns,
	}
}

func (g *AnswerGenerator) Generate(ctx context.Context, in *GenerateInput) (*GenerateOutput, error) {
	if g == nil || g.factory == nil {
		return nil, apperrors.New(apperrors.CodeLLMProviderError, "llm factory not configured")
	}
	if in == nil || strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	ctx = service.WithWorkflowProvider(ctx, service.WorkflowAnswer, g.provider)

	chatModel, err := g.factory.Get(ctx, g.provider)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "llm provider unavailable")
	}

	msgs, err := g.formatMessages(ctx, in)
	if err != nil {
		return nil, err
	}

	outMsg, err := retry.Do(ctx, g.policy, "llm_generate", func(ctx context.Context) (*schema.Message, error) {
		return chatModel.Generate(ctx, msgs, buildModelOptions(in)...)
	})
	if err != nil {
		// 重试耗尽
		return nil, apperrors.ErrExternalService.WithDetail("answer generation failed").WithError(err)
	}
	if outMsg == nil {
		return nil, apperrors.New(apperrors.CodeLLMProviderError, "empty llm response")
	}

	answer, certainty := splitCertainty(outMsg.Content)
	out := &GenerateOutput{
		Answer:    answer,
		Certainty: certainty,
		Provider:  g.provider,
	}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		out.PromptTokens = outMsg.ResponseMeta.Usage.PromptTokens
		out.CompletionTokens = outMsg.ResponseMeta.Usage.CompletionTokens
	}
	return out, nil
}

// splitCertainty 剥离末行的 "Certainty: x"，越界值截断到 [0,1]
func splitCertainty(content string) (string, *float64) {
	text := strings.TrimSpace(content)
	idx := strings.LastIndex(text, "\n")
	last := text[idx+1:]
	m := certaintyLine.FindStringSubmatch(strings.TrimSpace(last))
	if m == nil {
		return text, nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return text, nil
	}
	v = min(max(v, 0), 1)
	if idx < 0 {
		return "", &v
	}
	return strings.TrimSpace(text[:idx]), &v
}

func (g *AnswerGenerator) formatMessages(ctx context.Context, in *GenerateInput) ([]*schema.Message, error) {
	tpl, err := g.prompts.ChatTemplate(workflowprompt.AnswerPromptFor(in.Intent))
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, map[string]any{
		workflowprompt.VarContext: in.Context,
		workflowprompt.VarQuery:   strings.TrimSpace(in.Query),
		workflowprompt.VarHistory: workflowprompt.FormatHistory(in.History, g.historyTurns),
	})
}

func buildModelOptions(in *GenerateInput) []model.Option {
	var opts []model.Option
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	return opts
}
