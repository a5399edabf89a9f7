package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"rag-knowledge-hub/internal/application/intent"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	workflowprompt "rag-knowledge-hub/internal/workflow/prompt"
)

const classifierHistoryTurns = 2

// IntentClassifier 规则弃权后的模型分类，只返回原始标签文本，由 intent 包解析
type IntentClassifier struct {
	factory  ChatModelFactory
	prompts  *workflowprompt.Registry
	provider string
}

var _ intent.ExternalClassifier = (*IntentClassifier)(nil)

func NewIntentClassifier(factory ChatModelFactory, prompts *workflowprompt.Registry, provider string) *IntentClassifier {
	if prompts == nil {
		prompts = workflowprompt.NewRegistry()
	}
	return &IntentClassifier{factory: factory, prompts: prompts, provider: provider}
}

func (c *IntentClassifier) ClassifyIntent(ctx context.Context, query string, history []entity.Turn) (string, error) {
	ctx = service.WithWorkflowProvider(ctx, service.WorkflowIntent, c.provider)

	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return "", err
	}
	tpl, err := c.prompts.ChatTemplate(workflowprompt.PromptIntentClassifyV1)
	if err != nil {
		return "", err
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		workflowprompt.VarLabels:  labelList(),
		workflowprompt.VarQuery:   strings.TrimSpace(query),
		workflowprompt.VarHistory: workflowprompt.FormatHistory(history, classifierHistoryTurns),
	})
	if err != nil {
		return "", err
	}

	out, err := chatModel.Generate(ctx, msgs, model.WithTemperature(0), model.WithMaxTokens(8))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("empty classifier response")
	}
	return out.Content, nil
}

func labelList() string {
	names := make([]string, 0, len(entity.AllIntents))
	for _, l := range entity.AllIntents {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}
