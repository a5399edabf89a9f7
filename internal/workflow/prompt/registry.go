// Package prompt 管理问答与意图分类使用的 Prompt 模板
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"rag-knowledge-hub/internal/domain/entity"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptAnswerQuestionV1 PromptID = "answer_question_v1"
	PromptAnswerListV1     PromptID = "answer_list_v1"
	PromptAnswerSummaryV1  PromptID = "answer_summary_v1"
	PromptIntentClassifyV1 PromptID = "intent_classify_v1"
)

// 模板变量
const (
	VarContext = "context"
	VarQuery   = "query"
	VarHistory = "history"
	VarLabels  = "labels"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// AnswerPromptFor 按意图选择回答模板；无专用模板的意图使用问答模板
func AnswerPromptFor(intent entity.IntentLabel) PromptID {
	switch intent {
	case entity.IntentListRequest:
		return PromptAnswerListV1
	case entity.IntentSummary:
		return PromptAnswerSummaryV1
	default:
		return PromptAnswerQuestionV1
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptAnswerQuestionV1, PromptAnswerListV1, PromptAnswerSummaryV1, PromptIntentClassifyV1:
		return "templates/" + string(id) + ".system.txt", "templates/" + string(id) + ".user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// FormatHistory 把最近若干轮对话渲染为 prompt 片段；没有历史时返回 "(none)"
func FormatHistory(turns []entity.Turn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	var b strings.Builder
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(t.Role))
		if role == "" {
			role = "user"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}
