package prompt

import (
	"context"
	"strings"
	"testing"

	"rag-knowledge-hub/internal/domain/entity"
)

func TestRegistry_FormatsAnswerTemplates(t *testing.T) {
	r := NewRegistry()
	for _, id := range []PromptID{PromptAnswerQuestionV1, PromptAnswerListV1, PromptAnswerSummaryV1} {
		tpl, err := r.ChatTemplate(id)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		msgs, err := tpl.Format(context.Background(), map[string]any{
			VarContext: "[1] (policy.pdf, page 2) refunds within 30 days",
			VarQuery:   "what is the refund window",
			VarHistory: "(none)",
		})
		if err != nil {
			t.Fatalf("%s: format: %v", id, err)
		}
		if len(msgs) != 2 {
			t.Fatalf("%s: expected system+user messages, got %d", id, len(msgs))
		}
		user := msgs[1].Content
		if !strings.Contains(user, "refunds within 30 days") || !strings.Contains(user, "what is the refund window") {
			t.Fatalf("%s: expected context and query in user message, got %q", id, user)
		}
	}
}

func TestRegistry_CachesTemplates(t *testing.T) {
	r := NewRegistry()
	a, err := r.ChatTemplate(PromptIntentClassifyV1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := r.ChatTemplate(PromptIntentClassifyV1)
	if a != b {
		t.Fatalf("expected cached template instance")
	}
	if _, err := r.ChatTemplate("nope"); err == nil {
		t.Fatalf("expected error for unknown prompt id")
	}
}

func TestAnswerPromptFor(t *testing.T) {
	cases := map[entity.IntentLabel]PromptID{
		entity.IntentListRequest: PromptAnswerListV1,
		entity.IntentSummary:     PromptAnswerSummaryV1,
		entity.IntentQuestion:    PromptAnswerQuestionV1,
		entity.IntentGeneral:     PromptAnswerQuestionV1,
	}
	for intent, want := range cases {
		if got := AnswerPromptFor(intent); got != want {
			t.Fatalf("intent %s: expected %s, got %s", intent, want, got)
		}
	}
}

func TestFormatHistory(t *testing.T) {
	if got := FormatHistory(nil, 3); got != "(none)" {
		t.Fatalf("expected (none), got %q", got)
	}
	turns := []entity.Turn{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "USER", Content: "third"},
	}
	got := FormatHistory(turns, 2)
	if got != "assistant: second\nuser: third" {
		t.Fatalf("unexpected history: %q", got)
	}
}
