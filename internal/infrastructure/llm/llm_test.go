package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"rag-knowledge-hub/internal/config"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/infrastructure/retry"
	apperrors "rag-knowledge-hub/pkg/errors"
)

type fakeChatModel struct {
	reply    string
	failures int
	calls    int
	lastMsgs []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	m.lastMsgs = in
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("upstream 503")
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.reply,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 3},
		},
	}, nil
}

func (m *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type fakeFactory struct {
	m   *fakeChatModel
	err error
}

func (f *fakeFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.m, nil
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
}

func TestAnswerGenerator_UsesIntentTemplateAndRetries(t *testing.T) {
	m := &fakeChatModel{reply: "  - item one\n- item two  ", failures: 1}
	g := NewAnswerGenerator(&fakeFactory{m: m}, nil, "openai", testPolicy(), 4)

	out, err := g.Generate(context.Background(), &GenerateInput{
		Intent:  entity.IntentListRequest,
		Query:   "list the refund rules",
		Context: "[1] refunds within 30 days",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "- item one\n- item two" {
		t.Fatalf("expected trimmed answer, got %q", out.Answer)
	}
	if m.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", m.calls)
	}
	if out.PromptTokens != 12 || out.CompletionTokens != 3 {
		t.Fatalf("unexpected usage: %+v", out)
	}
	if len(m.lastMsgs) != 2 || !strings.Contains(m.lastMsgs[0].Content, "structured list") {
		t.Fatalf("expected list system prompt, got %+v", m.lastMsgs)
	}
	if !strings.Contains(m.lastMsgs[1].Content, "refunds within 30 days") {
		t.Fatalf("expected context in user prompt, got %q", m.lastMsgs[1].Content)
	}
}

func TestAnswerGenerator_ParsesCertaintyLine(t *testing.T) {
	m := &fakeChatModel{reply: "Refunds are accepted within 30 days.\nCertainty: 0.85"}
	g := NewAnswerGenerator(&fakeFactory{m: m}, nil, "openai", testPolicy(), 4)

	out, err := g.Generate(context.Background(), &GenerateInput{Query: "refund window?", Context: "[1] refunds"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "Refunds are accepted within 30 days." {
		t.Fatalf("expected certainty line stripped, got %q", out.Answer)
	}
	if out.Certainty == nil || *out.Certainty != 0.85 {
		t.Fatalf("expected certainty 0.85, got %v", out.Certainty)
	}
	if !strings.Contains(m.lastMsgs[0].Content, "Certainty:") {
		t.Fatalf("expected system prompt to request certainty, got %q", m.lastMsgs[0].Content)
	}
}

func TestSplitCertainty(t *testing.T) {
	cases := []struct {
		in     string
		answer string
		want   float64
		ok     bool
	}{
		{"Answer.\n**Certainty:** 0.4", "Answer.", 0.4, true},
		{"Answer.\ncertainty: 1.7", "Answer.", 1, true},
		{"Answer without a rating.", "Answer without a rating.", 0, false},
		{"Certainty matters here.\nFinal line.", "Certainty matters here.\nFinal line.", 0, false},
	}
	for _, tc := range cases {
		answer, c := splitCertainty(tc.in)
		if answer != tc.answer {
			t.Fatalf("%q: expected answer %q, got %q", tc.in, tc.answer, answer)
		}
		if (c != nil) != tc.ok || (c != nil && *c != tc.want) {
			t.Fatalf("%q: expected certainty %v/%v, got %v", tc.in, tc.want, tc.ok, c)
		}
	}
}

func TestAnswerGenerator_ExhaustedRetriesAreExternalFailure(t *testing.T) {
	m := &fakeChatModel{failures: 5}
	g := NewAnswerGenerator(&fakeFactory{m: m}, nil, "openai", testPolicy(), 4)

	_, err := g.Generate(context.Background(), &GenerateInput{Query: "q"})
	if apperrors.AsAppError(err) == nil || apperrors.AsAppError(err).Code != apperrors.CodeExternalServiceFailure {
		t.Fatalf("expected external service failure, got %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", m.calls)
	}
}

func TestAnswerGenerator_ProviderUnavailable(t *testing.T) {
	g := NewAnswerGenerator(&fakeFactory{err: errors.New("no key")}, nil, "openai", testPolicy(), 4)
	if _, err := g.Generate(context.Background(), &GenerateInput{Query: "q"}); err == nil {
		t.Fatalf("expected error when provider is unavailable")
	}
}

func TestIntentClassifier_ReturnsRawLabel(t *testing.T) {
	m := &fakeChatModel{reply: "summary"}
	c := NewIntentClassifier(&fakeFactory{m: m}, nil, "openai")

	raw, err := c.ClassifyIntent(context.Background(), "walk me through the handbook", []entity.Turn{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != "summary" {
		t.Fatalf("expected summary, got %q", raw)
	}
	if !strings.Contains(m.lastMsgs[0].Content, "list_request") {
		t.Fatalf("expected label list in system prompt, got %q", m.lastMsgs[0].Content)
	}
}

func TestEinoFactory_Configured(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "openai",
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "k", Model: "gpt-4o-mini"},
			"local":  {},
		},
	}}
	f := NewEinoFactory(cfg)
	if !f.Configured("") {
		t.Fatalf("expected default provider to be configured")
	}
	if f.Configured("local") {
		t.Fatalf("expected provider without key to be unconfigured")
	}
	if _, err := f.Get(context.Background(), "local"); err == nil {
		t.Fatalf("expected error for provider without key")
	}
	if got := f.Providers(); len(got) != 2 || got[0] != "local" {
		t.Fatalf("expected sorted providers, got %v", got)
	}
}
