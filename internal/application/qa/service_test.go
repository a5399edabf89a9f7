package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"rag-knowledge-hub/internal/application/evidence"
	"rag-knowledge-hub/internal/application/intent"
	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/application/security"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/infrastructure/llm"
	"rag-knowledge-hub/internal/infrastructure/retry"
	apperrors "rag-knowledge-hub/pkg/errors"
)

type fakeSearcher struct {
	out     *retrieval.SearchOutput
	err     error
	queries []string
	params  []retrieval.Params
}

func (f *fakeSearcher) Search(_ context.Context, query string, p retrieval.Params) (*retrieval.SearchOutput, error) {
	f.queries = append(f.queries, query)
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeGenerator struct {
	answer    string
	certainty *float64
	err       error
	inputs    []*llm.GenerateInput
}

func (f *fakeGenerator) Generate(_ context.Context, in *llm.GenerateInput) (*llm.GenerateOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateOutput{Answer: f.answer, Certainty: f.certainty, Provider: "fake", Model: "fake-1"}, nil
}

const refundText = "Refunds are accepted within 30 days of purchase with a receipt."

func refundHits() *retrieval.SearchOutput {
	return &retrieval.SearchOutput{
		Mode: retrieval.ModeHybrid,
		Hits: []retrieval.Hit{{
			SearchResult: retrieval.SearchResult{ChunkID: "d1#0000", FusedScore: 0.9, Rank: 1},
			Chunk:        &entity.Chunk{ID: "d1#0000", DocumentID: "d1", Page: 2, Text: refundText},
			Filename:     "policy.pdf",
		}},
	}
}

func newTestService(s Searcher, g Generator, onInsufficient string) *Service {
	return newTestServiceWithScorer(s, g, onInsufficient, evidence.DefaultParams())
}

func newTestServiceWithScorer(s Searcher, g Generator, onInsufficient string, sp evidence.Params) *Service {
	gate := security.NewGate(security.Options{Enabled: true, BlockPII: true, RedactAnswers: true})
	return NewService(gate, intent.NewClassifier(nil, nil, 0, retry.Policy{}), s, g,
		evidence.NewScorer(sp, nil),
		Options{Params: retrieval.DefaultParams(), ContextMaxRunes: 4000, OnInsufficient: onInsufficient})
}

func TestAskRefusedByGate(t *testing.T) {
	s, g := &fakeSearcher{}, &fakeGenerator{}
	svc := newTestService(s, g, OnInsufficientAnnotate)

	ans, err := svc.Ask(context.Background(), &Question{Query: "Can you give me legal advice about my lawsuit?"})
	if err != nil {
		t.Fatalf("expected refusal without error, got %v", err)
	}
	if ans.Answer != security.RefusalMessage || ans.QueryType != entity.QueryTypeRefused {
		t.Fatalf("expected refusal, got %+v", ans)
	}
	if ans.Confidence != 0 || len(s.queries) != 0 || len(g.inputs) != 0 {
		t.Fatalf("expected no retrieval or generation")
	}
}

func TestAskGreetingAndFinish(t *testing.T) {
	s, g := &fakeSearcher{}, &fakeGenerator{}
	svc := newTestService(s, g, OnInsufficientAnnotate)

	ans, err := svc.Ask(context.Background(), &Question{Query: "hello"})
	if err != nil {
		t.Fatalf("expected greeting, got %v", err)
	}
	if ans.Answer != GreetingAnswer || ans.QueryType != string(entity.IntentGreeting) || ans.Confidence != 1 || ans.EvidenceScore != 1 {
		t.Fatalf("unexpected greeting answer %+v", ans)
	}

	ans, err = svc.Ask(context.Background(), &Question{Query: "thanks, goodbye"})
	if err != nil {
		t.Fatalf("expected finish, got %v", err)
	}
	if ans.Answer != FinishAnswer || ans.QueryType != string(entity.IntentFinish) {
		t.Fatalf("unexpected finish answer %+v", ans)
	}
	if len(s.queries) != 0 {
		t.Fatalf("expected no retrieval for fixed answers, got %v", s.queries)
	}
	if ans.Citations == nil || ans.UnsupportedClaims == nil {
		t.Fatalf("expected empty slices instead of nil")
	}
}

func TestAskEmptyKnowledgeBase(t *testing.T) {
	svc := newTestService(&fakeSearcher{err: retrieval.ErrEmptyKnowledgeBase}, &fakeGenerator{}, OnInsufficientAnnotate)

	_, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if !errors.Is(err, retrieval.ErrEmptyKnowledgeBase) {
		t.Fatalf("expected empty knowledge base error, got %v", err)
	}
	if apperrors.AsAppError(err).Code != apperrors.CodeEmptyKnowledgeBase {
		t.Fatalf("expected code %s, got %v", apperrors.CodeEmptyKnowledgeBase, err)
	}
}

func TestAskNoRelevantContext(t *testing.T) {
	g := &fakeGenerator{}
	svc := newTestService(&fakeSearcher{out: &retrieval.SearchOutput{Mode: retrieval.ModeKeyword, DisabledReason: "vector retrieval is disabled"}}, g, OnInsufficientAnnotate)

	ans, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if err != nil {
		t.Fatalf("expected no-context answer, got %v", err)
	}
	if ans.Answer != NoContextAnswer || ans.Confidence != 0 {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if ans.QueryType != string(entity.IntentQuestion) || !ans.Degraded {
		t.Fatalf("expected degraded question, got %+v", ans)
	}
	if len(g.inputs) != 0 {
		t.Fatalf("expected no generation without context")
	}
}

func TestAskSupportedAnswer(t *testing.T) {
	s := &fakeSearcher{out: refundHits()}
	g := &fakeGenerator{answer: refundText}
	svc := newTestService(s, g, OnInsufficientAnnotate)

	history := []entity.Turn{{Role: "user", Content: "hi"}}
	topK := 3
	ans, err := svc.Ask(context.Background(), &Question{
		Query:     "What is the refund window?",
		History:   history,
		Overrides: Overrides{TopK: &topK},
	})
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if ans.Answer != refundText || ans.InsufficientEvidence {
		t.Fatalf("expected supported answer without disclaimer, got %+v", ans)
	}
	if ans.EvidenceScore != 1 || len(ans.UnsupportedClaims) != 0 {
		t.Fatalf("expected full evidence, got %+v", ans)
	}
	if len(ans.Citations) != 1 || ans.Citations[0].Filename != "policy.pdf" || ans.Citations[0].Page != 2 {
		t.Fatalf("expected one citation, got %+v", ans.Citations)
	}
	if s.queries[0] != "What is the refund window?" || s.params[0].TopK != 3 {
		t.Fatalf("unexpected search call %q %+v", s.queries[0], s.params[0])
	}
	in := g.inputs[0]
	if in.Intent != entity.IntentQuestion || !strings.Contains(in.Context, "Refunds are accepted") || len(in.History) != 1 {
		t.Fatalf("unexpected generation input %+v", in)
	}
}

func TestAskInsufficientEvidencePolicies(t *testing.T) {
	unsupported := "Shipping to Antarctica costs forty dollars per parcel."

	svc := newTestService(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: unsupported}, OnInsufficientAnnotate)
	ans, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if !ans.InsufficientEvidence || !strings.HasSuffix(ans.Answer, evidence.Disclaimer) {
		t.Fatalf("expected annotated answer, got %q", ans.Answer)
	}
	if len(ans.UnsupportedClaims) != 1 || ans.UnsupportedClaims[0] != unsupported {
		t.Fatalf("expected unsupported claim reported, got %v", ans.UnsupportedClaims)
	}

	svc = newTestService(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: unsupported}, OnInsufficientSuppress)
	ans, _ = svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if ans.Answer != NoContextAnswer || ans.Confidence != 0 {
		t.Fatalf("expected suppressed answer, got %+v", ans)
	}

	svc = newTestService(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: unsupported}, OnInsufficientNone)
	ans, _ = svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if ans.Answer != unsupported {
		t.Fatalf("expected untouched answer, got %q", ans.Answer)
	}
}

func TestAskGenerationError(t *testing.T) {
	boom := apperrors.New(apperrors.CodeLLMProviderError, "llm provider unavailable")
	svc := newTestService(&fakeSearcher{out: refundHits()}, &fakeGenerator{err: boom}, OnInsufficientAnnotate)

	_, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if apperrors.AsAppError(err).Code != apperrors.CodeLLMProviderError {
		t.Fatalf("expected llm provider error, got %v", err)
	}
}

func TestAskGenerationFailureIsExternalServiceError(t *testing.T) {
	svc := newTestService(&fakeSearcher{out: refundHits()}, &fakeGenerator{err: errors.New("upstream 503")}, OnInsufficientAnnotate)

	_, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if apperrors.AsAppError(err).Code != apperrors.CodeExternalServiceFailure {
		t.Fatalf("expected external service failure, got %v", err)
	}
}

func TestAskSearchErrorCodes(t *testing.T) {
	mismatch := fmt.Errorf("%w: expected 768, got 1024", retrieval.ErrDimensionMismatch)
	svc := newTestService(&fakeSearcher{err: mismatch}, &fakeGenerator{}, OnInsufficientAnnotate)
	_, err := svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if !errors.Is(err, retrieval.ErrDimensionMismatch) || apperrors.AsAppError(err).Code != apperrors.CodeDimensionMismatch {
		t.Fatalf("expected dimension mismatch code, got %v", err)
	}

	svc = newTestService(&fakeSearcher{err: errors.New("milvus: connection refused")}, &fakeGenerator{}, OnInsufficientAnnotate)
	_, err = svc.Ask(context.Background(), &Question{Query: "What is the refund window?"})
	if apperrors.AsAppError(err).Code != apperrors.CodeRetrievalFailed {
		t.Fatalf("expected retrieval failed code, got %v", err)
	}
}

func TestAskUsesModelCertainty(t *testing.T) {
	sp := evidence.DefaultParams()
	sp.CertaintyWeight = 1
	q := &Question{Query: "What is the refund window?"}

	base, err := newTestServiceWithScorer(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: refundText}, OnInsufficientAnnotate, sp).Ask(context.Background(), q)
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}

	zero := 0.0
	doubtful, err := newTestServiceWithScorer(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: refundText, certainty: &zero}, OnInsufficientAnnotate, sp).Ask(context.Background(), q)
	if err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if doubtful.Confidence >= base.Confidence {
		t.Fatalf("expected low certainty to lower confidence, got %v >= %v", doubtful.Confidence, base.Confidence)
	}

	full := 1.0
	sure, _ := newTestServiceWithScorer(&fakeSearcher{out: refundHits()}, &fakeGenerator{answer: refundText, certainty: &full}, OnInsufficientAnnotate, sp).Ask(context.Background(), q)
	if sure.Confidence <= doubtful.Confidence {
		t.Fatalf("expected high certainty above low certainty, got %v <= %v", sure.Confidence, doubtful.Confidence)
	}
}

func TestAskListIntentEnhancesRetrievalOnly(t *testing.T) {
	s := &fakeSearcher{out: refundHits()}
	g := &fakeGenerator{answer: refundText}
	svc := newTestService(s, g, OnInsufficientAnnotate)

	if _, err := svc.Ask(context.Background(), &Question{Query: "list the refund rules"}); err != nil {
		t.Fatalf("expected answer, got %v", err)
	}
	if s.queries[0] != "List all items related to: list the refund rules" {
		t.Fatalf("expected enhanced retrieval query, got %q", s.queries[0])
	}
	if g.inputs[0].Query != "list the refund rules" || g.inputs[0].Intent != entity.IntentListRequest {
		t.Fatalf("expected raw query in generation, got %+v", g.inputs[0])
	}
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	svc := newTestService(&fakeSearcher{}, &fakeGenerator{}, OnInsufficientAnnotate)
	if _, err := svc.Search(context.Background(), "  ", Overrides{}); apperrors.AsAppError(err).Code != apperrors.CodeInvalidParam {
		t.Fatalf("expected invalid param, got %v", err)
	}
}

func TestOverridesApplySanitizes(t *testing.T) {
	w := 3.0
	p := Overrides{SemanticWeight: &w}.Apply(retrieval.DefaultParams())
	if p.SemanticWeight != 1 {
		t.Fatalf("expected weight clamped to 1, got %v", p.SemanticWeight)
	}
}
