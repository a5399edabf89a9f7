package evidence

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
)

const (
	refundChunk   = "Refunds are issued within 30 days of purchase. Customers must include the original receipt."
	shippingChunk = "Standard shipping takes five business days within the continental United States."
	fourSentences = "Refunds are issued within 30 days of purchase. Customers must include the original receipt. " +
		"Standard shipping takes five business days. The company was founded on Mars by astronauts."
)

func candidates() []Candidate {
	return []Candidate{
		{ChunkID: "d1#0000", DocumentID: "d1", Filename: "refunds.pdf", Page: 1, Text: refundChunk, FusedScore: 0.7},
		{ChunkID: "d2#0000", DocumentID: "d2", Filename: "shipping.pdf", Page: 3, Text: shippingChunk, FusedScore: 0.9},
	}
}

func TestScorer_OneUnsupportedOfFour(t *testing.T) {
	s := NewScorer(DefaultParams(), nil)
	res := s.Score(context.Background(), fourSentences, candidates(), nil)

	if len(res.Report.Claims) != 4 {
		t.Fatalf("expected 4 claims, got %d", len(res.Report.Claims))
	}
	if math.Abs(res.Report.EvidenceScore-0.75) > 1e-9 {
		t.Fatalf("expected evidence 0.75, got %v", res.Report.EvidenceScore)
	}
	if !res.Report.InsufficientEvidence {
		t.Fatalf("expected insufficient evidence with minimum 0.8")
	}
	unsupported := res.Report.UnsupportedClaims()
	if len(unsupported) != 1 || unsupported[0] != "The company was founded on Mars by astronauts." {
		t.Fatalf("unexpected unsupported claims: %v", unsupported)
	}
	if len(res.Citations) != 2 || res.Citations[0].ChunkID != "d2#0000" {
		t.Fatalf("expected citations ordered by fused score, got %+v", res.Citations)
	}
	// 0.5*0.75 + 0.5*mean(0.9,0.7)
	if math.Abs(res.Report.Confidence-0.775) > 1e-9 {
		t.Fatalf("expected confidence 0.775, got %v", res.Report.Confidence)
	}
}

func TestScorer_SufficientWhenAllSupported(t *testing.T) {
	answer := "Refunds are issued within 30 days of purchase. Customers must include the original receipt."
	res := NewScorer(DefaultParams(), nil).Score(context.Background(), answer, candidates(), nil)
	if res.Report.EvidenceScore != 1 || res.Report.InsufficientEvidence {
		t.Fatalf("expected full evidence, got %+v", res.Report)
	}
	if len(res.Citations) != 1 || res.Citations[0].ChunkID != "d1#0000" {
		t.Fatalf("expected only the supporting chunk cited, got %+v", res.Citations)
	}
}

func TestScorer_EvidenceMonotonicInContext(t *testing.T) {
	s := NewScorer(DefaultParams(), nil)
	all := candidates()
	smaller := s.Score(context.Background(), fourSentences, all[:1], nil).Report.EvidenceScore
	larger := s.Score(context.Background(), fourSentences, all, nil).Report.EvidenceScore
	if smaller > larger {
		t.Fatalf("expected evidence to grow with the context set, got %v then %v", smaller, larger)
	}
	if none := s.Score(context.Background(), fourSentences, nil, nil).Report.EvidenceScore; none > smaller {
		t.Fatalf("expected no context to score lowest, got %v", none)
	}
}

func TestScorer_ShortSentencesAreNotClaims(t *testing.T) {
	s := NewScorer(DefaultParams(), nil)
	res := s.Score(context.Background(), "Yes. Ok!", candidates(), nil)
	if len(res.Report.Claims) != 0 || res.Report.EvidenceScore != 1 {
		t.Fatalf("expected no claims and full evidence, got %+v", res.Report)
	}
	if empty := s.Score(context.Background(), "   ", candidates(), nil); empty.Report.EvidenceScore != 0 || !empty.Report.InsufficientEvidence {
		t.Fatalf("expected empty answer to have no evidence, got %+v", empty.Report)
	}
}

func TestScorer_CertaintyWeight(t *testing.T) {
	p := DefaultParams()
	p.CertaintyWeight = 1
	certain := 1.0
	answer := "Refunds are issued within 30 days of purchase."
	with := NewScorer(p, nil).Score(context.Background(), answer, candidates(), &certain).Report.Confidence
	// (0.5*1 + 0.5*0.7 + 1*1) / 2
	if math.Abs(with-0.925) > 1e-9 {
		t.Fatalf("expected 0.925, got %v", with)
	}
	without := NewScorer(p, nil).Score(context.Background(), answer, candidates(), nil).Report.Confidence
	// 权重重新归一化到 evidence 与 retrieval
	if math.Abs(without-0.85) > 1e-9 {
		t.Fatalf("expected 0.85, got %v", without)
	}
}

type tableEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e *tableEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func TestScorer_SemanticMeasure(t *testing.T) {
	cands := candidates()
	cands[0].Embedding = []float32{1, 0, 0}
	cands[1].Embedding = []float32{0, 1, 0}
	emb := &tableEmbedder{vectors: map[string][]float64{
		"Money comes back within a month of buying.": {0.9, 0.1, 0},
	}}
	p := DefaultParams()
	p.Measure = MeasureSemantic

	res := NewScorer(p, emb).Score(context.Background(), "Money comes back within a month of buying.", cands, nil)
	if res.Measure != MeasureSemantic {
		t.Fatalf("expected semantic measure, got %s", res.Measure)
	}
	if res.Report.EvidenceScore != 1 || len(res.Citations) != 1 || res.Citations[0].ChunkID != "d1#0000" {
		t.Fatalf("expected paraphrase supported by refund chunk, got %+v / %+v", res.Report, res.Citations)
	}

	lexical := NewScorer(DefaultParams(), nil).Score(context.Background(), "Money comes back within a month of buying.", cands, nil)
	if lexical.Report.EvidenceScore != 0 {
		t.Fatalf("expected lexical measure to miss the paraphrase, got %v", lexical.Report.EvidenceScore)
	}
}

func TestScorer_SemanticFailureFallsBackToLexical(t *testing.T) {
	p := DefaultParams()
	p.Measure = MeasureHybrid
	res := NewScorer(p, &tableEmbedder{err: errors.New("timeout")}).Score(context.Background(), fourSentences, candidates(), nil)
	if res.Measure != MeasureLexical {
		t.Fatalf("expected lexical fallback, got %s", res.Measure)
	}
	if math.Abs(res.Report.EvidenceScore-0.75) > 1e-9 {
		t.Fatalf("expected lexical evidence 0.75, got %v", res.Report.EvidenceScore)
	}
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Rate is 3.5 percent. Next!", []string{"Rate is 3.5 percent.", "Next!"}},
		{"Really?! Yes...", []string{"Really?!", "Yes..."}},
		{"- first item\n- second item", []string{"first item", "second item"}},
		{"退款在三十天内处理。请保留收据！", []string{"退款在三十天内处理。", "请保留收据！"}},
		{"", nil},
	}
	for _, tc := range cases {
		if got := SplitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitSentences(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
