package extraction

import (
	"errors"
	"strings"
	"testing"

	"rag-knowledge-hub/internal/domain/entity"
)

func TestExtractor_Text(t *testing.T) {
	format, pages, err := NewExtractor(nil).Extract("notes.txt", []byte("\ufeffRefunds are accepted within 30 days."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != entity.DocumentFormatText {
		t.Fatalf("expected txt, got %q", format)
	}
	if len(pages) != 1 || pages[0] != "Refunds are accepted within 30 days." {
		t.Fatalf("unexpected pages: %q", pages)
	}
}

func TestExtractor_Markdown(t *testing.T) {
	src := "# Refund Policy\n\nRefunds are **accepted** within\n30 days.\n\n- item one\n- item two\n\n<div>ignored</div>\n\n```\ncode line\n```\n"
	_, pages, err := NewExtractor(nil).Extract("policy.md", []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := pages[0]
	for _, want := range []string{"Refund Policy", "Refunds are accepted within 30 days.", "item one", "item two", "code line"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
	for _, unwanted := range []string{"#", "**", "<div>", "```"} {
		if strings.Contains(got, unwanted) {
			t.Fatalf("expected markup %q to be stripped from %q", unwanted, got)
		}
	}
}

func TestExtractor_HTML(t *testing.T) {
	src := `<html><head><title>t</title><style>p{color:red}</style></head>
<body><h1>Handbook</h1><p>Refunds within <b>30 days</b>.</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul></body></html>`
	_, pages, err := NewExtractor(nil).Extract("handbook.html", []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Handbook\nRefunds within 30 days.\none\ntwo"
	if pages[0] != want {
		t.Fatalf("expected %q, got %q", want, pages[0])
	}
}

func TestExtractor_Errors(t *testing.T) {
	e := NewExtractor([]string{"txt"})

	if _, _, err := e.Extract("sheet.xlsx", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, _, err := e.Extract("page.html", []byte("<p>x</p>")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected html to be disabled, got %v", err)
	}
	if _, _, err := e.Extract("empty.txt", []byte("   \n")); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed for blank text, got %v", err)
	}
	if _, _, err := e.Extract("bad.txt", []byte{0xff, 0xfe, 0xfd}); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed for invalid utf-8, got %v", err)
	}
}

func TestExtractor_CorruptPDF(t *testing.T) {
	if _, _, err := NewExtractor(nil).Extract("broken.pdf", []byte("not a pdf")); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}
