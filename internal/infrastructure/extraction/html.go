package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

type htmlExtractor struct{}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true, "svg": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true, "table": true,
	"ul": true, "ol": true, "dd": true, "dt": true,
}

func (htmlExtractor) Extract(data []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteByte('\n')
		}
	}
	walk(doc)

	return []string{compactLines(buf.String())}, nil
}
