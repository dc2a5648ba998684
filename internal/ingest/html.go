package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipElements are HTML elements whose text content is never knowledge.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"nav":      true,
	"footer":   true,
}

// blockElements introduce paragraph breaks in the extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "br": true, "tr": true, "blockquote": true, "pre": true,
}

// ExtractHTML pulls readable text from an HTML document, dropping scripts,
// styles, and navigation chrome, and keeping paragraph structure so the
// chunker has boundaries to work with.
func ExtractHTML(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
	}
	walk(root)

	text := normalizeBlankLines(sb.String())
	if text == "" {
		return "", fmt.Errorf("document contains no readable text")
	}
	return text, nil
}

// normalizeBlankLines collapses runs of blank lines left by nested block
// elements into single paragraph breaks.
func normalizeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
