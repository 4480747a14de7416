package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// htmlTagPattern matches tags for the last-resort strip path.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// htmlToText reduces an HTML document to readable plain text. Script and
// style blocks are dropped entirely (tag and content), block-level
// boundaries become newlines, and remaining visible text runs are joined
// by single spaces. Malformed HTML degrades to a best-effort strip; the
// function never fails.
func htmlToText(input string) string {
	if input == "" {
		return ""
	}

	node, err := html.Parse(strings.NewReader(input))
	if err != nil || node == nil {
		return strings.TrimSpace(htmlTagPattern.ReplaceAllString(input, " "))
	}

	var b strings.Builder
	collectText(&b, node)
	return strings.TrimSpace(b.String())
}

// collectText walks the DOM collecting visible text. It emits a newline
// at block boundaries and a space between inline text runs.
func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "head":
			return
		case "br", "hr":
			b.WriteString("\n")
		case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "table", "ul", "ol":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString(" ")
			}
			b.WriteString(text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n")
		}
	}
}
