// Package noise strips boilerplate from extracted mail body text:
// signature blocks, disclaimers, unsubscribe footers and quoted replies.
//
// The rules are heuristic and lossy by design. A legitimate body line
// starting with ">" is stripped like any quoted line, and a short dash
// run can cut real content together with the signature. That tradeoff
// is accepted; the output feeds keyword review and archival, not
// round-trip reconstruction.
package noise

import (
	"regexp"
	"strings"
)

// rule pairs a compiled pattern with its replacement. Rules run in
// order; each rule operates on the output of the previous one.
type rule struct {
	pattern *regexp.Regexp
	repl    string
}

// rules is the fixed, ordered strip list.
var rules = []rule{
	// Signature block: a line of two or more dashes and everything after it.
	{regexp.MustCompile(`(?s)\n--+[ \t]*\n.*$`), ""},
	// Footer separator: a line starting with three or more '=' characters.
	{regexp.MustCompile(`(?ms)^={3,}.*$`), ""},
	// Confidentiality disclaimers, Japanese and English.
	{regexp.MustCompile(`(?s)このメールは.*?機密.*?含まれている.*$`), ""},
	{regexp.MustCompile(`(?is)this email.*?confidential.*$`), ""},
	// Unsubscribe footers, Japanese and English.
	{regexp.MustCompile(`(?s)配信停止.*?こちら.*$`), ""},
	{regexp.MustCompile(`(?is)unsubscribe.*$`), ""},
	// Quoted reply lines, removed individually.
	{regexp.MustCompile(`(?m)^[ \t]*>.*$`), ""},
	// Trailing "On <date>, <person> wrote:" quotation header and tail.
	{regexp.MustCompile(`(?s)\nOn .*? wrote:.*$`), ""},
	// Collapse excessive blank lines to a single blank line.
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// Reduce applies the ordered strip rules and trims surrounding
// whitespace. It is pure and total: empty input yields empty output.
func Reduce(text string) string {
	if text == "" {
		return ""
	}
	s := text
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return strings.TrimSpace(s)
}
