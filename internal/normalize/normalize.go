// Package normalize canonicalizes message text so that keyword matching is
// insensitive to width, script and casing variants common in Japanese mail.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Options toggles the individual normalization steps. Each effect is
// independent; zero-value Options only lowercases ASCII.
type Options struct {
	// ToHalfWidth applies Unicode compatibility folding (NFKC) so
	// full-width digits, Latin letters and punctuation collapse to
	// their half-width forms.
	ToHalfWidth bool

	// UnifyKana maps hiragana onto katakana character-for-character so
	// script choice does not affect matching.
	UnifyKana bool

	// TrimSpaces collapses whitespace runs to a single space and strips
	// leading and trailing whitespace.
	TrimSpaces bool
}

// spaceRun matches runs of whitespace, including the ideographic space
// which survives when width folding is disabled.
var spaceRun = regexp.MustCompile(`[\s\x{3000}]+`)

// Normalize canonicalizes text. The step order is fixed: width folding
// runs before kana unification, ASCII lowercasing is unconditional, and
// whitespace collapsing runs last so it cleans up anything folding
// introduced. Empty input yields empty output; the function never fails.
func Normalize(text string, opts Options) string {
	if text == "" {
		return ""
	}

	s := text

	if opts.ToHalfWidth {
		s = norm.NFKC.String(s)
	}

	if opts.UnifyKana {
		s = hiraganaToKatakana(s)
	}

	s = lowerASCII(s)

	if opts.TrimSpaces {
		s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	}

	return s
}

// hiraganaToKatakana shifts characters in the hiragana block onto their
// katakana counterparts. Anything outside the block passes through.
func hiraganaToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' {
			return r + 0x60
		}
		return r
	}, s)
}

// lowerASCII folds ASCII letters to lowercase, leaving all other runes
// untouched.
func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
