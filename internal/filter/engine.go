// Package filter decides whether a message is archived or suppressed.
// The decision is an ordered rule sequence evaluated with short-circuit
// return: the attachment rule first, then the keyword rule, so an
// attachment-excluded message can never leak through keyword matching.
package filter

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/extract"
	"github.com/tmori/mailsift/internal/model"
	"github.com/tmori/mailsift/internal/normalize"
)

// Reason identifies which rule class excluded a message.
type Reason string

const (
	ReasonNone       Reason = "none"
	ReasonAttachment Reason = "attachment"
	ReasonKeyword    Reason = "keyword"
)

// Verdict is the decision for one message. Reason is ReasonNone exactly
// when PassThrough is true, and Detail is non-empty exactly when a rule
// matched: the blocked attachment's filename, or the matched keyword in
// its normalized form.
type Verdict struct {
	PassThrough bool
	Reason      Reason
	Detail      string
	Subject     string
}

// Rules is the immutable rule set for one pipeline run.
type Rules struct {
	blockedExtensions map[string]bool
	keywords          []string
}

// NewRules builds a rule set. Extensions are case-folded into a set;
// keyword order is preserved because evaluation is first-match-wins.
// Nil slices mean no rules of that kind.
func NewRules(blockedExtensions, keywords []string) Rules {
	exts := make(map[string]bool, len(blockedExtensions))
	for _, e := range blockedExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = true
		}
	}
	return Rules{
		blockedExtensions: exts,
		keywords:          append([]string(nil), keywords...),
	}
}

// Rule is one step of the decision sequence. Evaluate returns the
// verdict and true when the rule excludes the message.
type Rule interface {
	Evaluate(msg *model.ParsedMessage) (Verdict, bool)
}

// AttachmentRule excludes messages carrying a non-image attachment with
// a blocked extension. It inspects part metadata only; no text is
// extracted on this path.
type AttachmentRule struct {
	blocked map[string]bool
}

// Evaluate implements Rule.
func (r AttachmentRule) Evaluate(msg *model.ParsedMessage) (Verdict, bool) {
	name := extract.BlockedAttachment(msg, r.blocked)
	if name == "" {
		return Verdict{}, false
	}
	return Verdict{
		Reason:  ReasonAttachment,
		Detail:  name,
		Subject: extract.DecodeHeader(msg.Envelope.Subject),
	}, true
}

// KeywordRule excludes messages whose normalized subject or body
// contains a blocked keyword. Matching is plain substring containment
// after normalization, not word-boundary aware: a short keyword can
// match inside unrelated words. Empty or whitespace-only keywords never
// match.
type KeywordRule struct {
	keywords []string
	opts     normalize.Options
}

// Evaluate implements Rule.
func (r KeywordRule) Evaluate(msg *model.ParsedMessage) (Verdict, bool) {
	content := extract.FromMessage(msg)

	haystack := normalize.Normalize(content.Subject, r.opts) +
		" " + normalize.Normalize(content.Body, r.opts)

	for _, kw := range r.keywords {
		needle := normalize.Normalize(kw, r.opts)
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return Verdict{
				Reason:  ReasonKeyword,
				Detail:  needle,
				Subject: content.Subject,
			}, true
		}
	}
	return Verdict{}, false
}

// Engine evaluates messages against the fixed rule sequence.
type Engine struct {
	sequence []Rule
	logger   zerolog.Logger
}

// NewEngine builds an engine for one run. The rule order is fixed:
// attachment check, then keyword check.
func NewEngine(rules Rules, opts normalize.Options, logger zerolog.Logger) *Engine {
	return &Engine{
		sequence: []Rule{
			AttachmentRule{blocked: rules.blockedExtensions},
			KeywordRule{keywords: rules.keywords, opts: opts},
		},
		logger: logger,
	}
}

// Decide evaluates the message and returns a verdict. The first rule
// that matches wins; if none match, the message passes through. Decide
// performs no I/O, never fails, and is safe to call concurrently for
// independent messages.
func (e *Engine) Decide(msg *model.ParsedMessage) Verdict {
	for _, rule := range e.sequence {
		verdict, matched := rule.Evaluate(msg)
		if matched {
			e.logger.Info().
				Uint32("uid", msg.Envelope.UID).
				Str("reason", string(verdict.Reason)).
				Str("detail", verdict.Detail).
				Msg("excluded")
			return verdict
		}
	}

	subject := extract.DecodeHeader(msg.Envelope.Subject)
	e.logger.Info().
		Uint32("uid", msg.Envelope.UID).
		Str("subject", subject).
		Msg("passed")
	return Verdict{
		PassThrough: true,
		Reason:      ReasonNone,
		Subject:     subject,
	}
}
