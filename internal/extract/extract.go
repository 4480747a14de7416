// Package extract turns a parsed MIME message into plain readable text:
// a decoded subject, a body assembled from its text parts, and the
// attachment metadata the filtering rules need. Every decode path is
// best-effort; nothing in this package returns an error to the caller.
package extract

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"

	"github.com/tmori/mailsift/internal/model"
)

// Content is the text extracted from one message. It is immutable once
// produced and consumed by the decision engine and the archival writer.
type Content struct {
	Subject       string
	Body          string
	HasAttachment bool
}

// imageExtensions are attachment extensions treated as images even when
// the declared content type is not image/*.
var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true,
	"gif": true, "bmp": true, "webp": true,
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes RFC 2047 encoded words in a header value, each
// with its declared charset. If decoding any fragment fails, the raw
// value is returned unmodified; the function never fails.
func DecodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// FromMessage produces the extracted content for a message.
//
// Body selection collects all non-attachment text/plain parts first; if
// at least one exists, text/html parts are ignored entirely. Only when
// no text/plain part exists anywhere in the tree does the body fall back
// to stripped text/html parts. Parts are joined by a blank line in
// document order. A message with no text parts yields an empty body.
func FromMessage(msg *model.ParsedMessage) Content {
	c := Content{Subject: DecodeHeader(msg.Envelope.Subject)}

	var plain, htmls []string
	msg.Walk(func(p *model.Part) {
		if p.IsAttachment() {
			c.HasAttachment = true
			return
		}
		switch p.MediaType {
		case "text/plain":
			plain = append(plain, decodeText(p.Body, p.Charset))
		case "text/html":
			htmls = append(htmls, decodeText(p.Body, p.Charset))
		}
	})

	if len(plain) > 0 {
		c.Body = strings.TrimSpace(strings.Join(plain, "\n\n"))
		return c
	}

	stripped := make([]string, 0, len(htmls))
	for _, h := range htmls {
		if text := htmlToText(h); text != "" {
			stripped = append(stripped, text)
		}
	}
	c.Body = strings.TrimSpace(strings.Join(stripped, "\n\n"))
	return c
}

// BlockedAttachment scans the message for an attachment whose derived
// extension is in the blocked set and returns its decoded filename, or
// "" when none matches. Parts with an image content type, and filenames
// with a common image extension, are never blockable. The scan needs no
// text extraction.
func BlockedAttachment(msg *model.ParsedMessage, blocked map[string]bool) string {
	if len(blocked) == 0 {
		return ""
	}

	var hit string
	msg.Walk(func(p *model.Part) {
		if hit != "" || p.Filename == "" {
			return
		}
		if strings.HasPrefix(p.MediaType, "image/") {
			return
		}

		name := DecodeHeader(p.Filename)
		ext := Extension(name)
		if ext == "" || imageExtensions[ext] {
			return
		}
		if blocked[ext] {
			hit = name
		}
	})
	return hit
}

// Extension derives the case-folded filename extension: the substring
// after the last dot. A filename without a dot has no extension.
func Extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// decodeText converts a part payload to a UTF-8 string using its
// declared charset (default UTF-8). Invalid byte sequences are replaced,
// never raised: undecodable payloads degrade to replacement characters.
func decodeText(raw []byte, cs string) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	if cs != "" {
		if r, err := charset.Reader(strings.ToLower(cs), bytes.NewReader(raw)); err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				return strings.ToValidUTF8(string(converted), "�")
			}
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}
