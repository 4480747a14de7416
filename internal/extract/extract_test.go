package extract

import (
	"strings"
	"testing"

	"github.com/tmori/mailsift/internal/model"
)

func plainPart(text string) *model.Part {
	return &model.Part{MediaType: "text/plain", Charset: "utf-8", Body: []byte(text)}
}

func htmlPart(markup string) *model.Part {
	return &model.Part{MediaType: "text/html", Charset: "utf-8", Body: []byte(markup)}
}

func multipart(children ...*model.Part) *model.ParsedMessage {
	return &model.ParsedMessage{
		Root: &model.Part{MediaType: "multipart/mixed", Children: children},
	}
}

func TestFromMessage_PlainPreferredOverHTML(t *testing.T) {
	msg := multipart(
		plainPart("plain body"),
		htmlPart("<html><body><p>html body</p></body></html>"),
	)

	c := FromMessage(msg)
	if c.Body != "plain body" {
		t.Fatalf("expected plain body only, got %q", c.Body)
	}
	if strings.Contains(c.Body, "html body") {
		t.Fatalf("html text must not leak into body when plain exists: %q", c.Body)
	}
}

func TestFromMessage_MultiplePlainPartsJoined(t *testing.T) {
	msg := multipart(plainPart("first"), plainPart("second"))

	c := FromMessage(msg)
	if c.Body != "first\n\nsecond" {
		t.Fatalf("expected blank-line join in document order, got %q", c.Body)
	}
}

func TestFromMessage_HTMLFallback(t *testing.T) {
	msg := multipart(htmlPart(`<html><head><style>p{color:red}</style></head>
<body><script>alert("x")</script><p>見積もりのご案内</p><p>second paragraph</p></body></html>`))

	c := FromMessage(msg)
	if !strings.Contains(c.Body, "見積もりのご案内") {
		t.Fatalf("expected visible text extracted, got %q", c.Body)
	}
	if !strings.Contains(c.Body, "second paragraph") {
		t.Fatalf("expected all paragraphs extracted, got %q", c.Body)
	}
	if strings.Contains(c.Body, "alert") || strings.Contains(c.Body, "color:red") {
		t.Fatalf("script/style content must be stripped, got %q", c.Body)
	}
}

func TestFromMessage_MalformedHTMLDegrades(t *testing.T) {
	msg := multipart(htmlPart("<p>unclosed <b>tags<div>everywhere"))

	c := FromMessage(msg)
	if !strings.Contains(c.Body, "unclosed") || !strings.Contains(c.Body, "everywhere") {
		t.Fatalf("expected best-effort strip of malformed html, got %q", c.Body)
	}
}

func TestFromMessage_NoTextParts(t *testing.T) {
	msg := multipart(&model.Part{
		MediaType:   "application/pdf",
		Disposition: "attachment",
		Filename:    "doc.pdf",
	})

	c := FromMessage(msg)
	if c.Body != "" {
		t.Fatalf("expected empty body, got %q", c.Body)
	}
	if !c.HasAttachment {
		t.Fatal("expected attachment flag set")
	}
}

func TestFromMessage_AttachmentTextExcludedFromBody(t *testing.T) {
	att := plainPart("log file contents")
	att.Disposition = "attachment"
	att.Filename = "debug.log"
	msg := multipart(plainPart("real body"), att)

	c := FromMessage(msg)
	if c.Body != "real body" {
		t.Fatalf("expected attachment text excluded, got %q", c.Body)
	}
	if !c.HasAttachment {
		t.Fatal("expected attachment flag set")
	}
}

func TestFromMessage_NestedParts(t *testing.T) {
	alt := &model.Part{
		MediaType: "multipart/alternative",
		Children:  []*model.Part{plainPart("nested plain"), htmlPart("<p>nested html</p>")},
	}
	msg := multipart(alt)

	c := FromMessage(msg)
	if c.Body != "nested plain" {
		t.Fatalf("expected nested plain part found, got %q", c.Body)
	}
}

func TestDecodeHeader_EncodedWords(t *testing.T) {
	got := DecodeHeader("=?UTF-8?B?44GU5qGI5YaF?=")
	if got != "ご案内" {
		t.Fatalf("expected decoded subject, got %q", got)
	}

	got = DecodeHeader("=?ISO-8859-1?Q?caf=E9?= menu")
	if got != "café menu" {
		t.Fatalf("expected mixed-charset decode, got %q", got)
	}
}

func TestDecodeHeader_FallsBackOnFailure(t *testing.T) {
	raw := "=?x-nonexistent-charset?B?////?="
	if got := DecodeHeader(raw); got != raw {
		t.Fatalf("expected raw value on decode failure, got %q", got)
	}
}

func TestDecodeHeader_PlainPassthrough(t *testing.T) {
	if got := DecodeHeader("Re: ordinary subject"); got != "Re: ordinary subject" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := DecodeHeader(""); got != "" {
		t.Fatalf("expected empty passthrough, got %q", got)
	}
}

func TestDecodeText_ShiftJIS(t *testing.T) {
	// "テスト" encoded as Shift_JIS.
	raw := []byte{0x83, 0x65, 0x83, 0x58, 0x83, 0x67}
	if got := decodeText(raw, "shift_jis"); got != "テスト" {
		t.Fatalf("expected shift_jis payload decoded, got %q", got)
	}
}

func TestDecodeText_InvalidBytesReplaced(t *testing.T) {
	raw := []byte{0xff, 0xfe, 'o', 'k'}
	got := decodeText(raw, "")
	if !strings.Contains(got, "ok") {
		t.Fatalf("expected valid bytes preserved, got %q", got)
	}
	if strings.ContainsRune(got, 0xff) {
		t.Fatalf("expected invalid bytes replaced, got %q", got)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"invoice.EXE":     "exe",
		"report.final.Pdf": "pdf",
		"README":          "",
		"archive.":        "",
		"見積書.xlsx":        "xlsx",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Fatalf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlockedAttachment(t *testing.T) {
	blocked := map[string]bool{"exe": true, "zip": true}

	msg := multipart(
		plainPart("body"),
		&model.Part{MediaType: "application/octet-stream", Disposition: "attachment", Filename: "invoice.EXE"},
	)
	if got := BlockedAttachment(msg, blocked); got != "invoice.EXE" {
		t.Fatalf("expected original-case filename, got %q", got)
	}
}

func TestBlockedAttachment_ImageContentTypeExempt(t *testing.T) {
	blocked := map[string]bool{"jpg": true}
	msg := multipart(
		&model.Part{MediaType: "image/jpeg", Disposition: "attachment", Filename: "photo.jpg"},
	)
	if got := BlockedAttachment(msg, blocked); got != "" {
		t.Fatalf("image attachments must never be blockable, got %q", got)
	}
}

func TestBlockedAttachment_ImageExtensionExempt(t *testing.T) {
	blocked := map[string]bool{"png": true}
	msg := multipart(
		&model.Part{MediaType: "application/octet-stream", Disposition: "attachment", Filename: "chart.png"},
	)
	if got := BlockedAttachment(msg, blocked); got != "" {
		t.Fatalf("image extensions are exempt regardless of content type, got %q", got)
	}
}

func TestBlockedAttachment_NoExtension(t *testing.T) {
	blocked := map[string]bool{"exe": true}
	msg := multipart(
		&model.Part{MediaType: "application/octet-stream", Disposition: "attachment", Filename: "Makefile"},
	)
	if got := BlockedAttachment(msg, blocked); got != "" {
		t.Fatalf("filename without extension can never match, got %q", got)
	}
}
