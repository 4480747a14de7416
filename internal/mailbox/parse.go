package mailbox

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/tmori/mailsift/internal/model"
)

// ParseMessage parses raw RFC 822 bytes into a message part tree. The
// charset import above registers decoders for the legacy encodings
// common in Japanese mail (iso-2022-jp, shift_jis, euc-jp); payloads in
// a charset go-message cannot convert stay raw and are decoded
// best-effort downstream.
func ParseMessage(uid uint32, raw []byte) (*model.ParsedMessage, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	return &model.ParsedMessage{
		Envelope: envelopeFromHeader(uid, ent),
		Root:     buildPart(ent),
	}, nil
}

// envelopeFromHeader pulls header-level fields out of the root entity.
// Subject and From are kept raw; an unparsable Date stays zero and the
// consumers fall back to the current time.
func envelopeFromHeader(uid uint32, ent *message.Entity) model.Envelope {
	env := model.Envelope{
		UID:       uid,
		MessageID: strings.Trim(ent.Header.Get("Message-Id"), "<>"),
		Subject:   ent.Header.Get("Subject"),
		From:      ent.Header.Get("From"),
	}
	if raw := ent.Header.Get("Date"); raw != "" {
		if d, err := netmail.ParseDate(raw); err == nil {
			env.Date = d
		}
	}
	return env
}

// buildPart converts one entity and its descendants into Part nodes.
// Multipart containers carry children and no payload of their own; read
// failures on a leaf degrade to an empty payload rather than aborting
// the whole tree.
func buildPart(ent *message.Entity) *model.Part {
	mediaType, params, err := ent.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	p := &model.Part{
		MediaType: strings.ToLower(mediaType),
		Charset:   params["charset"],
	}

	disp, dispParams, _ := ent.Header.ContentDisposition()
	p.Disposition = strings.ToLower(disp)
	if name := dispParams["filename"]; name != "" {
		p.Filename = name
	} else if name := params["name"]; name != "" {
		p.Filename = name
	}

	if mr := ent.MultipartReader(); mr != nil {
		for {
			sub, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			p.Children = append(p.Children, buildPart(sub))
		}
		return p
	}

	if body, err := io.ReadAll(ent.Body); err == nil {
		p.Body = body
	}
	return p
}
