package model

import "time"

// Envelope holds header-level data for a fetched message. Subject and From
// carry the raw header values, which may still contain RFC 2047 encoded
// words; decoding happens lazily in the extract package.
type Envelope struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
}

// Part is one node of a message's MIME tree. Leaf parts carry a payload;
// multipart containers carry only children.
type Part struct {
	// MediaType is the lowercase content type, e.g. "text/plain".
	MediaType string

	// Disposition is the lowercase content disposition:
	// "inline", "attachment" or empty when the header is absent.
	Disposition string

	// Filename is the declared attachment filename, if any.
	Filename string

	// Charset is the declared charset parameter of the content type.
	Charset string

	// Body is the transfer-decoded payload of a leaf part.
	Body []byte

	// Children are the sub-parts of a multipart container.
	Children []*Part
}

// IsMultipart reports whether the part is a multipart container.
func (p *Part) IsMultipart() bool {
	return len(p.Children) > 0
}

// IsAttachment reports whether the part is declared as an attachment.
func (p *Part) IsAttachment() bool {
	return p.Disposition == "attachment"
}

// Walk visits the part and all of its descendants in document order.
func (p *Part) Walk(fn func(*Part)) {
	if p == nil {
		return
	}
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// ParsedMessage is a fully parsed message: its envelope plus the root of
// its MIME part tree. It is owned by the caller and treated as immutable
// by the filtering pipeline.
type ParsedMessage struct {
	Envelope Envelope
	Root     *Part
}

// Walk visits every part of the message in document order.
func (m *ParsedMessage) Walk(fn func(*Part)) {
	if m == nil {
		return
	}
	m.Root.Walk(fn)
}
