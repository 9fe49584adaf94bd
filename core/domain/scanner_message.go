package domain

import (
	"strings"
	"time"
)

// MIME types the scanner reads text from.
const (
	MimeTextPlain = "text/plain"
	MimeTextHTML  = "text/html"
)

// Message is a mailbox message as returned by a mail provider.
// It is owned by the provider adapter and never mutated by the scanner.
type Message struct {
	ID           string
	Payload      *Payload
	SizeEstimate int64 // bytes, 0 if unknown
	InternalDate int64 // epoch milliseconds, 0 if unknown
	Snippet      string
}

// ReceivedAt returns the message timestamp, or the zero time when unknown.
func (m *Message) ReceivedAt() time.Time {
	if m == nil || m.InternalDate <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.InternalDate)
}

// Payload is one node of a message's MIME tree.
type Payload struct {
	MimeType string
	Filename string
	Body     *PartBody
	Parts    []*Payload
}

// PartBody holds either inline data (base64url, as Gmail sends it) or a
// reference to an attachment stored by the provider.
type PartBody struct {
	Data         string
	AttachmentID string
	Size         int64
}

// IsLeaf reports whether the node has no child parts.
func (p *Payload) IsLeaf() bool {
	return p == nil || len(p.Parts) == 0
}

// IsAttachment reports whether the node carries a filename.
func (p *Payload) IsAttachment() bool {
	return p != nil && p.Filename != ""
}

// IsText reports whether the node is text/plain or text/html.
func (p *Payload) IsText() bool {
	mt := p.mediaType()
	return mt == MimeTextPlain || mt == MimeTextHTML
}

// IsPlainText reports whether the node is text/plain.
func (p *Payload) IsPlainText() bool {
	return p.mediaType() == MimeTextPlain
}

// HasInlineData reports whether the node carries inline body data.
func (p *Payload) HasInlineData() bool {
	return p != nil && p.Body != nil && p.Body.Data != ""
}

// HasExternalData reports whether the body must be fetched by attachment id.
func (p *Payload) HasExternalData() bool {
	return p != nil && p.Body != nil && p.Body.Data == "" && p.Body.AttachmentID != ""
}

// mediaType strips parameters and normalizes case ("Text/Plain; charset=utf-8" -> "text/plain").
func (p *Payload) mediaType() string {
	if p == nil {
		return ""
	}
	mt := p.MimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
