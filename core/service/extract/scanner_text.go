// Package extract turns a message's MIME tree into text and text into URLs.
package extract

import (
	"context"
	"fmt"
	"strings"

	"scanner_server/core/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultSiblingConcurrency bounds the fan-out over one node's children.
const DefaultSiblingConcurrency = 8

// AttachmentFetcher resolves part bodies stored outside the message.
// out.MailClient satisfies it.
type AttachmentFetcher interface {
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// TextExtractor collects the plain-text and HTML content of a MIME tree.
type TextExtractor struct {
	attachments AttachmentFetcher
	limit       int
	log         zerolog.Logger
}

// NewTextExtractor creates an extractor. siblingLimit <= 0 uses DefaultSiblingConcurrency.
func NewTextExtractor(attachments AttachmentFetcher, siblingLimit int, log zerolog.Logger) *TextExtractor {
	if siblingLimit <= 0 {
		siblingLimit = DefaultSiblingConcurrency
	}
	return &TextExtractor{
		attachments: attachments,
		limit:       siblingLimit,
		log:         log,
	}
}

// Extract returns every plain-text and HTML body reachable from payload,
// each exactly once. Failures on one branch are returned as diagnostics and
// that branch contributes no text; they never abort the rest of the tree.
func (e *TextExtractor) Extract(ctx context.Context, messageID string, payload *domain.Payload) (string, []domain.Diagnostic) {
	return e.node(ctx, messageID, payload)
}

func (e *TextExtractor) node(ctx context.Context, messageID string, p *domain.Payload) (string, []domain.Diagnostic) {
	if p == nil {
		return "", nil
	}

	if p.IsLeaf() {
		if !p.HasInlineData() || !p.IsText() {
			return "", nil
		}
		return e.inline(messageID, p)
	}

	prefix, diags := e.inline(messageID, p)

	pieces := make([]string, len(p.Parts))
	childDiags := make([][]domain.Diagnostic, len(p.Parts))

	var g errgroup.Group
	g.SetLimit(e.limit)
	for i, child := range p.Parts {
		g.Go(func() error {
			pieces[i], childDiags[i] = e.child(ctx, messageID, child)
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range childDiags {
		diags = append(diags, d...)
	}
	return joinNonEmpty(append(pieces, prefix)), diags
}

func (e *TextExtractor) child(ctx context.Context, messageID string, c *domain.Payload) (string, []domain.Diagnostic) {
	switch {
	case c == nil:
		return "", nil
	case c.IsAttachment() && c.IsPlainText():
		if c.HasExternalData() {
			return e.fetch(ctx, messageID, c)
		}
		return e.inline(messageID, c)
	case c.IsText():
		return e.inline(messageID, c)
	default:
		return e.node(ctx, messageID, c)
	}
}

func (e *TextExtractor) inline(messageID string, p *domain.Payload) (string, []domain.Diagnostic) {
	if !p.HasInlineData() {
		return "", nil
	}
	b, err := DecodeBody(p.Body.Data)
	if err != nil {
		d := domain.NewDiagnostic(domain.StageDecode, fmt.Errorf("decode %s part: %w", p.MimeType, err)).
			ForMessage(messageID)
		e.log.Warn().Str("message_id", messageID).Str("mime_type", p.MimeType).Err(err).Msg("undecodable part body")
		return "", []domain.Diagnostic{d}
	}
	return string(b), nil
}

func (e *TextExtractor) fetch(ctx context.Context, messageID string, p *domain.Payload) (string, []domain.Diagnostic) {
	attachmentID := p.Body.AttachmentID
	if e.attachments == nil {
		err := fmt.Errorf("no attachment fetcher for %q", p.Filename)
		return "", []domain.Diagnostic{domain.NewDiagnostic(domain.StageFetchAttachment, err).
			ForMessage(messageID).ForAttachment(attachmentID)}
	}

	b, err := e.attachments.GetAttachment(ctx, messageID, attachmentID)
	if err != nil {
		e.log.Warn().
			Str("message_id", messageID).
			Str("attachment_id", attachmentID).
			Str("filename", p.Filename).
			Err(err).
			Msg("attachment fetch failed")
		return "", []domain.Diagnostic{domain.NewDiagnostic(domain.StageFetchAttachment, err).
			ForMessage(messageID).ForAttachment(attachmentID)}
	}
	return string(b), nil
}

func joinNonEmpty(pieces []string) string {
	var b strings.Builder
	for _, s := range pieces {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	return b.String()
}
