// Package mbox implements out.MailClient over a local mbox archive, so a
// mailbox export (Google Takeout, Thunderbird) can be scanned offline.
package mbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize            = 100
	defaultAttachmentThreshold = 64 * 1024
	snippetLength              = 100
)

var (
	ErrMessageNotFound    = errors.New("mbox: message not found")
	ErrAttachmentNotFound = errors.New("mbox: attachment not found")
	ErrInvalidPageToken   = errors.New("mbox: invalid page token")
)

// Config for the mbox adapter
type Config struct {
	Path     string
	PageSize int
	// Attachment bodies larger than this are held back and served through
	// GetAttachment, the way Gmail does for large parts.
	AttachmentThreshold int
}

// Adapter serves messages parsed from an mbox file. The archive is read
// once, on first use.
type Adapter struct {
	config Config
	open   func() (io.ReadCloser, error)
	log    zerolog.Logger

	loadOnce    sync.Once
	loadErr     error
	ids         []string
	messages    map[string]*domain.Message
	attachments map[string][]byte
}

// NewAdapter creates an adapter for the archive at cfg.Path.
func NewAdapter(cfg Config, log zerolog.Logger) *Adapter {
	return newAdapter(cfg, func() (io.ReadCloser, error) { return os.Open(cfg.Path) }, log)
}

// NewAdapterFromReader creates an adapter over an in-memory archive.
func NewAdapterFromReader(r io.Reader, cfg Config, log zerolog.Logger) *Adapter {
	return newAdapter(cfg, func() (io.ReadCloser, error) { return io.NopCloser(r), nil }, log)
}

func newAdapter(cfg Config, open func() (io.ReadCloser, error), log zerolog.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.AttachmentThreshold <= 0 {
		cfg.AttachmentThreshold = defaultAttachmentThreshold
	}
	return &Adapter{
		config: cfg,
		open:   open,
		log:    log.With().Str("component", "mbox").Logger(),
	}
}

// =============================================================================
// out.MailClient
// =============================================================================

// ListMessageIDs pages through the archive. Page tokens are message offsets.
func (a *Adapter) ListMessageIDs(ctx context.Context, pageToken string) (*out.MessagePage, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 || n > len(a.ids) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPageToken, pageToken)
		}
		offset = n
	}

	end := offset + a.config.PageSize
	if end > len(a.ids) {
		end = len(a.ids)
	}
	page := &out.MessagePage{IDs: append([]string(nil), a.ids[offset:end]...)}
	if end < len(a.ids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMessage returns a parsed message.
func (a *Adapter) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	msg, ok := a.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return msg, nil
}

// GetAttachment returns a held-back attachment body.
func (a *Adapter) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	b, ok := a.attachments[attachmentID]
	if !ok || !strings.HasPrefix(attachmentID, messageID+".") {
		return nil, fmt.Errorf("%w: %s/%s", ErrAttachmentNotFound, messageID, attachmentID)
	}
	return b, nil
}

// =============================================================================
// Parsing
// =============================================================================

func (a *Adapter) load(ctx context.Context) error {
	a.loadOnce.Do(func() {
		a.loadErr = a.parseArchive(ctx)
	})
	return a.loadErr
}

func (a *Adapter) parseArchive(ctx context.Context) error {
	rc, err := a.open()
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer rc.Close()

	a.messages = make(map[string]*domain.Message)
	a.attachments = make(map[string][]byte)

	reader := mboxlib.NewReader(rc)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("mbox message %d: %w", idx, err)
		}
		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("mbox message %d read: %w", idx, err)
		}

		id := strconv.Itoa(idx)
		msg, err := a.parseMessage(id, raw)
		if err != nil {
			// One malformed message must not hide the rest of the archive.
			a.log.Warn().Int("index", idx).Err(err).Msg("skipping unparseable message")
			continue
		}
		a.ids = append(a.ids, id)
		a.messages[id] = msg
	}

	a.log.Info().Int("messages", len(a.ids)).Int("held_attachments", len(a.attachments)).Msg("mbox loaded")
	return nil
}

func (a *Adapter) parseMessage(id string, raw []byte) (*domain.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, err
	}

	msg := &domain.Message{
		ID:           id,
		SizeEstimate: int64(len(raw)),
	}
	if date, err := (&mail.Header{Header: entity.Header}).Date(); err == nil && !date.IsZero() {
		msg.InternalDate = date.UnixMilli()
	}

	b := &payloadBuilder{adapter: a, messageID: id}
	msg.Payload = b.build(entity)
	msg.Snippet = b.snippet
	return msg, nil
}

// payloadBuilder converts one message's entity tree.
type payloadBuilder struct {
	adapter   *Adapter
	messageID string
	held      int
	snippet   string
}

func (b *payloadBuilder) build(e *message.Entity) *domain.Payload {
	mediaType, params, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = domain.MimeTextPlain
	}
	node := &domain.Payload{
		MimeType: mediaType,
		Filename: filename(e.Header, params),
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				b.adapter.log.Debug().Str("message_id", b.messageID).Err(err).Msg("stopping at malformed part")
				break
			}
			node.Parts = append(node.Parts, b.build(part))
		}
		return node
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		b.adapter.log.Debug().Str("message_id", b.messageID).Err(err).Msg("truncated part body")
	}
	if len(body) == 0 {
		return node
	}

	if b.snippet == "" && mediaType == domain.MimeTextPlain && node.Filename == "" {
		b.snippet = makeSnippet(string(body))
	}

	node.Body = &domain.PartBody{Size: int64(len(body))}
	if node.Filename != "" && len(body) > b.adapter.config.AttachmentThreshold {
		attachmentID := fmt.Sprintf("%s.%d", b.messageID, b.held)
		b.held++
		b.adapter.attachments[attachmentID] = body
		node.Body.AttachmentID = attachmentID
		return node
	}
	node.Body.Data = base64.URLEncoding.EncodeToString(body)
	return node
}

func filename(h message.Header, ctParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return ctParams["name"]
}

func makeSnippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	r := []rune(s)
	if len(r) > snippetLength {
		return string(r[:snippetLength])
	}
	return s
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailClient = (*Adapter)(nil)
