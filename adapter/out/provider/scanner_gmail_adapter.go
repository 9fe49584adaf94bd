// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
	"scanner_server/pkg/httputil"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const providerGmail = "gmail"

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailClient over the Gmail REST API.
type GmailAdapter struct {
	svc    *gmail.Service
	config GmailConfig
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	UserID           string // "me" when empty
	Query            string // Gmail search syntax, e.g. "has:attachment newer_than:1y"
	PageSize         int64
	IncludeSpamTrash bool

	// Endpoint and HTTPClient override the API base URL and transport (tests).
	Endpoint   string
	HTTPClient *http.Client
}

// NewGmailAdapter creates a new Gmail adapter authorized by ts.
func NewGmailAdapter(ctx context.Context, ts oauth2.TokenSource, cfg GmailConfig, log zerolog.Logger) (*GmailAdapter, error) {
	if cfg.UserID == "" {
		cfg.UserID = "me"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}

	client := cfg.HTTPClient
	if client == nil {
		base := httputil.NewOptimizedClient(httputil.GmailClientConfig())
		client = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	log = log.With().Str("component", "gmail").Logger()
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 5 consecutive failures, or >= 60% failures over at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// Client errors belong to one message and must not count as failures.
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &GmailAdapter{
		svc:    svc,
		config: cfg,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		log:    log,
	}, nil
}

// =============================================================================
// out.MailClient
// =============================================================================

// ListMessageIDs returns one page of message ids, spam and trash included
// unless configured otherwise.
func (a *GmailAdapter) ListMessageIDs(ctx context.Context, pageToken string) (*out.MessagePage, error) {
	call := a.svc.Users.Messages.List(a.config.UserID).
		IncludeSpamTrash(a.config.IncludeSpamTrash).
		MaxResults(a.config.PageSize).
		Fields("messages/id", "nextPageToken").
		Context(ctx)
	if a.config.Query != "" {
		call = call.Q(a.config.Query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var resp *gmail.ListMessagesResponse
	cbErr := a.executeWithCircuitBreaker("ListMessages", func() error {
		var apiErr error
		resp, apiErr = call.Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list messages")
	}

	page := &out.MessagePage{
		IDs:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		if m != nil && m.Id != "" {
			page.IDs = append(page.IDs, m.Id)
		}
	}
	return page, nil
}

// GetMessage fetches a message in "full" format.
func (a *GmailAdapter) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker("GetMessage", func() error {
		var apiErr error
		msg, apiErr = a.svc.Users.Messages.Get(a.config.UserID, messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get message")
	}
	if msg == nil {
		return nil, nil
	}
	return convertMessage(msg), nil
}

// GetAttachment fetches and decodes an attachment body.
func (a *GmailAdapter) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var att *gmail.MessagePartBody
	cbErr := a.executeWithCircuitBreaker("GetAttachment", func() error {
		var apiErr error
		att, apiErr = a.svc.Users.Messages.Attachments.Get(a.config.UserID, messageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get attachment")
	}
	if att == nil || att.Data == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		if data, err = base64.RawURLEncoding.DecodeString(att.Data); err != nil {
			return nil, fmt.Errorf("failed to decode attachment: %w", err)
		}
	}
	return data, nil
}

// =============================================================================
// Conversion
// =============================================================================

func convertMessage(msg *gmail.Message) *domain.Message {
	return &domain.Message{
		ID:           msg.Id,
		Payload:      convertPart(msg.Payload),
		SizeEstimate: msg.SizeEstimate,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
	}
}

func convertPart(p *gmail.MessagePart) *domain.Payload {
	if p == nil {
		return nil
	}
	node := &domain.Payload{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	if p.Body != nil {
		node.Body = &domain.PartBody{
			Data:         p.Body.Data,
			AttachmentID: p.Body.AttachmentId,
			Size:         p.Body.Size,
		}
	}
	if len(p.Parts) > 0 {
		node.Parts = make([]*domain.Payload, 0, len(p.Parts))
		for _, child := range p.Parts {
			if child != nil {
				node.Parts = append(node.Parts, convertPart(child))
			}
		}
	}
	return node
}

// =============================================================================
// Internal Helpers
// =============================================================================

// executeWithCircuitBreaker wraps an API call with circuit breaker protection.
// Client errors are returned without counting against the breaker.
func (a *GmailAdapter) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}

	if err != nil {
		a.log.Debug().Str("operation", operation).Str("breaker_state", a.cb.State().String()).Err(err).Msg("gmail call failed")
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// CircuitState returns the current state of the circuit breaker.
func (a *GmailAdapter) CircuitState() string {
	return a.cb.State().String()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewProviderError(providerGmail, out.ProviderErrUnavailable, "Circuit open", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError(providerGmail, out.ProviderErrInvalidInput, "Invalid request", err, false)
		case 401:
			return out.NewProviderError(providerGmail, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(providerGmail, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerGmail, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerGmail, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(providerGmail, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(providerGmail, out.ProviderErrServer, "Server error", err, true)
		}
	}

	var oauthErr *oauth2.RetrieveError
	if errors.As(err, &oauthErr) {
		return out.NewProviderError(providerGmail, out.ProviderErrTokenExpired, "Token refresh failed", err, false)
	}

	return out.NewProviderError(providerGmail, out.ProviderErrNetwork, defaultMsg, err, true)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailClient = (*GmailAdapter)(nil)
