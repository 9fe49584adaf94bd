// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"

	"scanner_server/core/domain"
)

// =============================================================================
// Mail Client Port (Gmail, mbox)
// =============================================================================

// MailClient is the black-box mail provider the scanner reads from.
// Implementations own retry policy; the scanner never retries.
type MailClient interface {
	// ListMessageIDs returns one page of message ids. An empty NextPageToken ends the listing.
	ListMessageIDs(ctx context.Context, pageToken string) (*MessagePage, error)

	// GetMessage returns the full message. (nil, nil) means the provider had nothing for id.
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)

	// GetAttachment returns the decoded bytes of an externally stored part body.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// MessagePage is one page of a message id listing.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrUnavailable  ProviderErrorCode = "unavailable"
)

// ProviderError represents a transport-level failure of a mail provider.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsProviderCode reports whether err wraps a ProviderError with the given code.
func IsProviderCode(err error, code ProviderErrorCode) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
