package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotAuthenticated  = errors.New("no stored oauth token")
	ErrInvalidState      = errors.New("invalid oauth state")
	ErrUnknownSource     = errors.New("unknown mail source")
	ErrScanInProgress    = errors.New("a scan is already running")
	ErrIllegalTransition = errors.New("illegal scan state transition")
)

// Stage names where a diagnostic can originate.
type Stage string

const (
	StageEnumerate       Stage = "enumerate"
	StageFetchMessage    Stage = "fetch_message"
	StageDecode          Stage = "decode"
	StageFetchAttachment Stage = "fetch_attachment"
	StageProbe           Stage = "probe"
	StageNormalize       Stage = "normalize"
)

// Diagnostic records a non-fatal, unit-scoped failure.
type Diagnostic struct {
	Stage        Stage  `json:"stage"`
	MessageID    string `json:"message_id,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	URL          string `json:"url,omitempty"`
	PageToken    string `json:"page_token,omitempty"`
	Error        string `json:"error"`
	Err          error  `json:"-"`
}

// NewDiagnostic builds a diagnostic for the given stage and cause.
func NewDiagnostic(stage Stage, err error) Diagnostic {
	d := Diagnostic{Stage: stage, Err: err}
	if err != nil {
		d.Error = err.Error()
	}
	return d
}

// ForMessage sets the message id context.
func (d Diagnostic) ForMessage(id string) Diagnostic {
	d.MessageID = id
	return d
}

// ForAttachment sets the attachment id context.
func (d Diagnostic) ForAttachment(id string) Diagnostic {
	d.AttachmentID = id
	return d
}

// ForURL sets the url context.
func (d Diagnostic) ForURL(u string) Diagnostic {
	d.URL = u
	return d
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Stage))
	if d.MessageID != "" {
		fmt.Fprintf(&b, " message=%s", d.MessageID)
	}
	if d.AttachmentID != "" {
		fmt.Fprintf(&b, " attachment=%s", d.AttachmentID)
	}
	if d.URL != "" {
		fmt.Fprintf(&b, " url=%s", d.URL)
	}
	if d.PageToken != "" {
		fmt.Fprintf(&b, " page_token=%s", d.PageToken)
	}
	b.WriteString(": ")
	b.WriteString(d.Error)
	return b.String()
}

// RetrievalError is returned when a page of message ids cannot be listed.
// It is fatal to a scan.
type RetrievalError struct {
	PageToken string
	Err       error
}

func (e *RetrievalError) Error() string {
	if e.PageToken == "" {
		return fmt.Sprintf("list message ids (first page): %v", e.Err)
	}
	return fmt.Sprintf("list message ids (page token %q): %v", e.PageToken, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a URL cannot be reduced to scheme, host and path.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse url %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse url %q", e.URL)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
