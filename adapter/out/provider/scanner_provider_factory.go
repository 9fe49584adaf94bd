package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scanner_server/adapter/out/mbox"
	"scanner_server/core/domain"
	"scanner_server/core/port/out"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Mail sources a scan can read from.
const (
	SourceGmail = "gmail"
	SourceMbox  = "mbox"
)

// =============================================================================
// Provider Factory
// =============================================================================

// TokenSourceFunc yields an authorized token source for the Gmail API.
type TokenSourceFunc func(ctx context.Context) (oauth2.TokenSource, error)

// FactoryConfig holds all provider configurations.
type FactoryConfig struct {
	Gmail GmailConfig
	Mbox  mbox.Config
}

// Factory creates mail clients by source name.
type Factory struct {
	config      FactoryConfig
	tokenSource TokenSourceFunc
	log         zerolog.Logger
}

// NewFactory creates a new provider factory. tokenSource may be nil when
// only offline sources are used.
func NewFactory(cfg FactoryConfig, tokenSource TokenSourceFunc, log zerolog.Logger) *Factory {
	return &Factory{
		config:      cfg,
		tokenSource: tokenSource,
		log:         log,
	}
}

// NormalizeSource lowercases a source name and maps aliases.
func NormalizeSource(source string) string {
	switch s := strings.ToLower(strings.TrimSpace(source)); s {
	case "", "google":
		return SourceGmail
	default:
		return s
	}
}

// CreateClient returns the mail client for source.
func (f *Factory) CreateClient(ctx context.Context, source string) (out.MailClient, error) {
	switch NormalizeSource(source) {
	case SourceGmail:
		return f.createGmailClient(ctx)
	case SourceMbox:
		return f.createMboxClient()
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, source)
	}
}

func (f *Factory) createGmailClient(ctx context.Context) (out.MailClient, error) {
	if f.tokenSource == nil {
		return nil, errors.New("gmail token source not configured")
	}
	ts, err := f.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return NewGmailAdapter(ctx, ts, f.config.Gmail, f.log)
}

func (f *Factory) createMboxClient() (out.MailClient, error) {
	if f.config.Mbox.Path == "" {
		return nil, errors.New("mbox path not configured")
	}
	return mbox.NewAdapter(f.config.Mbox, f.log), nil
}
