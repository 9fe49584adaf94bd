package in

import (
	"context"

	"scanner_server/core/domain"

	"golang.org/x/oauth2"
)

// ScanService runs one end-to-end mailbox scan. At most one scan runs at a
// time; a second caller gets domain.ErrScanInProgress.
type ScanService interface {
	// Scan reads from the configured default source.
	Scan(ctx context.Context) (*domain.ScanResult, error)
	// ScanSource reads from a named source ("gmail", "mbox").
	ScanSource(ctx context.Context, source string) (*domain.ScanResult, error)
}

// AuthService establishes the authenticated Gmail session a scan needs.
type AuthService interface {
	// AuthURL returns the consent URL. The state value is signed and short-lived.
	AuthURL() (url string, state string, err error)
	// VerifyState checks a state value returned on the callback.
	VerifyState(state string) error
	// Exchange trades an authorization code for a token and persists it.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// Token returns the persisted token, or domain.ErrNotAuthenticated.
	Token() (*oauth2.Token, error)
	// Config returns the oauth2 client configuration.
	Config() *oauth2.Config
}
