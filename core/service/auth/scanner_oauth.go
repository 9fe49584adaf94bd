// Package auth establishes the Gmail OAuth2 session a scan runs under.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GmailReadonlyScope is the only scope the scanner asks for.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

const (
	defaultStateTTL = 10 * time.Minute
	stateAudience   = "oauth2callback"
)

var ErrNotConfigured = errors.New("google oauth not configured: set GOOGLE_CREDENTIALS_FILE or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET")

// Config for the OAuth service
type Config struct {
	CredentialsFile string // Google client secret JSON ("web" or "installed")
	ClientID        string
	ClientSecret    string
	RedirectURL     string // overrides the first redirect URI of the credentials file
	StateSecret     []byte // HMAC key for state values; random per process when empty
	StateTTL        time.Duration
}

// OAuthService implements in.AuthService.
type OAuthService struct {
	config   *oauth2.Config
	store    out.TokenStore
	stateKey []byte
	stateTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewOAuthService builds the oauth2 config from a credentials file, falling
// back to an explicit client id and secret.
func NewOAuthService(cfg Config, store out.TokenStore, log zerolog.Logger) (*OAuthService, error) {
	oc, err := loadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	key := cfg.StateSecret
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate state key: %w", err)
		}
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}

	return &OAuthService{
		config:   oc,
		store:    store,
		stateKey: key,
		stateTTL: ttl,
		now:      time.Now,
		log:      log.With().Str("component", "oauth").Logger(),
	}, nil
}

func loadOAuthConfig(cfg Config) (*oauth2.Config, error) {
	if cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		switch {
		case err == nil:
			oc, err := google.ConfigFromJSON(b, GmailReadonlyScope)
			if err != nil {
				return nil, fmt.Errorf("parse credentials file %s: %w", cfg.CredentialsFile, err)
			}
			if cfg.RedirectURL != "" {
				oc.RedirectURL = cfg.RedirectURL
			}
			return oc, nil
		case !errors.Is(err, os.ErrNotExist) || cfg.ClientID == "":
			return nil, fmt.Errorf("failed to load client secret file %s: %w", cfg.CredentialsFile, err)
		}
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}, nil
}

// Config returns the oauth2 client configuration.
func (s *OAuthService) Config() *oauth2.Config {
	return s.config
}

// AuthURL returns the consent URL and the signed state embedded in it.
func (s *OAuthService) AuthURL() (string, string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.stateTTL)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateKey)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), state, nil
}

// VerifyState checks signature, audience and expiry of a callback state.
func (s *OAuthService) VerifyState(state string) error {
	if state == "" {
		return fmt.Errorf("%w: empty", domain.ErrInvalidState)
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return s.stateKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	return nil
}

// Exchange trades an authorization code for a token and persists it.
func (s *OAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if err := s.store.Save(token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	s.log.Info().Time("expiry", token.Expiry).Bool("refreshable", token.RefreshToken != "").Msg("oauth token stored")
	return token, nil
}

// Token returns the persisted token, or domain.ErrNotAuthenticated.
func (s *OAuthService) Token() (*oauth2.Token, error) {
	return s.store.Load()
}

// TokenSource returns a source that refreshes the stored token and writes
// refreshed tokens back to the store.
func (s *OAuthService) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return &persistingTokenSource{
		base:  s.config.TokenSource(ctx, token),
		store: s.store,
		last:  token.AccessToken,
		log:   s.log,
	}, nil
}

// persistingTokenSource saves every token whose access token changed.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store out.TokenStore
	log   zerolog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last {
		if err := p.store.Save(token); err != nil {
			p.log.Warn().Err(err).Msg("failed to persist refreshed token")
		} else {
			p.log.Debug().Time("expiry", token.Expiry).Msg("refreshed token persisted")
		}
		p.last = token.AccessToken
	}
	return token, nil
}
