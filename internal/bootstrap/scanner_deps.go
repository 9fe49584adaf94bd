package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"scanner_server/adapter/out/mbox"
	probeadapter "scanner_server/adapter/out/probe"
	"scanner_server/adapter/out/provider"
	"scanner_server/adapter/out/tokenstore"
	"scanner_server/config"
	"scanner_server/core/port/out"
	"scanner_server/core/service/auth"
	"scanner_server/core/service/probe"
	"scanner_server/core/service/scan"
	"scanner_server/pkg/crypto"
	"scanner_server/pkg/logger"
	"scanner_server/pkg/metrics"
	"scanner_server/pkg/ratelimit"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type Dependencies struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics

	TokenStore out.TokenStore

	// OAuthService is nil when no Google client is configured; OAuthErr says why.
	OAuthService *auth.OAuthService
	OAuthErr     error

	Providers   *provider.Factory
	Prober      *probe.Prober
	ScanService *scan.Service
}

// NewDependencies wires every adapter and service from cfg.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := logger.Component("bootstrap")
	deps := &Dependencies{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}

	store, err := newTokenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps.TokenStore = store

	deps.OAuthService, deps.OAuthErr = auth.NewOAuthService(auth.Config{
		CredentialsFile: cfg.GoogleCredentialsFile,
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RedirectURL:     cfg.GoogleRedirectURL,
		StateSecret:     []byte(cfg.StateSecret),
		StateTTL:        cfg.StateTTL,
	}, store, logger.Component("auth"))
	if deps.OAuthErr != nil {
		// Offline mbox scans work without a Google client.
		log.Warn().Err(deps.OAuthErr).Msg("gmail oauth unavailable")
	}

	deps.Providers = provider.NewFactory(provider.FactoryConfig{
		Gmail: provider.GmailConfig{
			Query:            cfg.GmailQuery,
			PageSize:         int64(cfg.GmailPageSize),
			IncludeSpamTrash: cfg.GmailIncludeSpamTrash,
		},
		Mbox: mbox.Config{
			Path:     cfg.MboxPath,
			PageSize: cfg.MboxPageSize,
		},
	}, deps.gmailTokenSource, logger.Component("provider"))

	httpProber := probeadapter.NewHTTPProber(probeadapter.Config{
		Method:  cfg.ProbeMethod,
		Timeout: cfg.ProbeTimeout,
		Limiter: &ratelimit.Config{
			RequestsPerSecond: cfg.ProbeRatePerHost,
			BurstSize:         cfg.ProbeBurst,
		},
	}, logger.Component("probe"))
	deps.Prober = probe.NewProber(httpProber, cfg.ProbeConcurrency, deps.Metrics, logger.Component("prober"))

	deps.ScanService = scan.NewService(deps.Providers, deps.Prober, scan.ServiceConfig{
		Source:            provider.NormalizeSource(cfg.ScanSource),
		Concurrency:       cfg.ScanConcurrency,
		SnippetRunes:      cfg.SnippetRunes,
		SiblingFetchLimit: cfg.SiblingFetchCap,
	}, deps.Metrics, logger.Component("scan"))

	cleanup := func() {
		log.Debug().Msg("dependencies released")
	}
	return deps, cleanup, nil
}

func newTokenStore(cfg *config.Config) (out.TokenStore, error) {
	switch cfg.TokenStore {
	case config.TokenStoreKeyring:
		return tokenstore.NewKeyringStore(cfg.KeyringAccount), nil
	case config.TokenStoreFile:
		var sealer *crypto.Sealer
		if cfg.TokenPassphrase != "" {
			s, err := crypto.NewSealer([]byte(cfg.TokenPassphrase))
			if err != nil {
				return nil, fmt.Errorf("token sealer: %w", err)
			}
			sealer = s
		}
		return tokenstore.NewFileStore(cfg.TokenFile, sealer), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

func (d *Dependencies) gmailTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if d.OAuthService == nil {
		return nil, d.OAuthErr
	}
	return d.OAuthService.TokenSource(ctx)
}

// RequireOAuth returns the OAuth service or the reason it is missing.
func (d *Dependencies) RequireOAuth() (*auth.OAuthService, error) {
	if d.OAuthService == nil {
		if d.OAuthErr == nil {
			return nil, errors.New("oauth not initialized")
		}
		return nil, d.OAuthErr
	}
	return d.OAuthService, nil
}
