// Package probe implements out.StatusProber over net/http.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scanner_server/core/port/out"
	"scanner_server/pkg/httputil"
	"scanner_server/pkg/ratelimit"

	"github.com/rs/zerolog"
)

const (
	// Bodies are drained up to this many bytes so the connection can be reused.
	maxDrainBytes = 64 * 1024
	userAgent     = "scanner_server/1.0 (+public-link-audit)"
)

// Config for the HTTP prober
type Config struct {
	Method  string // GET or HEAD, default GET
	Timeout time.Duration
	Limiter *ratelimit.Config // nil disables per-host limiting
}

// HTTPProber issues one request per URL and reports the first status code.
type HTTPProber struct {
	client  *http.Client
	method  string
	limiter *ratelimit.HostLimiter
	log     zerolog.Logger
}

// NewHTTPProber creates a prober on a non-redirecting client.
func NewHTTPProber(cfg Config, log zerolog.Logger) *HTTPProber {
	return newHTTPProber(httputil.NewOptimizedClient(httputil.ProbeClientConfig(cfg.Timeout)), cfg, log)
}

func newHTTPProber(client *http.Client, cfg Config, log zerolog.Logger) *HTTPProber {
	p := &HTTPProber{
		client: client,
		method: normalizeMethod(cfg.Method),
		log:    log.With().Str("component", "http_prober").Logger(),
	}
	if cfg.Limiter != nil {
		p.limiter = ratelimit.NewHostLimiter(cfg.Limiter)
	}
	return p
}

func normalizeMethod(m string) string {
	if strings.EqualFold(strings.TrimSpace(m), http.MethodHead) {
		return http.MethodHead
	}
	return http.MethodGet
}

// Method returns the HTTP method in use.
func (p *HTTPProber) Method() string {
	return p.method
}

// Status implements out.StatusProber.
func (p *HTTPProber) Status(ctx context.Context, rawURL string) (int, error) {
	if p.limiter != nil {
		if err := p.limiter.WaitURL(ctx, rawURL); err != nil {
			return 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, p.method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	p.log.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("probed")
	return resp.StatusCode, nil
}

var _ out.StatusProber = (*HTTPProber)(nil)
