// Package probe decides which file links are reachable without signing in.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
	"scanner_server/core/service/classify"
	"scanner_server/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultConcurrency is the global cap on in-flight probes.
const DefaultConcurrency = 40

// IsPublic applies the provider status rule: a public Dropbox share link
// answers 301, a public Google Drive file answers 200. Anything else,
// including other 2xx/3xx codes, is treated as private.
func IsPublic(provider string, status int) bool {
	switch provider {
	case classify.ProviderDropbox:
		return status == http.StatusMovedPermanently
	case classify.ProviderGoogleDrive:
		return status == http.StatusOK
	default:
		return false
	}
}

// Prober checks file links concurrently. One Prober is meant to be shared
// by every message of a scan so the in-flight cap is global.
type Prober struct {
	client  out.StatusProber
	sem     *semaphore.Weighted
	flight  singleflight.Group
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewProber creates a prober. concurrency <= 0 uses DefaultConcurrency.
func NewProber(client out.StatusProber, concurrency int, m *metrics.Metrics, log zerolog.Logger) *Prober {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Prober{
		client:  client,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		metrics: m,
		log:     log,
	}
}

// PublicURLs returns the members of urls confirmed public, in input order.
// URLs that are not file links are skipped without a request. A failed
// probe yields a diagnostic and never aborts the batch.
func (p *Prober) PublicURLs(ctx context.Context, urls []string) ([]string, []domain.Diagnostic) {
	public := make([]bool, len(urls))
	diags := make([]*domain.Diagnostic, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		provider := classify.Provider(u)
		if provider == "" {
			continue
		}
		g.Go(func() error {
			status, err := p.status(ctx, u, provider)
			if err != nil {
				d := domain.NewDiagnostic(domain.StageProbe, err).ForURL(u)
				diags[i] = &d
				return nil
			}
			public[i] = IsPublic(provider, status)
			p.log.Debug().Str("url", u).Int("status", status).Bool("public", public[i]).Msg("probed")
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	var outDiags []domain.Diagnostic
	for i, u := range urls {
		if public[i] {
			out = append(out, u)
		}
		if diags[i] != nil {
			outDiags = append(outDiags, *diags[i])
		}
	}
	return out, outDiags
}

// status collapses concurrent probes of the same URL into one request.
func (p *Prober) status(ctx context.Context, rawURL, provider string) (int, error) {
	v, err, _ := p.flight.Do(rawURL, func() (any, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return 0, fmt.Errorf("wait for probe slot: %w", err)
		}
		defer p.sem.Release(1)

		start := time.Now()
		status, err := p.client.Status(ctx, rawURL)
		outcome := metrics.OutcomeClosed
		switch {
		case err != nil:
			outcome = metrics.OutcomeError
			p.log.Warn().Str("url", rawURL).Err(err).Msg("probe failed")
		case IsPublic(provider, status):
			outcome = metrics.OutcomePublic
		}
		p.metrics.RecordProbe(provider, outcome, time.Since(start))
		return status, err
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
