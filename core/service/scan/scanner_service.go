package scan

import (
	"context"
	"fmt"
	"sync/atomic"

	"scanner_server/core/domain"
	"scanner_server/core/port/in"
	"scanner_server/core/port/out"
	"scanner_server/core/service/extract"
	"scanner_server/core/service/probe"
	"scanner_server/pkg/metrics"

	"github.com/rs/zerolog"
)

// ClientFactory builds the mail client for a source. The Gmail client is
// built per scan so that it picks up the most recently stored token.
type ClientFactory interface {
	CreateClient(ctx context.Context, source string) (out.MailClient, error)
}

// ServiceConfig for the scan service
type ServiceConfig struct {
	Source            string
	Concurrency       int
	SnippetRunes      int
	SiblingFetchLimit int
}

// Service runs scans against a freshly built mail client. The prober is
// shared so that its in-flight cap spans every scan.
type Service struct {
	clients ClientFactory
	prober  *probe.Prober
	config  ServiceConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
	onState StateFunc
	running atomic.Bool
}

// NewService creates a scan service.
func NewService(clients ClientFactory, prober *probe.Prober, cfg ServiceConfig, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		clients: clients,
		prober:  prober,
		config:  cfg,
		metrics: m,
		log:     log,
	}
}

// OnStateChange registers fn on every scanner the service builds.
func (s *Service) OnStateChange(fn StateFunc) *Service {
	s.onState = fn
	return s
}

// Scan runs one scan against the configured source.
func (s *Service) Scan(ctx context.Context) (*domain.ScanResult, error) {
	return s.ScanSource(ctx, s.config.Source)
}

// ScanSource runs one scan against source.
func (s *Service) ScanSource(ctx context.Context, source string) (*domain.ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrScanInProgress
	}
	defer s.running.Store(false)

	client, err := s.clients.CreateClient(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", source, err)
	}

	extractor := extract.NewTextExtractor(client, s.config.SiblingFetchLimit, s.log)
	scanner := NewScanner(client, extractor, s.prober, Config{
		Source:       source,
		Concurrency:  s.config.Concurrency,
		SnippetRunes: s.config.SnippetRunes,
	}, s.metrics, s.log)
	if s.onState != nil {
		scanner.OnStateChange(s.onState)
	}
	return scanner.Scan(ctx)
}

// Running reports whether a scan is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}

var _ in.ScanService = (*Service)(nil)
