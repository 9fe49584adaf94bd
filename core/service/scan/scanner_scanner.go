// Package scan runs the message-to-public-URL pipeline over a whole mailbox.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
	"scanner_server/core/service/classify"
	"scanner_server/core/service/extract"
	"scanner_server/core/service/normalize"
	"scanner_server/core/service/probe"
	"scanner_server/pkg/metrics"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// DefaultConcurrency is the number of messages processed at once.
const DefaultConcurrency = 40

const defaultSnippetRunes = 60

var allStates = []string{
	domain.ScanIdle.String(),
	domain.ScanEnumeratingMessages.String(),
	domain.ScanFetchingAndExtracting.String(),
	domain.ScanProbingPublicLinks.String(),
	domain.ScanAggregating.String(),
	domain.ScanDone.String(),
	domain.ScanFailed.String(),
}

// Config for the scanner
type Config struct {
	Source       string // label only: "gmail", "mbox"
	Concurrency  int
	SnippetRunes int
}

// StateFunc observes state transitions.
type StateFunc func(from, to domain.ScanState)

// Scanner composes enumeration, extraction, classification, probing and
// deduplication. It runs at most one scan at a time.
type Scanner struct {
	mail      out.MailClient
	extractor *extract.TextExtractor
	prober    *probe.Prober
	config    Config
	metrics   *metrics.Metrics
	log       zerolog.Logger
	onState   StateFunc
	running   atomic.Bool
}

// NewScanner creates a scanner.
func NewScanner(
	mail out.MailClient,
	extractor *extract.TextExtractor,
	prober *probe.Prober,
	config Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Scanner {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.SnippetRunes <= 0 {
		config.SnippetRunes = defaultSnippetRunes
	}
	return &Scanner{
		mail:      mail,
		extractor: extractor,
		prober:    prober,
		config:    config,
		metrics:   m,
		log:       log.With().Str("component", "scanner").Logger(),
	}
}

// OnStateChange registers fn to be called on every transition.
func (s *Scanner) OnStateChange(fn StateFunc) *Scanner {
	s.onState = fn
	return s
}

// unit is one message's slot. Each is written by exactly one worker per phase.
type unit struct {
	id        string
	processed bool
	failed    bool
	report    domain.MessageReport
	urls      int
	fileURLs  []string
	public    []string
	diags     []domain.Diagnostic
}

// run carries one scan's mutable state.
type run struct {
	result *domain.ScanResult
	units  []unit
}

// Scan enumerates the mailbox and returns the unique public file links.
// Only a listing failure is returned as an error, together with a result in
// the Failed state; every later failure is recorded as a diagnostic.
func (s *Scanner) Scan(ctx context.Context) (*domain.ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrScanInProgress
	}
	defer s.running.Store(false)

	r := &run{result: domain.NewScanResult(s.config.Source)}
	s.log.Info().Str("scan_id", r.result.ID.String()).Str("source", s.config.Source).Msg("scan started")

	if err := s.transition(r, domain.ScanEnumeratingMessages); err != nil {
		return r.result, err
	}
	ids, err := ListAllMessageIDs(ctx, s.mail)
	if err != nil {
		d := domain.NewDiagnostic(domain.StageEnumerate, err)
		var re *domain.RetrievalError
		if errors.As(err, &re) {
			d.PageToken = re.PageToken
		}
		r.result.Diagnostics = append(r.result.Diagnostics, d)
		if terr := s.transition(r, domain.ScanFailed); terr != nil {
			return r.result, terr
		}
		s.finish(r)
		s.log.Error().Err(err).Msg("message enumeration failed")
		return r.result, err
	}

	r.result.MessagesTotal = len(ids)
	r.units = make([]unit, len(ids))
	for i, id := range ids {
		r.units[i].id = id
	}
	s.log.Info().Int("messages", len(ids)).Msg("messages enumerated")

	if err := s.transition(r, domain.ScanFetchingAndExtracting); err != nil {
		return r.result, err
	}
	s.runPhase(ctx, len(r.units), func(ctx context.Context, i int) {
		s.fetchAndExtract(ctx, &r.units[i])
	})
	for i := range r.units {
		u := &r.units[i]
		if !u.processed {
			s.degrade(u, domain.StageFetchMessage, errors.New("message was not processed"))
		}
	}

	if err := s.transition(r, domain.ScanProbingPublicLinks); err != nil {
		return r.result, err
	}
	s.runPhase(ctx, len(r.units), func(ctx context.Context, i int) {
		s.probe(ctx, &r.units[i])
	})

	if err := s.transition(r, domain.ScanAggregating); err != nil {
		return r.result, err
	}
	s.aggregate(r)

	if err := s.transition(r, domain.ScanDone); err != nil {
		return r.result, err
	}
	s.finish(r)

	s.log.Info().
		Int("messages_scanned", r.result.MessagesScanned).
		Int("messages_failed", r.result.MessagesFailed).
		Int("file_urls", r.result.FileURLs).
		Int("public_urls", len(r.result.PublicURLs)).
		Dur("duration", r.result.Duration()).
		Msg("scan complete")
	return r.result, nil
}

func (s *Scanner) transition(r *run, to domain.ScanState) error {
	from := r.result.State
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}
	r.result.State = to
	s.metrics.SetState(to.String(), allStates)
	s.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("scan state")
	if s.onState != nil {
		s.onState(from, to)
	}
	return nil
}

// finish stamps and records a scan that reached Done or Failed. It is a
// no-op for any other state.
func (s *Scanner) finish(r *run) {
	if !r.result.State.IsTerminal() {
		s.log.Error().Str("state", r.result.State.String()).Msg("finish called before a terminal state")
		return
	}
	r.result.FinishedAt = time.Now().UTC()
	s.metrics.RecordScan(s.config.Source, r.result.State.String(), r.result.Duration())
	s.metrics.RecordPublicLinks(len(r.result.PublicURLs))
}

// phaseWorker adapts a per-index function to pool.Worker. It runs fn with
// the scan context so cancellation reaches provider calls while the pool
// itself keeps draining submitted indexes.
type phaseWorker struct {
	ctx context.Context
	fn  func(ctx context.Context, i int)
}

// Do implements pool.Worker interface.
func (w phaseWorker) Do(_ context.Context, i int) error {
	w.fn(w.ctx, i)
	return nil
}

// runPhase applies fn to every index in [0, n) with bounded concurrency and
// returns when all are done.
func (s *Scanner) runPhase(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	workers := s.config.Concurrency
	if workers > n {
		workers = n
	}

	poolCtx := context.WithoutCancel(ctx)
	wg := pool.New[int](workers, phaseWorker{ctx: ctx, fn: fn}).WithContinueOnError()
	if err := wg.Go(poolCtx); err != nil {
		s.log.Error().Err(err).Msg("failed to start worker pool")
		return
	}
	for i := 0; i < n; i++ {
		wg.Submit(i)
	}
	if err := wg.Close(poolCtx); err != nil {
		s.log.Warn().Err(err).Msg("worker pool closed with error")
	}
}

func (s *Scanner) fetchAndExtract(ctx context.Context, u *unit) {
	u.processed = true
	u.report.MessageID = u.id

	msg, err := s.mail.GetMessage(ctx, u.id)
	if err != nil {
		s.degrade(u, domain.StageFetchMessage, err)
		return
	}
	if msg == nil {
		s.degrade(u, domain.StageFetchMessage, errors.New("message not found"))
		return
	}

	text, diags := s.extractor.Extract(ctx, u.id, msg.Payload)
	u.diags = append(u.diags, diags...)

	urls := extract.ExtractURLs(text)
	u.urls = len(urls)
	u.fileURLs = classify.FileURLs(urls)

	u.report.SizeEstimate = msg.SizeEstimate
	u.report.ReceivedAt = msg.ReceivedAt()
	u.report.Snippet = truncateRunes(msg.Snippet, s.config.SnippetRunes)
	u.report.URLs = len(urls)
	u.report.FileURLs = u.fileURLs

	s.metrics.RecordMessage(metrics.OutcomeOK, msg.SizeEstimate, len(urls))

	ev := s.log.Info().Str("message_id", u.id)
	if msg.SizeEstimate > 0 {
		ev = ev.Str("size", humanize.Bytes(uint64(msg.SizeEstimate)))
	}
	if !u.report.ReceivedAt.IsZero() {
		ev = ev.Str("date", u.report.ReceivedAt.Format(time.DateOnly))
	}
	ev.Str("snippet", u.report.Snippet).
		Int("urls", len(urls)).
		Int("file_urls", len(u.fileURLs)).
		Msg("message scanned")
}

func (s *Scanner) probe(ctx context.Context, u *unit) {
	if u.failed || len(u.fileURLs) == 0 {
		return
	}
	public, diags := s.prober.PublicURLs(ctx, u.fileURLs)
	for _, d := range diags {
		u.diags = append(u.diags, d.ForMessage(u.id))
	}
	u.public = public
	u.report.PublicURLs = public
}

func (s *Scanner) degrade(u *unit, stage domain.Stage, err error) {
	u.processed = true
	u.failed = true
	u.report.MessageID = u.id
	u.report.Failed = true
	u.diags = append(u.diags, domain.NewDiagnostic(stage, err).ForMessage(u.id))
	s.metrics.RecordMessage(metrics.OutcomeFailed, 0, 0)
	s.log.Warn().Str("message_id", u.id).Str("stage", string(stage)).Err(err).Msg("message skipped")
}

// aggregate flattens per-message results in enumeration order and deduplicates.
func (s *Scanner) aggregate(r *run) {
	res := r.result
	var all []string
	res.Messages = make([]domain.MessageReport, 0, len(r.units))

	for i := range r.units {
		u := &r.units[i]
		if u.failed {
			res.MessagesFailed++
		} else {
			res.MessagesScanned++
		}
		res.URLsFound += u.urls
		res.FileURLs += len(u.fileURLs)
		res.Messages = append(res.Messages, u.report)
		res.Diagnostics = append(res.Diagnostics, u.diags...)
		all = append(all, u.public...)
	}

	unique, errs := normalize.UniqueURLs(all)
	for _, err := range errs {
		d := domain.NewDiagnostic(domain.StageNormalize, err)
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			d.URL = pe.URL
		}
		res.Diagnostics = append(res.Diagnostics, d)
		s.log.Warn().Err(err).Msg("skipping unparseable url")
	}
	res.PublicURLs = unique
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
