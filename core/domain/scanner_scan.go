package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScanState is a stage of the scan state machine.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanEnumeratingMessages
	ScanFetchingAndExtracting
	ScanProbingPublicLinks
	ScanAggregating
	ScanDone
	ScanFailed
)

func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanEnumeratingMessages:
		return "enumerating_messages"
	case ScanFetchingAndExtracting:
		return "fetching_and_extracting"
	case ScanProbingPublicLinks:
		return "probing_public_links"
	case ScanAggregating:
		return "aggregating"
	case ScanDone:
		return "done"
	case ScanFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s ScanState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Failed is only reachable from enumeration; every later stage degrades
// per message instead of aborting.
var scanTransitions = map[ScanState][]ScanState{
	ScanIdle:                  {ScanEnumeratingMessages},
	ScanEnumeratingMessages:   {ScanFetchingAndExtracting, ScanFailed},
	ScanFetchingAndExtracting: {ScanProbingPublicLinks},
	ScanProbingPublicLinks:    {ScanAggregating},
	ScanAggregating:           {ScanDone},
}

// CanTransition reports whether next is a legal successor of s.
func (s ScanState) CanTransition(next ScanState) bool {
	for _, allowed := range scanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ScanState) IsTerminal() bool {
	return s == ScanDone || s == ScanFailed
}

// MessageReport is the per-message outcome of a scan.
type MessageReport struct {
	MessageID    string    `json:"message_id"`
	SizeEstimate int64     `json:"size_estimate,omitempty"`
	ReceivedAt   time.Time `json:"received_at,omitempty"`
	Snippet      string    `json:"snippet,omitempty"`
	URLs         int       `json:"urls"`
	FileURLs     []string  `json:"file_urls,omitempty"`
	PublicURLs   []string  `json:"public_urls,omitempty"`
	Failed       bool      `json:"failed,omitempty"`
}

// ScanResult is the output of one scan run. Nothing in it outlives the process.
type ScanResult struct {
	ID              uuid.UUID       `json:"id"`
	Source          string          `json:"source"`
	State           ScanState       `json:"state"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	MessagesTotal   int             `json:"messages_total"`
	MessagesScanned int             `json:"messages_scanned"`
	MessagesFailed  int             `json:"messages_failed"`
	URLsFound       int             `json:"urls_found"`
	FileURLs        int             `json:"file_urls"`
	PublicURLs      []string        `json:"public_urls"`
	Messages        []MessageReport `json:"messages,omitempty"`
	Diagnostics     []Diagnostic    `json:"diagnostics,omitempty"`
}

// NewScanResult starts an empty result for the given source.
func NewScanResult(source string) *ScanResult {
	return &ScanResult{
		ID:         uuid.New(),
		Source:     source,
		State:      ScanIdle,
		StartedAt:  time.Now().UTC(),
		PublicURLs: []string{},
	}
}

// Duration returns the wall time of the run so far.
func (r *ScanResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
