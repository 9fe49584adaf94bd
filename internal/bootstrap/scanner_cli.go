package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"scanner_server/core/domain"
	"scanner_server/core/port/in"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

// ScanOptions for a one-shot CLI scan
type ScanOptions struct {
	Source string
	JSON   bool
}

// RunScan runs one scan and writes the result to w. A listing failure is
// returned after the partial result has been written.
func RunScan(ctx context.Context, scans in.ScanService, opts ScanOptions, w io.Writer) error {
	var (
		result *domain.ScanResult
		err    error
	)
	if opts.Source != "" {
		result, err = scans.ScanSource(ctx, opts.Source)
	} else {
		result, err = scans.Scan(ctx)
	}
	if result != nil {
		if werr := writeResult(w, result, opts.JSON); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func writeResult(w io.Writer, r *domain.ScanResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	bw := bufio.NewWriter(w)
	for _, m := range r.Messages {
		if len(m.PublicURLs) == 0 {
			continue
		}
		fmt.Fprintf(bw, "Found %d public file URLs in message %s (%s, %s). Snippet: %s\n",
			len(m.PublicURLs), m.MessageID, reportSize(m.SizeEstimate), reportDate(m.ReceivedAt), m.Snippet)
	}
	fmt.Fprintf(bw, "Scan %s (%s): %s in %s\n", r.ID, r.Source, r.State, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(bw, "Email messages scanned: %s\n", humanize.Comma(int64(r.MessagesTotal)))
	fmt.Fprintf(bw, "Scanned successfully: %s\n", humanize.Comma(int64(r.MessagesScanned)))
	fmt.Fprintf(bw, "Scanned unsuccessfully: %s\n", humanize.Comma(int64(r.MessagesFailed)))
	fmt.Fprintf(bw, "Links: %d found, %d file links, %d public\n", r.URLsFound, r.FileURLs, len(r.PublicURLs))
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(bw, "Diagnostics: %d (rerun with --json for details)\n", len(r.Diagnostics))
	}
	if len(r.PublicURLs) > 0 {
		fmt.Fprintln(bw, "\nPublicly shared files:")
		for _, u := range r.PublicURLs {
			fmt.Fprintf(bw, "  %s\n", u)
		}
	}
	return bw.Flush()
}

func reportSize(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}

func reportDate(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}
	return "created " + t.Format(time.DateOnly)
}

// RunAuth performs the console consent flow: print the consent URL, read
// back either the authorization code or the full redirected URL, and store
// the token.
func RunAuth(ctx context.Context, auth in.AuthService, r io.Reader, w io.Writer) error {
	consentURL, _, err := auth.AuthURL()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Open this URL in a browser and grant read-only Gmail access:\n\n  %s\n\n", consentURL)
	fmt.Fprint(w, "Paste the authorization code or the full redirect URL: ")

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("read authorization code: %w", err)
	}

	code, err := parseAuthInput(strings.TrimSpace(line), auth)
	if err != nil {
		return err
	}
	token, err := auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	expiry := "no expiry"
	if !token.Expiry.IsZero() {
		expiry = "expires " + humanize.Time(token.Expiry)
	}
	fmt.Fprintf(w, "\nAuthorized. Token stored (%s).\n", expiry)
	return nil
}

// parseAuthInput accepts a bare code or a redirect URL. A URL's state is
// verified the same way the HTTP callback verifies it.
func parseAuthInput(input string, auth in.AuthService) (string, error) {
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	if reason := q.Get("error"); reason != "" {
		return "", fmt.Errorf("consent denied: %s", reason)
	}
	if err := auth.VerifyState(q.Get("state")); err != nil {
		return "", err
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}
