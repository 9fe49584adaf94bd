// Package normalize reduces URLs to their identity and removes duplicates.
package normalize

import (
	"errors"
	"net/url"
	"strings"

	"scanner_server/core/domain"
)

var (
	errMissingScheme = errors.New("missing scheme")
	errMissingHost   = errors.New("missing host")
)

// StripQuery returns scheme://host/path, dropping userinfo, query and fragment.
// The path keeps its escaped form so the result re-parses to itself.
func StripQuery(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &domain.ParseError{URL: raw, Err: err}
	}
	if u.Scheme == "" {
		return "", &domain.ParseError{URL: raw, Err: errMissingScheme}
	}
	if u.Host == "" {
		return "", &domain.ParseError{URL: raw, Err: errMissingHost}
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath(), nil
}

// UniqueURLs applies StripQuery to every element and keeps the first
// occurrence of each result. URLs that fail to parse are skipped and returned
// as errors so the caller can log them.
func UniqueURLs(urls []string) ([]string, []error) {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	var errs []error

	for _, raw := range urls {
		stripped, err := StripQuery(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := seen[stripped]; ok {
			continue
		}
		seen[stripped] = struct{}{}
		out = append(out, stripped)
	}
	return out, errs
}
