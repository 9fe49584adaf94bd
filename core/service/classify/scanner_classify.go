// Package classify decides which URLs point at cloud-hosted files.
//
// Every predicate here is pure and total: malformed input classifies false.
package classify

import (
	"net/url"
	"strings"
)

// Provider names, used as metric and log labels.
const (
	ProviderGoogleDrive = "google_drive"
	ProviderDropbox     = "dropbox"
)

var googleDriveHosts = map[string]struct{}{
	"drive.google.com":  {},
	"docs.google.com":   {},
	"sheets.google.com": {},
	"forms.google.com":  {},
	"slides.google.com": {},
}

var dropboxSharePrefixes = []string{
	"dropbox.com/s/",
	"dropbox.com/scl/",
}

// IsGoogleDriveURL reports whether raw is on a Google Drive family host and
// names something below the root.
func IsGoogleDriveURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if _, ok := googleDriveHosts[strings.ToLower(u.Hostname())]; !ok {
		return false
	}
	return u.Path != "" && u.Path != "/"
}

// IsDropboxURL reports whether raw contains a Dropbox share-link path prefix.
func IsDropboxURL(raw string) bool {
	for _, prefix := range dropboxSharePrefixes {
		if strings.Contains(raw, prefix) {
			return true
		}
	}
	return false
}

// IsFileURL reports whether raw is a Google Drive or Dropbox file link.
func IsFileURL(raw string) bool {
	return IsGoogleDriveURL(raw) || IsDropboxURL(raw)
}

// Provider returns the provider label for raw, or "" when it is not a file link.
// Dropbox wins when both match, since its rule is checked first when probing.
func Provider(raw string) string {
	switch {
	case IsDropboxURL(raw):
		return ProviderDropbox
	case IsGoogleDriveURL(raw):
		return ProviderGoogleDrive
	default:
		return ""
	}
}

// FileURLs keeps the file links of urls in their original order.
func FileURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if IsFileURL(u) {
			out = append(out, u)
		}
	}
	return out
}
