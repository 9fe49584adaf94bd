package out

import "context"

// StatusProber issues a single outbound request and reports the status code
// of the first response. Redirects are not followed.
type StatusProber interface {
	Status(ctx context.Context, rawURL string) (int, error)
}
