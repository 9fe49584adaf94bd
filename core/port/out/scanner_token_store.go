package out

import "golang.org/x/oauth2"

// TokenStore persists the OAuth token between the auth step and a scan.
// Load returns domain.ErrNotAuthenticated when nothing is stored.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}
