package tokenstore

import (
	"errors"
	"fmt"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// KeyringService groups the scanner's secrets in the OS keychain.
const KeyringService = "scanner_server"

// KeyringStore keeps the token in the OS keychain.
type KeyringStore struct {
	service string
	account string
}

// NewKeyringStore creates a keyring store for account.
func NewKeyringStore(account string) *KeyringStore {
	if account == "" {
		account = "gmail"
	}
	return &KeyringStore{service: KeyringService, account: account}
}

// Load reads the stored token.
func (s *KeyringStore) Load() (*oauth2.Token, error) {
	secret, err := keyring.Get(s.service, s.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, domain.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return nil, fmt.Errorf("decode keyring token: %w", err)
	}
	return &token, nil
}

// Save stores the token.
func (s *KeyringStore) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := keyring.Set(s.service, s.account, string(data)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete removes the stored token. A missing token is not an error.
func (s *KeyringStore) Delete() error {
	if err := keyring.Delete(s.service, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

var _ out.TokenStore = (*KeyringStore)(nil)
