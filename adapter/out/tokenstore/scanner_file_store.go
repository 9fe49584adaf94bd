// Package tokenstore persists the Gmail OAuth token between runs.
package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"scanner_server/core/domain"
	"scanner_server/core/port/out"
	"scanner_server/pkg/crypto"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const fileMode = 0o600

// FileStore keeps the token as JSON on disk, optionally sealed.
type FileStore struct {
	path   string
	sealer *crypto.Sealer
	mu     sync.Mutex
}

// NewFileStore creates a file store at path. sealer may be nil.
func NewFileStore(path string, sealer *crypto.Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

// Path returns the token file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored token.
func (s *FileStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data)
		if err != nil {
			return nil, fmt.Errorf("unseal token file: %w", err)
		}
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &token, nil
}

// Save writes the token atomically with owner-only permissions.
func (s *FileStore) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("nil token")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

var _ out.TokenStore = (*FileStore)(nil)
