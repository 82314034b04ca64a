// Package credstore persists the bearer token and the resolved user record
// across process restarts. The token and the user record form one credential
// and are always written and deleted together; a store can never hold half
// a credential.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shuttletrack/internal/identity"
)

// ErrNoCredential is returned by Load when nothing is stored.
var ErrNoCredential = errors.New("no stored credential")

// Credential pairs the opaque bearer token with the identity it was
// resolved to at sign-in.
type Credential struct {
	Token string              `json:"token"`
	User  identity.UserRecord `json:"user"`
}

// Store is a file-backed credential store.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store persisting to the given file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the conventional credential file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shuttletrack", "credential.json"), nil
}

// Load reads the stored credential.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if cred.Token == "" {
		return nil, ErrNoCredential
	}
	return &cred, nil
}

// Save persists the credential. The write goes through a temp file and a
// rename so a crash mid-write can never leave a partial credential behind.
func (s *Store) Save(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear deletes the stored credential. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
