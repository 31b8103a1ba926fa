// Package credstore persists the caller's API key between client sessions.
package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"audio-blinkshot/internal/domain"
)

// FileStore keeps credentials in a small YAML document keyed by storage key.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is credentials.yaml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "audio-blinkshot", "credentials.yaml"), nil
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored credential, or "" when none is stored.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return "", err
	}
	return entries[domain.CredentialKey], nil
}

// Save stores key. A blank key removes the stored credential.
func (s *FileStore) Save(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		delete(entries, domain.CredentialKey)
	} else {
		entries[domain.CredentialKey] = key
	}

	if len(entries) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing credentials file: %w", err)
		}
		return nil
	}
	return s.write(entries)
}

func (s *FileStore) read() (map[string]string, error) {
	entries := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing credentials file: %w", err)
	}
	return nil
}
