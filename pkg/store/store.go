// Package store persists independently keyed JSON blobs, one file per key.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const (
	// DefaultDirName is created under the home directory when no dir is configured
	DefaultDirName = ".ti-portal"

	KeySiteConfig      = "site_config"
	KeyAirdropRegistry = "airdrop_registry"
	KeyChatMessages    = "chat_messages"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Store reads and rewrites whole blobs. Each mutation rewrites its blob
// atomically; there is no migration or versioning.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New opens a store rooted at dir, defaulting to ~/.ti-portal
func New(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the directory blobs live in
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing key
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load decodes the blob stored under key into v. It reports false, without
// error, when nothing has been stored yet.
func (s *Store) Load(key string, v interface{}) (bool, error) {
	if !keyPattern.MatchString(key) {
		return false, fmt.Errorf("invalid store key %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Save rewrites the blob under key with v
func (s *Store) Save(key string, v interface{}) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid store key %q", key)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure directory exists
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	path := s.Path(key)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
