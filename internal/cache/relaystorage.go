package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryRelayStorage keeps the configured relay list in memory. Useful for
// tests and for running without persistence; supports pre-seeding.
type MemoryRelayStorage struct {
	mu   sync.Mutex
	urls []string
}

// NewMemoryRelayStorage creates storage pre-seeded with the given URLs.
func NewMemoryRelayStorage(seed ...string) *MemoryRelayStorage {
	s := &MemoryRelayStorage{}
	s.urls = append(s.urls, seed...)
	return s
}

// LoadRelays returns a copy of the stored list.
func (s *MemoryRelayStorage) LoadRelays(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out, nil
}

// SaveRelays replaces the stored list with a copy of urls, so the caller's
// slice stays isolated from storage.
func (s *MemoryRelayStorage) SaveRelays(ctx context.Context, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make([]string, len(urls))
	copy(s.urls, urls)
	return nil
}

// FileRelayStorage persists the relay list as a JSON array on disk, the same
// way the client keeps its key file.
type FileRelayStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileRelayStorage creates storage backed by the file at path. The file
// is created on first save.
func NewFileRelayStorage(path string) *FileRelayStorage {
	return &FileRelayStorage{path: path}
}

// LoadRelays reads the persisted list; a missing file yields an empty list.
func (s *FileRelayStorage) LoadRelays(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read relay list: %w", err)
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("parse relay list: %w", err)
	}
	return urls, nil
}

// SaveRelays writes the list atomically (write temp, rename).
func (s *FileRelayStorage) SaveRelays(ctx context.Context, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("encode relay list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create relay list dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write relay list: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace relay list: %w", err)
	}
	return nil
}
