package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore appends records as JSON lines to a local file. One writer per
// process; the mutex serializes concurrent requests so every line is a
// complete record. Ordering across principals is not guaranteed, atomicity of
// each record is.
type FileStore struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileStore opens (creating if needed) the audit log at path in
// append-only mode.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("audit: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &FileStore{file: f}, nil
}

// Append writes one record as a single JSON line.
func (s *FileStore) Append(_ context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("audit: append record: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
