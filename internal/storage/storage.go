package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// JSONStorage keeps every record in memory and rewrites a single JSON file
// after each mutation. All Interface methods are serialized by an RWMutex.
type JSONStorage struct {
	*memStore
	filepath string
}

// NewJSONStorage opens the store at path, loading existing data if the file exists.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{filepath: path}
	s.memStore = newMemStore(func(string) error { return s.save() })

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking storage file: %w", err)
	}
	return s, nil
}

// Load replaces the in-memory records with the file contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	data := newStorageData()
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	if data.Positions == nil {
		data.Positions = make(map[string]*models.Position)
	}
	if data.Spreads == nil {
		data.Spreads = make(map[string]*models.CreditSpread)
	}
	s.data = data
	return nil
}

// Save writes the current records to disk.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save must be called with the lock held.
func (s *JSONStorage) save() error {
	s.data.LastUpdated = s.now()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}
