package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps the snapshot as a JSON file under the posdisplay home.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to <home>/display/<terminal>.json.
func NewFileStore(home, terminalID string) (*FileStore, error) {
	if strings.TrimSpace(home) == "" {
		return nil, fmt.Errorf("missing posdisplay home")
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("missing terminal id")
	}
	terminalID = strings.ReplaceAll(terminalID, string(os.PathSeparator), "_")
	return &FileStore{path: filepath.Join(home, "display", terminalID+".json")}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (RecoverySnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return RecoverySnapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RecoverySnapshot{}, false, nil
		}
		return RecoverySnapshot{}, false, err
	}
	var snap RecoverySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return RecoverySnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return snap, true, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, snap RecoverySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
