package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GetOrCreateTerminalID returns the persistent id of this POS terminal,
// generating one under home on first use.
func GetOrCreateTerminalID(home string) (string, error) {
	if strings.TrimSpace(home) == "" {
		return "", fmt.Errorf("missing posdisplay home")
	}
	path := filepath.Join(home, "terminal.id")
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read terminal id: %w", err)
	}

	if err := os.MkdirAll(home, 0o700); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("failed to write terminal id: %w", err)
	}
	return id, nil
}
