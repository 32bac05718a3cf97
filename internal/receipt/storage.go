package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds captured receipt images for the lifetime of a review.
// Captures are written when a capture starts and released on settlement,
// reset, or when a new capture replaces them.
type Storage interface {
	// Save stores a capture and returns the path it can be read back from
	Save(filename string, data []byte) (string, error)

	// Get reads a stored capture
	Get(path string) ([]byte, error)

	// Delete releases a stored capture
	Delete(path string) error
}

// LocalStorage keeps captures in a directory on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the capture directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes a capture under the base directory.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	return filename, nil
}

// Get reads a stored capture.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return data, nil
}

// Delete removes a stored capture.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}
