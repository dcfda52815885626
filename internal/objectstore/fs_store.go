// Package objectstore provides the artifact blob storage backends. Generated
// waveforms are written here under their artifact key; metadata stays in the
// artifact cache.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Static errors.
var (
	ErrInvalidKey     = errors.New("object key must be a bare file name")
	ErrObjectNotFound = errors.New("object not found")
)

// FSStore implements core.ObjectStore on the local filesystem. It is the
// default backend: one file per artifact under the audio storage root.
type FSStore struct {
	root string
}

// NewFS creates the storage root if needed and returns a filesystem store.
func NewFS(root string) (*FSStore, error) {
	dirErr := os.MkdirAll(root, dirPermissions)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create storage root '%s': %w", root, dirErr)
	}

	return &FSStore{root: root}, nil
}

// Download reads the object stored under key. A missing file surfaces as
// ErrObjectNotFound so callers can distinguish it from I/O failures.
func (s *FSStore) Download(_ context.Context, key string) ([]byte, error) {
	path, pathErr := s.pathFor(key)
	if pathErr != nil {
		return nil, pathErr
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	return data, nil
}

// Upload writes data under key, replacing any existing object.
func (s *FSStore) Upload(_ context.Context, key string, data []byte) error {
	path, pathErr := s.pathFor(key)
	if pathErr != nil {
		return pathErr
	}

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write object '%s': %w", key, writeErr)
	}

	return nil
}

// pathFor rejects keys that would escape the storage root.
func (s *FSStore) pathFor(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || key != filepath.Base(key) {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidKey, key)
	}

	return filepath.Join(s.root, key), nil
}
