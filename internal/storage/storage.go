// Package storage persists uploaded file content on the local filesystem.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local stores file content under a root directory, one subdirectory
// per user.
type Local struct {
	root string
}

// NewLocal creates the storage root if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes content to a new object and returns its key. The key is
// relative to the storage root so the root can move.
func (l *Local) Save(userID, extension string, content io.Reader) (key string, size int64, err error) {
	dir := filepath.Join(l.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create user directory: %w", err)
	}

	name := uuid.Must(uuid.NewV7()).String()
	if extension != "" {
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		name += extension
	}
	key = filepath.ToSlash(filepath.Join(userID, name))

	f, err := os.Create(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create object: %w", err)
	}
	defer f.Close()

	size, err = io.Copy(f, content)
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("failed to write object: %w", err)
	}
	return key, size, nil
}

// Open returns a reader for an object. The caller closes it.
func (l *Local) Open(key string) (io.ReadSeekCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s not found", key)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Delete removes an object. Missing objects are not an error.
func (l *Local) Delete(key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// resolve maps a key to an absolute path, rejecting traversal outside
// the storage root.
func (l *Local) resolve(key string) (string, error) {
	path := filepath.Join(l.root, filepath.FromSlash(key))
	rootAbs, err := filepath.Abs(l.root)
	if err != nil {
		return "", err
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(pathAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return pathAbs, nil
}
