// Package filestore keeps the whole registration document in one JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m3rciful/pocketreg/internal/registration"
)

const backend = "file"

// Store reads and rewrites a single JSON document. It has no locking of its
// own; callers serialise access.
type Store struct {
	path string
}

// New returns a store persisting to path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted document or an empty one when the file does not exist yet.
func (s *Store) Load(_ context.Context) (*registration.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return registration.NewDocument(), nil
	}
	if err != nil {
		return nil, registration.ReadError(backend, err)
	}

	var doc registration.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, registration.ReadError(backend, fmt.Errorf("decode %s: %w", s.path, err))
	}
	doc.Normalize()

	var bad error
	doc.EachUser(func(userID string, rec registration.UserRecord) bool {
		if !rec.Status.Valid() {
			bad = fmt.Errorf("user %s: unknown status %q", userID, rec.Status)
			return false
		}
		return true
	})
	if bad != nil {
		return nil, registration.ReadError(backend, bad)
	}
	return &doc, nil
}

// Save overwrites the file by writing a sibling temp file and renaming it into place.
func (s *Store) Save(_ context.Context, doc *registration.Document) error {
	data, err := json.MarshalIndent(doc.Normalize(), "", "    ")
	if err != nil {
		return registration.WriteError(backend, fmt.Errorf("encode: %w", err))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return registration.WriteError(backend, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return registration.WriteError(backend, err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return registration.WriteError(backend, cause)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(s.fileMode()); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return registration.WriteError(backend, err)
	}
	return nil
}

// fileMode keeps the permissions of the file being replaced. A new file gets 0644.
func (s *Store) fileMode() os.FileMode {
	if fi, err := os.Stat(s.path); err == nil {
		return fi.Mode().Perm()
	}
	return 0o644
}
