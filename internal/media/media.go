// Package media stores uploaded files (page snapshots, cover images,
// PDFs) in a flat content-addressed directory. Save bodies reference
// the returned names as opaque strings; nothing here takes part in
// syncing.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/checksum"
)

// Store is a flat directory of content-addressed files.
type Store struct {
	root string // absolute path to the media directory
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("media: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("media: create root: %w", err)
	}
	return &Store{root: abs}, nil
}

var nameRe = regexp.MustCompile(`^[a-f0-9]{16}(\.[a-z0-9]{1,8})?$`)

// safePath admits only names this store itself hands out, so traversal
// can never leave the media directory.
func (s *Store) safePath(name string) (string, error) {
	if !nameRe.MatchString(name) {
		return "", fmt.Errorf("media: malformed name %q: %w", name, apperr.ErrInvalid)
	}
	return filepath.Join(s.root, name), nil
}

// Put stores data under its content hash and returns the assigned
// name. Storing the same bytes twice lands on the same name, the
// second write is skipped.
func (s *Store) Put(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media: empty upload: %w", apperr.ErrInvalid)
	}
	name := checksum.Short(data) + normalizeExt(ext)
	abs, err := s.safePath(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		return name, nil
	}

	tmp, err := os.CreateTemp(s.root, ".othala-tmp-*")
	if err != nil {
		return "", fmt.Errorf("media: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("media: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("media: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("media: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("media: rename: %w", err)
	}
	success = true
	return name, nil
}

// Path returns the absolute path for a stored name, for serving with
// http.ServeFile.
func (s *Store) Path(name string) (string, error) {
	abs, err := s.safePath(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("media: %q: %w", name, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("media: stat %q: %w", name, err)
	}
	return abs, nil
}

// Read returns the raw bytes of a stored file.
func (s *Store) Read(name string) ([]byte, error) {
	abs, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("media: read %q: %w", name, err)
	}
	return data, nil
}

// Delete removes a stored file.
func (s *Store) Delete(name string) error {
	abs, err := s.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media: %q: %w", name, apperr.ErrNotFound)
		}
		return fmt.Errorf("media: delete %q: %w", name, err)
	}
	return nil
}

// normalizeExt lowercases an extension and drops anything the name
// pattern would reject.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	if len(ext) > 8 {
		return ""
	}
	return "." + ext
}
