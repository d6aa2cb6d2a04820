// Package chunks manages in-progress chunked uploads: per-upload session
// directories on local scratch storage, the merge that assembles parts into
// a single stored object, and the reaper that removes abandoned sessions.
package chunks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	deperr "github.com/filedepot/filedepot/internal/errors"
)

// partPrefix is the filename prefix for part files. Part numbers are
// zero-padded to five digits so lexical and numeric sort agree, which keeps
// directory listings debuggable.
const partPrefix = "part_"

// SessionStore tracks in-progress chunked uploads on local disk. The session
// directory is a pure function of the upload id, which doubles as the
// "session exists" check: no external index is needed.
type SessionStore struct {
	// Dir is the base directory holding one subdirectory per upload id.
	Dir string
}

// NewSessionStore creates a SessionStore rooted at dir, creating it if absent.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chunk session directory %q: %w", dir, err)
	}
	return &SessionStore{Dir: dir}, nil
}

// SessionDir returns the scratch directory for an upload id, validating that
// the id cannot escape the store's base directory.
func (s *SessionStore) SessionDir(uploadID string) (string, error) {
	if uploadID == "" {
		return "", deperr.InvalidInput("upload id must not be empty")
	}
	if strings.ContainsAny(uploadID, "/\\") || uploadID == "." || uploadID == ".." {
		return "", deperr.InvalidInput(fmt.Sprintf("malformed upload id %q", uploadID))
	}
	return filepath.Join(s.Dir, uploadID), nil
}

// partFileName returns the zero-padded file name for a part number.
func partFileName(partNumber int) string {
	return fmt.Sprintf("%s%05d", partPrefix, partNumber)
}

// WritePart stores one part of an upload session, creating the session
// directory lazily on first write. Each part lands in its own file via
// temp-then-rename, so resending the same part number overwrites atomically
// rather than appends: retries are idempotent, last write wins.
func (s *SessionStore) WritePart(uploadID string, partNumber int, r io.Reader) (int64, error) {
	dir, err := s.SessionDir(uploadID)
	if err != nil {
		return 0, err
	}
	if partNumber < 1 {
		return 0, deperr.InvalidInput(fmt.Sprintf("part number must be >= 1, got %d", partNumber))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, deperr.BackendUnavailable("creating session directory", err)
	}

	tmpPath := filepath.Join(dir, ".in-"+uuid.NewString())
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, deperr.BackendUnavailable("creating part temp file", err)
	}

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, deperr.BackendUnavailable("writing part data", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, deperr.BackendUnavailable("syncing part file", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, deperr.BackendUnavailable("closing part file", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, partFileName(partNumber))); err != nil {
		os.Remove(tmpPath)
		return 0, deperr.BackendUnavailable("publishing part file", err)
	}

	return written, nil
}

// ListParts returns the part numbers present for an upload session in
// ascending order. A session with no directory yet simply has no parts;
// that is not an error, so callers can query resumable state at any time.
func (s *SessionStore) ListParts(uploadID string) ([]int, error) {
	dir, err := s.SessionDir(uploadID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, deperr.BackendUnavailable("listing session directory", err)
	}

	parts := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, partPrefix) {
			continue
		}
		n, err := strconv.Atoi(name[len(partPrefix):])
		if err != nil || n < 1 {
			continue
		}
		parts = append(parts, n)
	}
	sort.Ints(parts)
	return parts, nil
}

// PartPath returns the path of one part file.
func (s *SessionStore) PartPath(uploadID string, partNumber int) (string, error) {
	dir, err := s.SessionDir(uploadID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, partFileName(partNumber)), nil
}

// Remove deletes the entire session directory: parts, temp files, everything.
func (s *SessionStore) Remove(uploadID string) error {
	dir, err := s.SessionDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return deperr.BackendUnavailable("removing session directory", err)
	}
	return nil
}
