package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	deperr "github.com/filedepot/filedepot/internal/errors"
)

// LocalBackend implements Backend on the local filesystem. Objects live as
// plain files under RootDir, laid out by their key path, and are served by an
// external static-file layer under PublicPrefix.
type LocalBackend struct {
	// RootDir is the base directory for all object data.
	RootDir string
	// PublicPrefix is the URL path prefix prepended to keys in returned URLs.
	PublicPrefix string
}

// NewLocalBackend creates a LocalBackend rooted at rootDir, creating the root
// and its scratch directory if absent.
func NewLocalBackend(rootDir, publicPrefix string) (*LocalBackend, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %q: %w", rootDir, err)
	}
	if err := os.MkdirAll(filepath.Join(rootDir, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &LocalBackend{RootDir: rootDir, PublicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

// CleanTempFiles removes leftover files in the scratch directory. Called on
// startup; anything found there is an incomplete write from a previous crash.
func (b *LocalBackend) CleanTempFiles() error {
	tmpDir := filepath.Join(b.RootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading scratch directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// objectPath maps a key to its filesystem path, rejecting keys that would
// escape RootDir.
func (b *LocalBackend) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", deperr.InvalidInput(fmt.Sprintf("malformed storage key %q", key))
	}
	return filepath.Join(b.RootDir, clean), nil
}

func (b *LocalBackend) tempPath() string {
	return filepath.Join(b.RootDir, ".tmp", "put-"+uuid.NewString())
}

// Put writes the object with the temp-file-then-rename pattern so a reader
// never observes a partially written file. Content type is not persisted;
// the read path re-derives it from the key's extension.
func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*StoredObject, error) {
	objPath, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return nil, deperr.BackendUnavailable("creating parent directories", err)
	}

	tmpPath := b.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return nil, deperr.BackendUnavailable("creating temp file", err)
	}

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return nil, deperr.BackendUnavailable("writing object data", err)
	}

	// Fsync before rename so the rename never publishes unflushed data.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return nil, deperr.BackendUnavailable("syncing temp file", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, deperr.BackendUnavailable("closing temp file", err)
	}

	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return nil, deperr.BackendUnavailable("publishing object file", err)
	}

	return &StoredObject{
		URL:  b.PublicPrefix + "/" + key,
		Key:  key,
		Size: written,
	}, nil
}

// Open returns the object file as the streaming reader. Restart requires
// reopening.
func (b *LocalBackend) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objPath, err := b.objectPath(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, deperr.NotFound(key)
		}
		return nil, 0, deperr.BackendUnavailable("opening object file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, deperr.BackendUnavailable("stat object file", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, deperr.NotFound(key)
	}

	return f, info.Size(), nil
}

// HealthCheck verifies the storage root is accessible.
func (b *LocalBackend) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(b.RootDir); err != nil {
		return deperr.BackendUnavailable("stat storage root", err)
	}
	return nil
}

var _ Backend = (*LocalBackend)(nil)
