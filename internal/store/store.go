// Package store provides the object store facade: the single entry point
// through which every other subsystem saves and reads files. It dispatches
// to one configured storage backend and never falls back to another.
package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"

	"github.com/filedepot/filedepot/internal/chunks"
	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/keygen"
	"github.com/filedepot/filedepot/internal/storage"
)

// DefaultModule is used when callers do not name a logical module.
const DefaultModule = "common"

// Store is the object store facade. Construct one per backend; facades with
// different backends can coexist (nothing is read from process-wide state).
type Store struct {
	backend  storage.Backend
	sessions *chunks.SessionStore
	merger   *chunks.Merger
}

// New creates a Store over the given backend and chunk session store.
func New(backend storage.Backend, sessions *chunks.SessionStore) *Store {
	return &Store{
		backend:  backend,
		sessions: sessions,
		merger:   chunks.NewMerger(sessions, backend),
	}
}

// Backend exposes the active backend for health checks.
func (s *Store) Backend() storage.Backend { return s.backend }

// SaveBytes stores a complete payload in one shot. The key is freshly
// generated, so two saves of the same filename never collide.
func (s *Store) SaveBytes(ctx context.Context, data []byte, filename, module, contentType string) (*storage.StoredObject, error) {
	return s.SaveStream(ctx, bytes.NewReader(data), int64(len(data)), filename, module, contentType)
}

// SaveStream stores a complete payload from a reader in one shot.
func (s *Store) SaveStream(ctx context.Context, r io.Reader, size int64, filename, module, contentType string) (*storage.StoredObject, error) {
	if filename == "" {
		return nil, deperr.InvalidInput("filename must not be empty")
	}
	if module == "" {
		module = DefaultModule
	}
	if contentType == "" {
		contentType = inferContentType(filename)
	}

	key := keygen.Generate(filename, module)
	obj, err := s.backend.Put(ctx, key, r, size, contentType)
	if err != nil {
		return nil, err
	}
	slog.Info("file stored", "key", obj.Key, "size", obj.Size, "module", module)
	return obj, nil
}

// SaveChunk stores one part of a chunked upload. Parts may arrive in any
// order; resending a part number overwrites the previous copy.
func (s *Store) SaveChunk(uploadID string, partNumber int, r io.Reader) (int64, error) {
	return s.sessions.WritePart(uploadID, partNumber, r)
}

// ListUploadedParts returns the sorted part numbers already stored for an
// upload, letting a client resume after a connection loss without resending
// completed parts.
func (s *Store) ListUploadedParts(uploadID string) ([]int, error) {
	return s.sessions.ListParts(uploadID)
}

// CompleteUpload merges all parts of a chunk session into one stored object.
// Retryable: a failure anywhere before backend commit leaves the session
// intact.
func (s *Store) CompleteUpload(ctx context.Context, uploadID, filename string, totalParts int, module string) (*storage.StoredObject, error) {
	if module == "" {
		module = DefaultModule
	}
	return s.merger.Merge(ctx, uploadID, filename, totalParts, module)
}

// OpenReadStream returns a streaming reader over a stored object and its
// size. The caller closes the reader.
func (s *Store) OpenReadStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if key == "" {
		return nil, 0, deperr.InvalidInput("storage key must not be empty")
	}
	return s.backend.Open(ctx, key)
}

// inferContentType maps a filename to a MIME type by extension, defaulting
// to application/octet-stream.
func inferContentType(filename string) string {
	if ct := mime.TypeByExtension(keygen.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ContentTypeForKey infers the MIME type for a stored key, used by the read
// path to set the response content type.
func ContentTypeForKey(key string) string {
	return inferContentType(key)
}
