package chunks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/keygen"
	"github.com/filedepot/filedepot/internal/storage"
)

// mergeScratchName is the temp file inside the session directory that holds
// the concatenated parts before hand-off to the backend.
const mergeScratchName = ".merged"

// Merger assembles a complete chunk session into one stored object.
type Merger struct {
	Sessions *SessionStore
	Backend  storage.Backend
}

// NewMerger creates a Merger over the given session store and backend.
func NewMerger(sessions *SessionStore, backend storage.Backend) *Merger {
	return &Merger{Sessions: sessions, Backend: backend}
}

// Merge validates that parts 1..totalParts are all present, concatenates them
// in ascending part order, and hands the result to the backend. The final
// byte order is always part-number order regardless of arrival order.
//
// The session directory is deleted only after the backend write succeeds, so
// a failed merge can be retried without resending any parts. No partial merge
// is ever produced.
func (m *Merger) Merge(ctx context.Context, uploadID, filename string, totalParts int, module string) (*storage.StoredObject, error) {
	if filename == "" {
		return nil, deperr.InvalidInput("filename must not be empty")
	}
	if module == "" {
		return nil, deperr.InvalidInput("module must not be empty")
	}
	if totalParts < 1 {
		return nil, deperr.InvalidInput(fmt.Sprintf("declared part count must be >= 1, got %d", totalParts))
	}

	present, err := m.Sessions.ListParts(uploadID)
	if err != nil {
		return nil, err
	}
	if missing := missingParts(present, totalParts); len(missing) > 0 {
		return nil, deperr.NewMissingParts(uploadID, missing)
	}

	sessionDir, err := m.Sessions.SessionDir(uploadID)
	if err != nil {
		return nil, err
	}

	scratch, size, err := m.concatenate(sessionDir, uploadID, totalParts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(scratch)
	if err != nil {
		return nil, deperr.BackendUnavailable("opening merged file", err)
	}

	key := keygen.ChunkKey(uploadID, filename, module)
	obj, err := m.Backend.Put(ctx, key, f, size, contentTypeFor(filename))
	f.Close()
	if err != nil {
		// Keep the parts for retry; only the scratch file is rebuilt.
		os.Remove(scratch)
		return nil, err
	}

	if err := m.Sessions.Remove(uploadID); err != nil {
		// The object is committed; a stale session dir is a cleanup concern,
		// not a merge failure. The reaper will get it eventually.
		slog.Warn("removing merged session directory failed", "upload_id", uploadID, "error", err)
	}

	slog.Info("chunked upload merged", "upload_id", uploadID, "key", obj.Key, "size", obj.Size, "parts", totalParts)
	return obj, nil
}

// concatenate writes parts 1..totalParts byte-for-byte into a scratch file in
// the session directory, returning its path and size.
func (m *Merger) concatenate(sessionDir, uploadID string, totalParts int) (string, int64, error) {
	scratch := filepath.Join(sessionDir, mergeScratchName)
	out, err := os.Create(scratch)
	if err != nil {
		return "", 0, deperr.BackendUnavailable("creating merge scratch file", err)
	}

	var total int64
	for n := 1; n <= totalParts; n++ {
		partPath, err := m.Sessions.PartPath(uploadID, n)
		if err != nil {
			out.Close()
			os.Remove(scratch)
			return "", 0, err
		}
		part, err := os.Open(partPath)
		if err != nil {
			out.Close()
			os.Remove(scratch)
			return "", 0, deperr.BackendUnavailable(fmt.Sprintf("opening part %d", n), err)
		}
		written, err := io.Copy(out, part)
		part.Close()
		if err != nil {
			out.Close()
			os.Remove(scratch)
			return "", 0, deperr.BackendUnavailable(fmt.Sprintf("copying part %d", n), err)
		}
		total += written
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(scratch)
		return "", 0, deperr.BackendUnavailable("syncing merge scratch file", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(scratch)
		return "", 0, deperr.BackendUnavailable("closing merge scratch file", err)
	}

	return scratch, total, nil
}

// missingParts returns the part numbers in 1..totalParts absent from the
// sorted present list, in ascending order.
func missingParts(present []int, totalParts int) []int {
	have := make(map[int]bool, len(present))
	for _, n := range present {
		have[n] = true
	}
	var missing []int
	for n := 1; n <= totalParts; n++ {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

// contentTypeFor infers a MIME type from the filename's extension.
func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(keygen.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
