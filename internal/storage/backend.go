// Package storage defines the interface and implementations for filedepot's
// object storage backends.
package storage

import (
	"context"
	"io"
)

// Warning carries a soft failure from a best-effort side step (currently only
// bucket-policy application on the remote backend). A Warning on a successful
// Put degrades read-access convenience, not write correctness; callers log it
// and move on, and tests can assert on it.
type Warning struct {
	// Op names the step that failed (e.g. "put-bucket-policy").
	Op  string
	Err error
}

// StoredObject is the result of any save or merge operation and the only
// representation of a stored object exposed to callers. Key round-trips back
// into Open; callers must not assume anything else about physical location.
type StoredObject struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
	// Warning is set when a best-effort step failed without failing the write.
	Warning *Warning `json:"-"`
}

// Backend is the interchangeable physical storage implementation. The active
// backend is fixed per process; all methods must be safe for concurrent use.
type Backend interface {
	// Put writes the object at key and returns its public URL and size.
	// On failure no partial object is left behind under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*StoredObject, error)

	// Open returns a streaming reader over the object plus its size. The
	// caller closes the reader. Missing keys surface as a NotFound error.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}
