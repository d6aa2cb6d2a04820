// Package metadata persists a record of every completed upload so callers
// can list and soft-delete their files. Records are bookkeeping only: losing
// one never orphans object data, and failing to write one never fails an
// upload.
package metadata

import (
	"context"
	"time"
)

// UploadRecord describes one completed upload.
type UploadRecord struct {
	// ID is a generated identifier, independent of the storage key.
	ID string
	// Filename is the caller's original file name.
	Filename string
	// Key is the storage key the object was committed under.
	Key string
	// URL is the access URL returned to the caller at upload time.
	URL string
	// Size is the object size in bytes.
	Size int64
	// ContentType is the MIME type recorded at upload time.
	ContentType string
	// Module is the logical module the upload belongs to.
	Module    string
	CreatedAt time.Time
}

// RecordStore is the persistence interface for upload records.
type RecordStore interface {
	// Insert stores a new record; the ID must be unique.
	Insert(ctx context.Context, rec *UploadRecord) error
	// Get returns a record by ID, or nil if absent or soft-deleted.
	Get(ctx context.Context, id string) (*UploadRecord, error)
	// List returns records newest first, skipping soft-deleted ones.
	List(ctx context.Context, limit, offset int) ([]*UploadRecord, error)
	// SoftDelete marks a record deleted, reporting whether it existed.
	SoftDelete(ctx context.Context, id string) (bool, error)
	// Close releases the underlying database handle.
	Close() error
}
