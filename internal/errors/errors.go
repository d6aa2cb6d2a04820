// Package errors defines the storage error taxonomy used throughout filedepot.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a storage-layer failure so the HTTP boundary can map it to
// a user-facing status code without inspecting error strings.
type Kind string

const (
	// KindNotFound means a read addressed a key that does not exist in the
	// active backend.
	KindNotFound Kind = "NotFound"
	// KindMissingParts means a merge was attempted before all declared parts
	// arrived.
	KindMissingParts Kind = "MissingParts"
	// KindBackendUnavailable means a network or filesystem failure talking to
	// the active backend.
	KindBackendUnavailable Kind = "BackendUnavailable"
	// KindInvalidInput means the caller supplied an unusable argument
	// (empty filename, zero or negative part count, malformed upload id).
	KindInvalidInput Kind = "InvalidInput"
)

// StoreError is the error type surfaced by every storage-layer operation.
// The facade never swallows one; callers tag responses off Kind.
type StoreError struct {
	Kind    Kind
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/As keep working through
// the taxonomy wrapper.
func (e *StoreError) Unwrap() error { return e.Err }

// NotFound returns a KindNotFound error for the given storage key.
func NotFound(key string) *StoreError {
	return &StoreError{Kind: KindNotFound, Message: fmt.Sprintf("object not found: %s", key)}
}

// InvalidInput returns a KindInvalidInput error with the given description.
func InvalidInput(msg string) *StoreError {
	return &StoreError{Kind: KindInvalidInput, Message: msg}
}

// BackendUnavailable wraps a backend I/O failure.
func BackendUnavailable(op string, err error) *StoreError {
	return &StoreError{Kind: KindBackendUnavailable, Message: op, Err: err}
}

// missingSampleLimit bounds how many missing part indices a MissingPartsError
// names, to keep error payloads small for huge uploads.
const missingSampleLimit = 10

// MissingPartsError reports an incomplete chunk session at merge time.
// Missing holds at most missingSampleLimit of the absent part numbers in
// ascending order; MissingCount is the true total.
type MissingPartsError struct {
	UploadID     string
	Missing      []int
	MissingCount int
}

// NewMissingParts builds a MissingPartsError from the full ascending list of
// absent part numbers, truncating the named sample.
func NewMissingParts(uploadID string, missing []int) *MissingPartsError {
	e := &MissingPartsError{UploadID: uploadID, MissingCount: len(missing)}
	if len(missing) > missingSampleLimit {
		missing = missing[:missingSampleLimit]
	}
	e.Missing = append(e.Missing, missing...)
	return e
}

// Error implements the error interface for MissingPartsError.
func (e *MissingPartsError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		parts[i] = fmt.Sprintf("%d", n)
	}
	s := strings.Join(parts, ", ")
	if e.MissingCount > len(e.Missing) {
		return fmt.Sprintf("upload %s is missing %d parts (first %d: %s)", e.UploadID, e.MissingCount, len(e.Missing), s)
	}
	return fmt.Sprintf("upload %s is missing parts: %s", e.UploadID, s)
}

// KindOf extracts the taxonomy Kind from an error chain. Unclassified errors
// report KindBackendUnavailable, the conservative default for the boundary.
func KindOf(err error) Kind {
	var mp *MissingPartsError
	if errors.As(err, &mp) {
		return KindMissingParts
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindBackendUnavailable
}

// IsNotFound reports whether the error chain contains a KindNotFound error.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsInvalidInput reports whether the error chain contains a KindInvalidInput error.
func IsInvalidInput(err error) bool { return hasKind(err, KindInvalidInput) }

// IsBackendUnavailable reports whether the error chain contains a
// KindBackendUnavailable error.
func IsBackendUnavailable(err error) bool { return hasKind(err, KindBackendUnavailable) }

// IsMissingParts reports whether the error chain contains a MissingPartsError.
func IsMissingParts(err error) bool {
	var mp *MissingPartsError
	return errors.As(err, &mp)
}

func hasKind(err error, k Kind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == k
}

// HTTPStatus maps an error chain to the HTTP status code the boundary layer
// should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return 404
	case KindMissingParts:
		return 409
	case KindInvalidInput:
		return 400
	default:
		return 502
	}
}
