package chunks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/storage"
)

// captureBackend records what it receives and can be made to fail a number
// of Put calls before succeeding.
type captureBackend struct {
	putCalls    int
	failPuts    int
	lastKey     string
	lastType    string
	lastData    []byte
	lastSize    int64
	lastWarning *storage.Warning
}

func (b *captureBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*storage.StoredObject, error) {
	b.putCalls++
	if b.putCalls <= b.failPuts {
		return nil, deperr.BackendUnavailable("uploading object", errors.New("connection reset"))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b.lastKey = key
	b.lastType = contentType
	b.lastData = data
	b.lastSize = size
	return &storage.StoredObject{
		URL:     "http://files.test/" + key,
		Key:     key,
		Size:    int64(len(data)),
		Warning: b.lastWarning,
	}, nil
}

func (b *captureBackend) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return nil, 0, deperr.NotFound(key)
}

func (b *captureBackend) HealthCheck(ctx context.Context) error { return nil }

var _ storage.Backend = (*captureBackend)(nil)

func newTestMerger(t *testing.T) (*Merger, *SessionStore, *captureBackend) {
	t.Helper()
	sessions := newTestSessions(t)
	backend := &captureBackend{}
	return NewMerger(sessions, backend), sessions, backend
}

func writeParts(t *testing.T, s *SessionStore, uploadID string, parts map[int]string) {
	t.Helper()
	for n, data := range parts {
		if _, err := s.WritePart(uploadID, n, strings.NewReader(data)); err != nil {
			t.Fatalf("WritePart %d failed: %v", n, err)
		}
	}
}

func TestMergeConcatenatesInPartOrder(t *testing.T) {
	m, sessions, backend := newTestMerger(t)

	// Parts arrive out of order; the merged bytes follow part numbers.
	writeParts(t, sessions, "u1", map[int]string{2: " wor", 3: "ld", 1: "hello"})

	obj, err := m.Merge(context.Background(), "u1", "greeting.txt", 3, "notes")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !bytes.Equal(backend.lastData, []byte("hello world")) {
		t.Errorf("merged bytes = %q, want %q", backend.lastData, "hello world")
	}
	if obj.Size != int64(len("hello world")) {
		t.Errorf("Size = %d, want %d", obj.Size, len("hello world"))
	}
	if backend.lastType != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", backend.lastType)
	}
}

func TestMergeKeyShape(t *testing.T) {
	m, sessions, backend := newTestMerger(t)
	writeParts(t, sessions, "upload-42", map[int]string{1: "x"})

	if _, err := m.Merge(context.Background(), "upload-42", "report.pdf", 1, "billing"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	date := time.Now().Format("20060102")
	want := fmt.Sprintf("billing/%s/upload-42.pdf", date)
	if backend.lastKey != want {
		t.Errorf("key = %q, want %q", backend.lastKey, want)
	}
}

func TestMergeMissingPartsRejected(t *testing.T) {
	m, sessions, _ := newTestMerger(t)
	writeParts(t, sessions, "u1", map[int]string{1: "a", 3: "c"})

	_, err := m.Merge(context.Background(), "u1", "f.txt", 3, "notes")
	if !deperr.IsMissingParts(err) {
		t.Fatalf("error = %v, want MissingParts", err)
	}

	var mp *deperr.MissingPartsError
	if !errors.As(err, &mp) {
		t.Fatal("error does not unwrap to MissingPartsError")
	}
	if !reflect.DeepEqual(mp.Missing, []int{2}) {
		t.Errorf("Missing = %v, want [2]", mp.Missing)
	}
	if mp.MissingCount != 1 {
		t.Errorf("MissingCount = %d, want 1", mp.MissingCount)
	}

	// Parts must survive a rejected merge.
	parts, _ := sessions.ListParts("u1")
	if !reflect.DeepEqual(parts, []int{1, 3}) {
		t.Errorf("parts after rejected merge = %v, want [1 3]", parts)
	}
}

func TestMergeMissingPartsSampleBounded(t *testing.T) {
	m, sessions, _ := newTestMerger(t)
	writeParts(t, sessions, "u1", map[int]string{1: "a"})

	_, err := m.Merge(context.Background(), "u1", "f.bin", 50, "bulk")
	var mp *deperr.MissingPartsError
	if !errors.As(err, &mp) {
		t.Fatalf("error = %v, want MissingPartsError", err)
	}
	if len(mp.Missing) != 10 {
		t.Errorf("sample size = %d, want 10", len(mp.Missing))
	}
	if mp.MissingCount != 49 {
		t.Errorf("MissingCount = %d, want 49", mp.MissingCount)
	}
	if mp.Missing[0] != 2 {
		t.Errorf("first missing = %d, want 2", mp.Missing[0])
	}
}

func TestMergeRetryAfterBackendFailure(t *testing.T) {
	m, sessions, backend := newTestMerger(t)
	backend.failPuts = 1
	writeParts(t, sessions, "u1", map[int]string{1: "ab", 2: "cd"})

	if _, err := m.Merge(context.Background(), "u1", "f.txt", 2, "notes"); err == nil {
		t.Fatal("first Merge should fail with the backend down")
	}

	// Parts stay on disk, so the same call succeeds once the backend is back.
	parts, _ := sessions.ListParts("u1")
	if !reflect.DeepEqual(parts, []int{1, 2}) {
		t.Fatalf("parts after failed merge = %v, want [1 2]", parts)
	}

	obj, err := m.Merge(context.Background(), "u1", "f.txt", 2, "notes")
	if err != nil {
		t.Fatalf("retry Merge failed: %v", err)
	}
	if !bytes.Equal(backend.lastData, []byte("abcd")) {
		t.Errorf("merged bytes = %q, want %q", backend.lastData, "abcd")
	}

	// Retrying with the same inputs reproduces the same key.
	firstKey := obj.Key
	writeParts(t, sessions, "u1", map[int]string{1: "ab", 2: "cd"})
	obj2, err := m.Merge(context.Background(), "u1", "f.txt", 2, "notes")
	if err != nil {
		t.Fatalf("second retry failed: %v", err)
	}
	if obj2.Key != firstKey {
		t.Errorf("retry key = %q, want stable %q", obj2.Key, firstKey)
	}
}

func TestMergeRemovesSessionOnSuccess(t *testing.T) {
	m, sessions, _ := newTestMerger(t)
	writeParts(t, sessions, "u1", map[int]string{1: "x"})

	if _, err := m.Merge(context.Background(), "u1", "f.txt", 1, "notes"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	dir, _ := sessions.SessionDir("u1")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("session directory should be removed after a committed merge")
	}
}

func TestMergeValidatesInput(t *testing.T) {
	m, sessions, _ := newTestMerger(t)
	writeParts(t, sessions, "u1", map[int]string{1: "x"})
	ctx := context.Background()

	cases := []struct {
		name       string
		filename   string
		totalParts int
		module     string
	}{
		{"empty filename", "", 1, "notes"},
		{"empty module", "f.txt", 1, ""},
		{"zero parts", "f.txt", 0, "notes"},
		{"negative parts", "f.txt", -3, "notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Merge(ctx, "u1", tc.filename, tc.totalParts, tc.module)
			if !deperr.IsInvalidInput(err) {
				t.Errorf("error = %v, want InvalidInput", err)
			}
		})
	}
}

func TestMergeScratchNotListedAsPart(t *testing.T) {
	m, sessions, backend := newTestMerger(t)
	backend.failPuts = 1
	writeParts(t, sessions, "u1", map[int]string{1: "x"})

	// A failed merge removes its scratch file; the session lists only parts.
	if _, err := m.Merge(context.Background(), "u1", "f.txt", 1, "notes"); err == nil {
		t.Fatal("Merge should fail")
	}

	dir, _ := sessions.SessionDir("u1")
	if _, err := os.Stat(filepath.Join(dir, mergeScratchName)); !os.IsNotExist(err) {
		t.Error("scratch file should be removed after a failed merge")
	}
	parts, _ := sessions.ListParts("u1")
	if !reflect.DeepEqual(parts, []int{1}) {
		t.Errorf("parts = %v, want [1]", parts)
	}
}
