package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	deperr "github.com/filedepot/filedepot/internal/errors"
)

func newTestLocal(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir(), "/static/uploads")
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	return backend
}

func TestLocalPutAndOpen(t *testing.T) {
	backend := newTestLocal(t)
	ctx := context.Background()

	content := "Hello, filedepot!"
	obj, err := backend.Put(ctx, "file/common/20260829/abc.txt", strings.NewReader(content), int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if obj.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", obj.Size, len(content))
	}
	if obj.URL != "/static/uploads/file/common/20260829/abc.txt" {
		t.Errorf("URL = %q", obj.URL)
	}
	if obj.Key != "file/common/20260829/abc.txt" {
		t.Errorf("Key = %q", obj.Key)
	}

	r, size, err := backend.Open(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if size != int64(len(content)) {
		t.Errorf("Open size = %d, want %d", size, len(content))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("data = %q, want %q", string(data), content)
	}
}

func TestLocalPutLeavesNoTempFiles(t *testing.T) {
	backend := newTestLocal(t)
	ctx := context.Background()

	_, err := backend.Put(ctx, "a/b/c.txt", strings.NewReader("atomic"), 6, "text/plain")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(backend.RootDir, ".tmp"))
	if err != nil {
		t.Fatalf("ReadDir .tmp failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf(".tmp should be empty after Put, has %d entries", len(entries))
	}
}

func TestLocalOpenNotFound(t *testing.T) {
	backend := newTestLocal(t)

	_, _, err := backend.Open(context.Background(), "common/20260829/missing.png")
	if err == nil {
		t.Fatal("Open should fail for missing key")
	}
	if !deperr.IsNotFound(err) {
		t.Errorf("error should be NotFound, got: %v", err)
	}
}

func TestLocalRejectsTraversalKey(t *testing.T) {
	backend := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"../escape.txt", "a/../../escape.txt", "/abs.txt", ""} {
		if _, err := backend.Put(ctx, key, strings.NewReader("x"), 1, ""); !deperr.IsInvalidInput(err) {
			t.Errorf("Put(%q) should reject with InvalidInput, got: %v", key, err)
		}
		if _, _, err := backend.Open(ctx, key); !deperr.IsInvalidInput(err) {
			t.Errorf("Open(%q) should reject with InvalidInput, got: %v", key, err)
		}
	}
}

func TestLocalCleanTempFiles(t *testing.T) {
	backend := newTestLocal(t)

	tmpDir := filepath.Join(backend.RootDir, ".tmp")
	for _, name := range []string{"put-abc", "put-def"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("orphan"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	if err := backend.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles failed: %v", err)
	}

	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Errorf("expected 0 temp files after cleanup, got %d", len(entries))
	}
}

func TestLocalPutEmptyObject(t *testing.T) {
	backend := newTestLocal(t)
	ctx := context.Background()

	obj, err := backend.Put(ctx, "file/common/20260829/empty.bin", strings.NewReader(""), 0, "")
	if err != nil {
		t.Fatalf("Put (empty) failed: %v", err)
	}
	if obj.Size != 0 {
		t.Errorf("Size = %d, want 0", obj.Size)
	}

	r, size, err := backend.Open(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Open (empty) failed: %v", err)
	}
	defer r.Close()
	if size != 0 {
		t.Errorf("size = %d, want 0", size)
	}
}

func TestLocalHealthCheck(t *testing.T) {
	backend := newTestLocal(t)
	if err := backend.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}

	os.RemoveAll(backend.RootDir)
	if err := backend.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail after root removal")
	}
}
