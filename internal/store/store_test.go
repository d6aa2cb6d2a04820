package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/filedepot/filedepot/internal/chunks"
	deperr "github.com/filedepot/filedepot/internal/errors"
	"github.com/filedepot/filedepot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	backend, err := storage.NewLocalBackend(filepath.Join(root, "objects"), "/static/uploads")
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	sessions, err := chunks.NewSessionStore(filepath.Join(root, "chunks"))
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	return New(backend, sessions)
}

func TestSaveBytesAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	content := "facade round trip"
	obj, err := s.SaveBytes(ctx, []byte(content), "notes.txt", "docs", "")
	if err != nil {
		t.Fatalf("SaveBytes failed: %v", err)
	}

	date := time.Now().Format("20060102")
	keyShape := regexp.MustCompile(fmt.Sprintf(`^file/docs/%s/[0-9a-f]{32}\.txt$`, date))
	if !keyShape.MatchString(obj.Key) {
		t.Errorf("Key = %q, want match for %v", obj.Key, keyShape)
	}
	if obj.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", obj.Size, len(content))
	}

	r, size, err := s.OpenReadStream(ctx, obj.Key)
	if err != nil {
		t.Fatalf("OpenReadStream failed: %v", err)
	}
	defer r.Close()
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	data, _ := io.ReadAll(r)
	if string(data) != content {
		t.Errorf("read back %q, want %q", string(data), content)
	}
}

func TestSaveBytesUniqueKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		obj, err := s.SaveBytes(ctx, []byte("same content"), "same.txt", "docs", "")
		if err != nil {
			t.Fatalf("SaveBytes failed: %v", err)
		}
		if seen[obj.Key] {
			t.Fatalf("key %q generated twice", obj.Key)
		}
		seen[obj.Key] = true
	}
}

func TestSaveBytesDefaultModule(t *testing.T) {
	s := newTestStore(t)

	obj, err := s.SaveBytes(context.Background(), []byte("x"), "pic.png", "", "")
	if err != nil {
		t.Fatalf("SaveBytes failed: %v", err)
	}
	if !strings.HasPrefix(obj.Key, "image/common/") {
		t.Errorf("Key = %q, want image/common/ prefix", obj.Key)
	}
}

func TestSaveBytesEmptyFilename(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveBytes(context.Background(), []byte("x"), "", "docs", "")
	if !deperr.IsInvalidInput(err) {
		t.Errorf("error = %v, want InvalidInput", err)
	}
}

func TestChunkedUploadLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for n, data := range map[int]string{1: "chunk-a ", 2: "chunk-b ", 3: "chunk-c"} {
		if _, err := s.SaveChunk("u1", n, strings.NewReader(data)); err != nil {
			t.Fatalf("SaveChunk %d failed: %v", n, err)
		}
	}

	parts, err := s.ListUploadedParts("u1")
	if err != nil {
		t.Fatalf("ListUploadedParts failed: %v", err)
	}
	if !reflect.DeepEqual(parts, []int{1, 2, 3}) {
		t.Errorf("parts = %v, want [1 2 3]", parts)
	}

	obj, err := s.CompleteUpload(ctx, "u1", "merged.txt", 3, "docs")
	if err != nil {
		t.Fatalf("CompleteUpload failed: %v", err)
	}

	r, _, err := s.OpenReadStream(ctx, obj.Key)
	if err != nil {
		t.Fatalf("OpenReadStream failed: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "chunk-a chunk-b chunk-c" {
		t.Errorf("merged content = %q", string(data))
	}

	// Session is gone after the merge commits.
	parts, err = s.ListUploadedParts("u1")
	if err != nil || len(parts) != 0 {
		t.Errorf("parts after merge = %v err=%v, want none", parts, err)
	}
}

func TestCompleteUploadMissingParts(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveChunk("u1", 1, strings.NewReader("x")); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	_, err := s.CompleteUpload(context.Background(), "u1", "f.txt", 2, "docs")
	if !deperr.IsMissingParts(err) {
		t.Errorf("error = %v, want MissingParts", err)
	}
}

func TestOpenReadStreamNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.OpenReadStream(context.Background(), "docs/20200101/nope.txt")
	if !deperr.IsNotFound(err) {
		t.Errorf("error = %v, want NotFound", err)
	}
}

func TestOpenReadStreamEmptyKey(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.OpenReadStream(context.Background(), "")
	if !deperr.IsInvalidInput(err) {
		t.Errorf("error = %v, want InvalidInput", err)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"docs/20260829/a.json": "application/json",
		"weird/20260829/blob":  "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Errorf("ContentTypeForKey(%q) = %q, want %q", key, got, want)
		}
	}
}
