package chunks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ageSession backdates a session directory and everything in it.
func ageSession(t *testing.T, s *SessionStore, uploadID string, age time.Duration) {
	t.Helper()
	dir, err := s.SessionDir(uploadID)
	if err != nil {
		t.Fatalf("SessionDir failed: %v", err)
	}
	old := time.Now().Add(-age)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if err := os.Chtimes(filepath.Join(dir, e.Name()), old, old); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
}

func TestSweepExpiredRemovesStaleSessions(t *testing.T) {
	s := newTestSessions(t)

	if _, err := s.WritePart("stale", 1, strings.NewReader("x")); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}
	if _, err := s.WritePart("fresh", 1, strings.NewReader("x")); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}
	ageSession(t, s, "stale", 48*time.Hour)

	removed, err := s.SweepExpired(24 * time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	staleDir, _ := s.SessionDir("stale")
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Error("stale session should be removed")
	}
	parts, err := s.ListParts("fresh")
	if err != nil || len(parts) != 1 {
		t.Errorf("fresh session should survive: parts=%v err=%v", parts, err)
	}
}

func TestSweepExpiredKeepsRecentlyActiveSession(t *testing.T) {
	s := newTestSessions(t)

	// The session started long ago but received a part recently; the newest
	// entry is the liveness signal, so it must survive.
	if _, err := s.WritePart("slow", 1, strings.NewReader("x")); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}
	ageSession(t, s, "slow", 48*time.Hour)
	if _, err := s.WritePart("slow", 2, strings.NewReader("y")); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}

	removed, err := s.SweepExpired(24 * time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestSweepExpiredEmptyStore(t *testing.T) {
	s := newTestSessions(t)

	removed, err := s.SweepExpired(time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestSweepExpiredMissingBaseDir(t *testing.T) {
	s := &SessionStore{Dir: filepath.Join(t.TempDir(), "never-created")}

	removed, err := s.SweepExpired(time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired on missing base dir should not error: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
