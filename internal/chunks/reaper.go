package chunks

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/filedepot/filedepot/internal/metrics"
)

// SweepExpired removes session directories whose newest entry is older than
// ttl. A caller that stops sending parts leaves an in-flight session on disk
// forever otherwise; the last-part modification time is the liveness signal.
// Returns the number of sessions removed.
func (s *SessionStore) SweepExpired(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.Dir, e.Name())
		if newestModTime(dir).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("removing expired session failed", "upload_id", e.Name(), "error", err)
			continue
		}
		removed++
		slog.Info("reaped abandoned upload session", "upload_id", e.Name())
	}
	return removed, nil
}

// newestModTime returns the most recent modification time among the session
// directory and its entries. Falls back to the directory's own mtime.
func newestModTime(dir string) time.Time {
	newest := time.Time{}
	if info, err := os.Stat(dir); err == nil {
		newest = info.ModTime()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return newest
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest
}

// Reaper periodically sweeps abandoned upload sessions.
type Reaper struct {
	Sessions *SessionStore
	// TTL is how long a session may sit idle before removal.
	TTL time.Duration
	// Interval is the sweep period.
	Interval time.Duration
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.sweep()

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	removed, err := r.Sessions.SweepExpired(r.TTL)
	if err != nil {
		slog.Warn("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		metrics.SessionsReaped.Add(float64(removed))
		slog.Info("session sweep complete", "removed", removed)
	}
}
