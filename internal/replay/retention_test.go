package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"portalsim/engine/internal/logging"
)

func makeSession(t *testing.T, root, name string, modTime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(manifest, []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.Chtimes(manifest, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return dir
}

func TestPruneKeepsNewestSessions(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	oldest := makeSession(t, root, "a", now.Add(-3*time.Hour))
	middle := makeSession(t, root, "b", now.Add(-2*time.Hour))
	newest := makeSession(t, root, "c", now.Add(-time.Hour))
	stray := filepath.Join(root, "not-a-session")
	if err := os.MkdirAll(stray, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	stats, err := Prune(root, RetentionPolicy{MaxSessions: 2}, now, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if stats.Sessions != 2 || stats.Removed != 1 || stats.Bytes <= 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, dir := range []string{middle, newest, stray} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected %s to survive: %v", dir, err)
		}
	}
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed", oldest)
	}
}

func TestPruneByAge(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	stale := makeSession(t, root, "stale", now.Add(-48*time.Hour))
	fresh := makeSession(t, root, "fresh", now.Add(-time.Minute))

	stats, err := Prune(root, RetentionPolicy{MaxAge: 24 * time.Hour}, now, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if stats.Sessions != 1 || stats.Removed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh session removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale session survived")
	}

	if _, err := Prune("", RetentionPolicy{}, now, nil); err == nil {
		t.Fatal("expected empty root to be rejected")
	}
}
