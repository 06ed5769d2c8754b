package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/queue"
	"github.com/gurre/nfs-ingestd/session"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRunNoOpWhenProcessingEmpty(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{ProcessingRoot: filepath.Join(root, "processing")}
	q := queue.New(10, nil)
	sess := session.New()

	n, err := Run(cfg, q, sess, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 items, got %d", n)
	}
	if sess.Active() {
		t.Error("expected session to remain inactive when nothing to recover")
	}
}

func TestRunSkipsCompletedMarkers(t *testing.T) {
	root := t.TempDir()
	processingRoot := filepath.Join(root, "processing")
	writeFile(t, filepath.Join(processingRoot, "20260731", "sess1", "a.bin.completed"))

	cfg := &config.Config{ProcessingRoot: processingRoot}
	q := queue.New(10, nil)
	sess := session.New()

	n, err := Run(cfg, q, sess, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 items when only .completed markers exist, got %d", n)
	}
}

func TestRunEnqueuesUnfinishedFilesAndResumesLatestSession(t *testing.T) {
	root := t.TempDir()
	processingRoot := filepath.Join(root, "processing")
	writeFile(t, filepath.Join(processingRoot, "20260730", "sess-old", "a.bin"))
	writeFile(t, filepath.Join(processingRoot, "20260731", "sess-new", "b.bin"))
	writeFile(t, filepath.Join(processingRoot, "20260731", "sess-new", "c.bin.completed"))

	cfg := &config.Config{ProcessingRoot: processingRoot}
	q := queue.New(10, nil)
	sess := session.New()

	n, err := Run(cfg, q, sess, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 items re-enqueued, got %d", n)
	}

	if !sess.Active() {
		t.Fatal("expected session to be resumed as active")
	}
	name, date, ok := sess.Current()
	if !ok || name != "sess-new" || date != "20260731" {
		t.Errorf("Current() = (%q, %q, %v), want (sess-new, 20260731, true)", name, date, ok)
	}

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		item := <-q.Dequeue()
		seen[item.Filename] = true
		if !item.FromRecovery {
			t.Errorf("expected FromRecovery=true for %q", item.Filename)
		}
	}
	if !seen["a.bin"] || !seen["b.bin"] {
		t.Errorf("expected a.bin and b.bin to be enqueued, got %v", seen)
	}
}
