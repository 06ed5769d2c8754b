package supervisor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSameFilesystemSameRoot(t *testing.T) {
	root := t.TempDir()
	incoming := filepath.Join(root, "incoming")
	processing := filepath.Join(root, "processing")
	for _, dir := range []string{incoming, processing} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}

	if err := checkSameFilesystem(incoming, processing); err != nil {
		t.Fatalf("checkSameFilesystem() = %v, want nil for two dirs under the same tmp root", err)
	}
}

func TestCheckSameFilesystemMissingDirsTolerated(t *testing.T) {
	root := t.TempDir()
	incoming := filepath.Join(root, "does-not-exist-yet", "incoming")
	processing := filepath.Join(root, "also-missing", "processing")

	if err := checkSameFilesystem(incoming, processing); err != nil {
		t.Fatalf("checkSameFilesystem() = %v, want nil when neither root exists yet", err)
	}
}
