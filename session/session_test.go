package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStartCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	incoming := filepath.Join(root, "incoming")
	processing := filepath.Join(root, "processing")
	staging := filepath.Join(root, "staging")

	s := New()
	date, name, err := s.Start(incoming, processing, staging, "my-session")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if name != "my-session" {
		t.Errorf("session name = %q, want my-session", name)
	}
	wantDate := time.Now().UTC().Format("20060102")
	if date != wantDate {
		t.Errorf("date prefix = %q, want %q", date, wantDate)
	}

	for _, dir := range []string{
		filepath.Join(incoming, "my-session"),
		filepath.Join(processing, date, "my-session"),
		filepath.Join(staging, date, "my-session"),
	} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}

	if !s.Active() {
		t.Error("expected session to be active after Start")
	}
}

func TestStartAutoGeneratesName(t *testing.T) {
	root := t.TempDir()
	s := New()
	_, name, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if name == "" {
		t.Fatal("expected auto-generated name")
	}
	if name[:11] != "00-session-" {
		t.Errorf("expected auto name to start with 00-session-, got %q", name)
	}
}

func TestStartRejectsInvalidName(t *testing.T) {
	root := t.TempDir()
	s := New()
	_, _, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "bad name!")
	if !errors.Is(err, ErrInvalidSessionName) {
		t.Errorf("expected ErrInvalidSessionName, got %v", err)
	}
}

func TestStartRejectsWhenAlreadyActive(t *testing.T) {
	root := t.TempDir()
	s := New()
	if _, _, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "first"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "second")
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestStopPreservesNames(t *testing.T) {
	root := t.TempDir()
	s := New()
	date, name, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "my-session")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	if s.Active() {
		t.Error("expected session to be inactive after Stop")
	}
	gotName, gotDate, ok := s.Current()
	if !ok || gotName != name || gotDate != date {
		t.Errorf("Current() = (%q, %q, %v), want (%q, %q, true)", gotName, gotDate, ok, name, date)
	}
}

func TestCountersAndLastError(t *testing.T) {
	s := New()
	s.RecordSuccess()
	s.RecordSuccess()
	s.RecordFailure("bad.bin", errors.New("upload failed"))

	snap := s.Snapshot()
	if snap.ProcessedOK != 2 {
		t.Errorf("ProcessedOK = %d, want 2", snap.ProcessedOK)
	}
	if snap.ProcessedErr != 1 {
		t.Errorf("ProcessedErr = %d, want 1", snap.ProcessedErr)
	}
	if snap.LastError != "bad.bin: upload failed" {
		t.Errorf("LastError = %q", snap.LastError)
	}
}

func TestCountersSurviveStop(t *testing.T) {
	root := t.TempDir()
	s := New()
	if _, _, err := s.Start(filepath.Join(root, "i"), filepath.Join(root, "p"), filepath.Join(root, "s"), "sess"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.RecordSuccess()
	s.Stop()
	if s.Snapshot().ProcessedOK != 1 {
		t.Error("expected counters to survive Stop")
	}
}

func TestGenerateNameIsUnique(t *testing.T) {
	a := GenerateName()
	b := GenerateName()
	if a == b {
		t.Error("expected distinct generated names")
	}
}
