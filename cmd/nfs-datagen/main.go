// Command nfs-datagen is the companion test-data generator: it writes
// random-content files into incoming/<session>/ at a configurable rate,
// simulating the upstream NFS producer this system ingests from. It
// supports two write patterns — single burst (write-once, matching a
// device that flushes a complete file) and trickle (repeated appends,
// matching a device streaming a file over time) — so the stability
// detector in package watcher can be exercised against both. Adapted from
// original_source/test-nfs/main.py's GenerateStartRequest parameters,
// restated as a flag-based CLI in the style of the teacher's
// cmd/ddb-datagen/main.go.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

// pattern selects how nfs-datagen writes each file.
type pattern string

const (
	patternBurst   pattern = "burst"
	patternTrickle pattern = "trickle"
)

type genConfig struct {
	incomingDir   string
	sessionName   string
	intervalS     float64
	fileSizeBytes int64
	fileCount     int
	patternName   string
	trickleChunks int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := genConfig{}

	pflag.StringVar(&cfg.incomingDir, "incoming-dir", "/mnt/nfs/incoming", "root of the NFS incoming tree")
	pflag.StringVar(&cfg.sessionName, "session", "", "session name (subdirectory of incoming-dir); required")
	pflag.Float64Var(&cfg.intervalS, "interval", 2.0, "seconds between files; in trickle mode also between chunks")
	pflag.Int64Var(&cfg.fileSizeBytes, "file-size", 65536, "size in bytes of each generated file")
	pflag.IntVar(&cfg.fileCount, "count", 10, "number of files to generate (0 = unlimited)")
	pflag.StringVar(&cfg.patternName, "pattern", string(patternBurst), "write pattern: burst | trickle")
	pflag.IntVar(&cfg.trickleChunks, "trickle-chunks", 5, "number of appends per file in trickle mode")
	pflag.Parse()

	if cfg.sessionName == "" {
		return fmt.Errorf("--session is required")
	}
	p := pattern(cfg.patternName)
	if p != patternBurst && p != patternTrickle {
		return fmt.Errorf("--pattern must be %q or %q, got %q", patternBurst, patternTrickle, cfg.patternName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionDir := filepath.Join(cfg.incomingDir, cfg.sessionName)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	interval := time.Duration(cfg.intervalS * float64(time.Second))

	generated := 0
	for cfg.fileCount == 0 || generated < cfg.fileCount {
		filename := fmt.Sprintf("file-%04d-%08x.bin", generated, r.Uint32())
		path := filepath.Join(sessionDir, filename)

		var err error
		switch p {
		case patternBurst:
			err = writeBurst(path, cfg.fileSizeBytes, r)
		case patternTrickle:
			err = writeTrickle(ctx, path, cfg.fileSizeBytes, cfg.trickleChunks, interval, r)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}

		generated++
		fmt.Printf("wrote %s (%d bytes) [%d/%s]\n", filename, cfg.fileSizeBytes, generated, countLabel(cfg.fileCount))

		select {
		case <-ctx.Done():
			fmt.Printf("generation stopped: %d files written\n", generated)
			return nil
		case <-time.After(interval):
		}
	}

	fmt.Printf("generation complete: %d files\n", generated)
	return nil
}

func countLabel(count int) string {
	if count == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", count)
}

// writeBurst writes the entire file in one shot, simulating a device that
// flushes a complete file atomically.
func writeBurst(path string, size int64, r *rand.Rand) error {
	data := make([]byte, size)
	r.Read(data)
	return os.WriteFile(path, data, 0o644)
}

// writeTrickle appends chunks to the file over time, simulating a device
// that streams a file incrementally. The stability detector must not emit a
// WorkItem until the final chunk has settled for MinFileAge.
func writeTrickle(ctx context.Context, path string, totalSize int64, chunks int, interval time.Duration, r *rand.Rand) error {
	if chunks < 1 {
		chunks = 1
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	chunkSize := totalSize / int64(chunks)
	remaining := totalSize
	for i := 0; i < chunks; i++ {
		n := chunkSize
		if i == chunks-1 {
			n = remaining
		}
		buf := make([]byte, n)
		r.Read(buf)
		if _, err := f.Write(buf); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
		remaining -= n

		if i < chunks-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	}
	return nil
}
