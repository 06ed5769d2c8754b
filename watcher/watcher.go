// Package watcher implements the NFS polling stability detector described
// in section 4.2 of the design specification: it scans the active session's
// incoming directory once per poll interval and enqueues files whose size
// and modification time have been unchanged for at least one interval and
// whose age exceeds MinFileAge.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/queue"
	"github.com/gurre/nfs-ingestd/session"
)

const (
	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

// scanEntry records the size and mtime observed for one filename during a
// single scan cycle.
type scanEntry struct {
	size  int64
	mtime time.Time
}

type scanMap map[string]scanEntry

// Watcher polls the incoming directory of the active session and enqueues
// WorkItems for files that have become stable.
type Watcher struct {
	cfg     *config.Config
	session *session.State
	queue   *queue.Queue
	log     zerolog.Logger

	previous scanMap
	pending  map[string]struct{}
	backoff  time.Duration
}

// New creates a Watcher. Run must be called to start polling.
func New(cfg *config.Config, sess *session.State, q *queue.Queue, log zerolog.Logger) *Watcher {
	return &Watcher{
		cfg:      cfg,
		session:  sess,
		queue:    q,
		log:      log.With().Str("component", "watcher").Logger(),
		previous: scanMap{},
		pending:  map[string]struct{}{},
	}
}

// Run blocks, polling until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.cycle(ctx)
			timer.Reset(w.cfg.PollInterval + w.backoff)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	if !w.session.Active() {
		w.previous = scanMap{}
		w.pending = map[string]struct{}{}
		return
	}

	sessionName, _, _ := w.session.Current()
	incomingDir := filepath.Join(w.cfg.IncomingDir, sessionName)

	current, err := scanDirectory(incomingDir, w.cfg)
	if err != nil {
		if isTransient(err) {
			w.log.Warn().Err(err).Str("dir", incomingDir).Msg("transient scan error, skipping cycle")
			return
		}
		w.log.Error().Err(err).Str("dir", incomingDir).Msg("scan error")
		if w.backoff == 0 {
			w.backoff = minBackoff
		} else {
			w.backoff *= 2
			if w.backoff > maxBackoff {
				w.backoff = maxBackoff
			}
		}
		return
	}
	w.backoff = 0

	w.pending = intersect(w.pending, current)

	now := time.Now()
	_, datePrefix, _ := w.session.Current()
	for filename, entry := range current {
		if _, stillPending := w.pending[filename]; stillPending {
			continue
		}
		prev, seenBefore := w.previous[filename]
		if !seenBefore {
			continue
		}
		if entry.size != prev.size || !entry.mtime.Equal(prev.mtime) {
			continue
		}
		if now.Sub(entry.mtime) < w.cfg.MinFileAge {
			continue
		}

		item := queue.WorkItem{
			SourcePath:   filepath.Join(incomingDir, filename),
			SessionName:  sessionName,
			DatePrefix:   datePrefix,
			Filename:     filename,
			FromRecovery: false,
		}
		w.queue.Enqueue(item)
		w.pending[filename] = struct{}{}
	}

	w.previous = current
}

// intersect keeps only the pending entries whose filename is still present
// in the current scan. Filenames disappear from a scan once a Worker has
// renamed them out of incoming/, so this is how pending forgets claimed
// files; it is a genuine set intersection, not a no-op.
func intersect(pending map[string]struct{}, current scanMap) map[string]struct{} {
	next := make(map[string]struct{}, len(pending))
	for name := range pending {
		if _, ok := current[name]; ok {
			next[name] = struct{}{}
		}
	}
	return next
}

func scanDirectory(dir string, cfg *config.Config) (scanMap, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make(scanMap, len(entries))
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 || entry.IsDir() {
			continue
		}
		if !cfg.MatchesExtension(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if isTransient(err) {
				continue
			}
			return nil, err
		}
		result[entry.Name()] = scanEntry{size: info.Size(), mtime: info.ModTime()}
	}
	return result, nil
}

func isTransient(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if errors.Is(err, syscall.ESTALE) {
		return true
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		if strings.Contains(perr.Err.Error(), "stale") {
			return true
		}
	}
	return false
}
