// Package recovery implements the startup scan described in section 4.5 of
// the design specification: it walks processing/ once, synchronously,
// before the Watcher and Worker pool start, re-enqueues every unfinished
// file, and auto-resumes the most recent session found.
package recovery

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/queue"
	"github.com/gurre/nfs-ingestd/session"
)

// Run walks cfg.ProcessingRoot for files that are not yet marked
// ".completed", enqueues a WorkItem with FromRecovery=true for each, and, if
// any were found, resumes the lexicographically greatest (datePrefix,
// sessionName) pair as the active session. It returns the number of items
// re-enqueued.
func Run(cfg *config.Config, q *queue.Queue, sess *session.State, log zerolog.Logger) (int, error) {
	items, err := scanProcessing(cfg.ProcessingRoot)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DatePrefix != items[j].DatePrefix {
			return items[i].DatePrefix < items[j].DatePrefix
		}
		return items[i].SessionName < items[j].SessionName
	})
	last := items[len(items)-1]
	sess.Resume(last.SessionName, last.DatePrefix)

	for _, item := range items {
		q.Enqueue(item)
	}

	log.Info().
		Int("count", len(items)).
		Str("date_prefix", last.DatePrefix).
		Str("session_name", last.SessionName).
		Msg("recovery: re-enqueued files, resuming session")

	return len(items), nil
}

func scanProcessing(root string) ([]queue.WorkItem, error) {
	var items []queue.WorkItem

	dateDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, dateDir := range dateDirs {
		if !dateDir.IsDir() {
			continue
		}
		datePrefix := dateDir.Name()
		sessionDirsPath := filepath.Join(root, datePrefix)
		sessionDirs, err := os.ReadDir(sessionDirsPath)
		if err != nil {
			return nil, err
		}

		for _, sessionDir := range sessionDirs {
			if !sessionDir.IsDir() {
				continue
			}
			sessionName := sessionDir.Name()
			sessionPath := filepath.Join(sessionDirsPath, sessionName)
			entries, err := os.ReadDir(sessionPath)
			if err != nil {
				return nil, err
			}

			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				name := entry.Name()
				if hasCompletedSuffix(name) {
					continue
				}
				items = append(items, queue.WorkItem{
					SourcePath:   filepath.Join(sessionPath, name),
					SessionName:  sessionName,
					DatePrefix:   datePrefix,
					Filename:     name,
					FromRecovery: true,
				})
			}
		}
	}

	return items, nil
}

func hasCompletedSuffix(name string) bool {
	const suffix = ".completed"
	if len(name) < len(suffix) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}
