// Package janitor implements the background reclaim loop described in
// section 4.6 of the design specification: it periodically deletes
// ".completed" markers (and their staging leftovers) and prunes empty
// directories under processing/. It is best-effort: a marker that cannot be
// deleted is logged at debug and skipped, and directory-pruning errors are
// ignored. An error while listing processing/ is logged at debug and ends
// that sweep; the next tick starts a new one.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
)

const completedSuffix = ".completed"

// Janitor periodically sweeps processing/ for committed markers and prunes
// empty directories.
type Janitor struct {
	cfg *config.Config
	log zerolog.Logger
}

// New creates a Janitor.
func New(cfg *config.Config, log zerolog.Logger) *Janitor {
	return &Janitor{cfg: cfg, log: log.With().Str("component", "janitor").Logger()}
}

// Run blocks, sweeping every cfg.GCInterval until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	completed, err := findCompleted(j.cfg.ProcessingRoot)
	if err != nil {
		j.log.Debug().Err(err).Msg("gc: sweep failed to list completed markers")
		return
	}

	for _, path := range completed {
		if err := os.Remove(path); err != nil {
			j.log.Debug().Err(err).Str("path", path).Msg("gc: could not delete completed marker")
			continue
		}
		j.removeStagingResidue(path)
	}

	pruneEmptyDirs(j.cfg.ProcessingRoot, j.log)
}

// removeStagingResidue deletes the staging copy of a file whose processing
// marker was just reclaimed, as a belt-and-suspenders safety net for workers
// that failed to clean up their own staging file.
func (j *Janitor) removeStagingResidue(completedPath string) {
	rel, err := filepath.Rel(j.cfg.ProcessingRoot, completedPath)
	if err != nil {
		return
	}
	originalName := strings.TrimSuffix(filepath.Base(rel), completedSuffix)
	stagingPath := filepath.Join(j.cfg.StagingRoot, filepath.Dir(rel), originalName)
	if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
		j.log.Debug().Err(err).Str("path", stagingPath).Msg("gc: could not delete staging residue")
	}
}

func findCompleted(root string) ([]string, error) {
	var completed []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), completedSuffix) {
			completed = append(completed, path)
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil, nil
	}
	return completed, err
}

// pruneEmptyDirs walks root bottom-up and removes directories (other than
// root itself) left empty after reclaim. Errors are ignored: a directory
// that gained a new file between the listing and the rmdir simply survives.
func pruneEmptyDirs(root string, log zerolog.Logger) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		pruneEmptyDirs(dir, log)
		remaining, err := os.ReadDir(dir)
		if err == nil && len(remaining) == 0 {
			_ = os.Remove(dir)
		}
	}
}
