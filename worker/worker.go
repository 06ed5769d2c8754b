// Package worker implements the per-file claim/stage/upload/commit pipeline
// described in section 4.3 of the design specification. A fixed pool of
// goroutines pulls WorkItems from the shared Queue and drives each through
// the pipeline independently; filesystem and network calls block the
// calling goroutine directly, which the Go runtime schedules without
// blocking the rest of the process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/azureuploader"
	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/metrics"
	"github.com/gurre/nfs-ingestd/queue"
	"github.com/gurre/nfs-ingestd/session"
)

// Status tracks one worker goroutine's progress and last error for
// monitoring. Fields are ordered largest-to-smallest for memory alignment.
type Status struct {
	LastErrorTime time.Time
	StartTime     time.Time
	LastActive    time.Time
	LastError     error
	CurrentFile   string
	ItemsWritten  int64
	ID            int
}

// Pool is the fixed-size worker pool draining the shared Queue.
type Pool struct {
	cfg      *config.Config
	q        *queue.Queue
	uploader azureuploader.BlobUploader
	sess     *session.State
	metrics  *metrics.Metrics
	log      zerolog.Logger

	statusMu sync.RWMutex
	status   map[int]*Status
}

// NewPool constructs a worker Pool. Run starts the configured number of
// goroutines.
func NewPool(cfg *config.Config, q *queue.Queue, uploader azureuploader.BlobUploader, sess *session.State, m *metrics.Metrics, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		q:        q,
		uploader: uploader,
		sess:     sess,
		metrics:  m,
		log:      log.With().Str("component", "worker").Logger(),
		status:   make(map[int]*Status),
	}
}

// Run starts cfg.WorkerConcurrency goroutines and blocks until ctx is
// canceled and all of them have drained. Workers do not check whether the
// session is active; they drain whatever is in the queue, even after the
// session has been stopped.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerConcurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.initStatus(id)
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) initStatus(id int) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status[id] = &Status{ID: id, StartTime: time.Now()}
}

func (p *Pool) updateStatus(id int, fn func(*Status)) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if s, ok := p.status[id]; ok {
		fn(s)
		s.LastActive = time.Now()
	}
}

// Statuses returns a snapshot of all worker statuses, keyed by worker ID.
func (p *Pool) Statuses() map[int]Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	out := make(map[int]Status, len(p.status))
	for id, s := range p.status {
		out[id] = *s
	}
	return out
}

func (p *Pool) loop(ctx context.Context, id int) {
	items := p.q.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			p.updateStatus(id, func(s *Status) { s.CurrentFile = item.Filename })
			p.process(ctx, id, item)
			p.q.Complete()
		}
	}
}

func (p *Pool) process(ctx context.Context, id int, item queue.WorkItem) {
	if err := p.processItem(ctx, item); err != nil {
		if errors.Is(err, errAlreadyClaimed) {
			p.log.Debug().Str("file", item.Filename).Msg("file already claimed")
			return
		}
		p.sess.RecordFailure(item.Filename, err)
		p.metrics.RecordUploadFailure(ctx)
		p.updateStatus(id, func(s *Status) {
			s.LastError = err
			s.LastErrorTime = time.Now()
		})
		p.log.Error().Err(err).Str("file", item.Filename).Str("session", item.SessionName).Msg("failed to process file")
		return
	}

	p.sess.RecordSuccess()
	p.updateStatus(id, func(s *Status) { s.ItemsWritten++ })
}

var errAlreadyClaimed = errors.New("file already claimed")

// processItem executes the per-file pipeline: claim, stage, upload, commit,
// cleanup.
func (p *Pool) processItem(ctx context.Context, item queue.WorkItem) error {
	processingDir := filepath.Join(p.cfg.ProcessingRoot, item.DatePrefix, item.SessionName)
	processingPath := filepath.Join(processingDir, item.Filename)
	stagingDir := filepath.Join(p.cfg.StagingRoot, item.DatePrefix, item.SessionName)
	stagingPath := filepath.Join(stagingDir, item.Filename)
	blobName := fmt.Sprintf("%s/%s/%s", item.DatePrefix, item.SessionName, item.Filename)

	// 1. Claim.
	if !item.FromRecovery {
		if err := os.MkdirAll(processingDir, 0o755); err != nil {
			return fmt.Errorf("creating processing directory: %w", err)
		}
		if err := os.Rename(item.SourcePath, processingPath); err != nil {
			if isAlreadyClaimed(err) {
				return errAlreadyClaimed
			}
			return fmt.Errorf("claiming %s: %w", item.Filename, err)
		}
	}

	// 2. Stage.
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	if err := copyWithFsync(processingPath, stagingPath); err != nil {
		return fmt.Errorf("staging %s: %w", item.Filename, err)
	}

	// 3. Upload.
	info, err := os.Stat(stagingPath)
	if err != nil {
		return fmt.Errorf("statting staged file: %w", err)
	}
	start := time.Now()
	if err := p.uploader.Upload(ctx, stagingPath, blobName); err != nil {
		return fmt.Errorf("uploading %s: %w", blobName, err)
	}
	duration := time.Since(start)
	p.metrics.RecordUploadSuccess(ctx, duration.Seconds(), info.Size())
	p.log.Info().
		Str("file_name", item.Filename).
		Str("session_name", item.SessionName).
		Str("date_prefix", item.DatePrefix).
		Str("blob_name", blobName).
		Int64("size_bytes", info.Size()).
		Float64("duration_s", duration.Seconds()).
		Msg("upload complete")

	// 4. Commit.
	completedPath := processingPath + ".completed"
	if err := os.Rename(processingPath, completedPath); err != nil {
		return fmt.Errorf("committing %s: %w", item.Filename, err)
	}

	// 5. Cleanup.
	if err := os.Remove(stagingPath); err != nil {
		p.log.Warn().Err(err).Str("file", stagingPath).Msg("could not delete staging file")
	}

	return nil
}

func isAlreadyClaimed(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESTALE)
}

// copyWithFsync copies src to dst, then fsyncs the destination so the
// staged copy survives a crash before upload completes.
func copyWithFsync(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
