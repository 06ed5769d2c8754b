// Package supervisor implements process lifecycle management as described
// in section 4.7 of the design specification: it runs the Azure auth
// bootstrap and Recovery scan synchronously, then starts the Watcher,
// Worker pool, Janitor, and Control API as goroutines under one
// context.Context, and on SIGINT/SIGTERM cancels that context and waits
// (bounded by ShutdownTimeout) for all of them to return. The goroutine
// fan-out and WaitGroup drain are grounded on the teacher's
// coordinator.Coordinator.Run; the always-open, multi-producer queue
// replaces the teacher's fixed worker-pool-over-a-closed-channel model
// (see DESIGN.md).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/gurre/nfs-ingestd/azureuploader"
	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/httpapi"
	"github.com/gurre/nfs-ingestd/janitor"
	"github.com/gurre/nfs-ingestd/metrics"
	"github.com/gurre/nfs-ingestd/queue"
	"github.com/gurre/nfs-ingestd/recovery"
	"github.com/gurre/nfs-ingestd/session"
	"github.com/gurre/nfs-ingestd/watcher"
	"github.com/gurre/nfs-ingestd/worker"
)

// ErrDifferentFilesystems is returned by Run when IncomingDir and
// ProcessingRoot do not resolve to the same filesystem, which would make
// the claim rename in worker.Pool non-atomic.
var ErrDifferentFilesystems = errors.New("incoming and processing roots must be on the same filesystem")

// Run wires and starts the full ingest pipeline, blocking until ctx is
// canceled or a SIGINT/SIGTERM is received, then drains every component
// within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := checkSameFilesystem(cfg.IncomingDir, cfg.ProcessingRoot); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meter := otel.Meter("nfs-ingestd")
	m, err := metrics.New(meter)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	uploader, err := azureuploader.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("azure auth bootstrap: %w", err)
	}
	defer func() {
		if err := uploader.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing azure uploader")
		}
	}()

	sess := session.New()
	q := queue.New(cfg.MaxQueueSize, m)

	if _, err := recovery.Run(cfg, q, sess, log); err != nil {
		return fmt.Errorf("recovery scan: %w", err)
	}

	httpSrv := httpapi.NewServer(cfg, sess, log)
	w := watcher.New(cfg, sess, q, log)
	pool := worker.NewPool(cfg, q, uploader, sess, m, log)
	gc := janitor.New(cfg, log)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); w.Run(ctx) }()
	go func() { defer wg.Done(); pool.Run(ctx) }()
	go func() { defer wg.Done(); gc.Run(ctx) }()
	go func() {
		defer wg.Done()
		if err := httpSrv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("control API server exited with error")
		}
	}()

	httpSrv.MarkReady()
	log.Info().Msg("supervisor: startup complete, serving")

	<-ctx.Done()
	log.Info().Msg("supervisor: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("control API shutdown error")
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.Info().Msg("supervisor: all components drained cleanly")
	case <-shutdownCtx.Done():
		log.Warn().Msg("supervisor: shutdown timeout exceeded, exiting with goroutines still draining")
	}

	return nil
}

// checkSameFilesystem validates that incomingDir and processingRoot resolve
// to the same device, per section 9's rename-atomicity assumption: the
// claim rename in worker.Pool.processItem crosses from one root to the
// other and POSIX rename is only atomic within a single filesystem. Missing
// directories are tolerated here (they are created by session.State.Start
// or already exist from a prior run); only an existing mismatch is fatal.
func checkSameFilesystem(incomingDir, processingRoot string) error {
	incomingDev, incomingOK, err := statDev(incomingDir)
	if err != nil {
		return fmt.Errorf("stat incoming root: %w", err)
	}
	processingDev, processingOK, err := statDev(processingRoot)
	if err != nil {
		return fmt.Errorf("stat processing root: %w", err)
	}
	if !incomingOK || !processingOK {
		return nil
	}
	if incomingDev != processingDev {
		return fmt.Errorf("%w: %s and %s", ErrDifferentFilesystems, incomingDir, processingRoot)
	}
	return nil
}
