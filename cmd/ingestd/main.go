// Command ingestd is the binary entrypoint for the NFS-to-blob ingest
// pipeline. It loads configuration, wires structured logging and OTel
// telemetry, and hands off to supervisor.Run for the rest of the process
// lifetime, following the teacher's cmd/ddb-pitr/main.go shape: parse,
// validate, construct dependencies, run, translate a failure into a
// non-zero exit.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gurre/nfs-ingestd/config"
	"github.com/gurre/nfs-ingestd/supervisor"
	"github.com/gurre/nfs-ingestd/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := telemetry.NewLogger("ingestd")

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, log)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error shutting down telemetry providers")
		}
	}()

	log.Info().
		Str("incoming_dir", cfg.IncomingDir).
		Str("processing_root", cfg.ProcessingRoot).
		Str("staging_root", cfg.StagingRoot).
		Int("worker_concurrency", cfg.WorkerConcurrency).
		Str("http_addr", cfg.HTTPAddr).
		Msg("ingestd starting")

	return supervisor.Run(ctx, cfg, log)
}
