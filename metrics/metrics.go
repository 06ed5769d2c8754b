// Package metrics implements metrics collection and export as specified in
// section 4.9 of the design specification. It wraps the OpenTelemetry
// metrics API with the counters, histograms, and gauge the ingest pipeline
// emits, and keeps in-process success/failure counts alongside them.
package metrics

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTel instruments used across the ingest pipeline, plus
// in-memory success/failure counts readable via ProcessedOK and ProcessedErr.
// The control API's /v1/status endpoint does not read these; it reports the
// counters kept by session.State. ProcessedOK and ProcessedErr are never
// persisted; they reset on restart.
type Metrics struct {
	filesProcessed metric.Int64Counter
	filesFailed    metric.Int64Counter
	uploadDuration metric.Float64Histogram
	fileSize       metric.Int64Histogram
	queueDepth     metric.Int64ObservableGauge

	depth atomic.Int64

	processedOK  atomic.Int64
	processedErr atomic.Int64
}

// New creates the pipeline's metric instruments against the given Meter.
// Pass otel.Meter("nfs-ingestd") from the telemetry package's configured
// MeterProvider (a no-op meter when telemetry isn't configured, per the OTel
// API contract).
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.filesProcessed, err = meter.Int64Counter(
		"files.processed",
		metric.WithDescription("files successfully uploaded"),
	)
	if err != nil {
		return nil, err
	}

	m.filesFailed, err = meter.Int64Counter(
		"files.failed",
		metric.WithDescription("files that failed to upload"),
	)
	if err != nil {
		return nil, err
	}

	m.uploadDuration, err = meter.Float64Histogram(
		"upload.duration",
		metric.WithDescription("time to upload a staged file"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.fileSize, err = meter.Int64Histogram(
		"file.size",
		metric.WithDescription("size of uploaded files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.queueDepth, err = meter.Int64ObservableGauge(
		"queue.depth",
		metric.WithDescription("items enqueued but not yet finished by a worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.depth.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordUploadSuccess records a successful upload: increments files.processed,
// and observes upload.duration and file.size.
func (m *Metrics) RecordUploadSuccess(ctx context.Context, durationSeconds float64, sizeBytes int64) {
	m.filesProcessed.Add(ctx, 1)
	m.uploadDuration.Record(ctx, durationSeconds)
	m.fileSize.Record(ctx, sizeBytes)
	m.processedOK.Add(1)
}

// RecordUploadFailure records a failed upload: increments files.failed.
func (m *Metrics) RecordUploadFailure(ctx context.Context) {
	m.filesFailed.Add(ctx, 1)
	m.processedErr.Add(1)
}

// SetQueueDepth sets the current queue.depth gauge value. Called by the Queue
// whenever an item is enqueued or a worker finishes with one.
func (m *Metrics) SetQueueDepth(depth int64) {
	m.depth.Store(depth)
}

// ProcessedOK returns the in-process count of successful uploads since start.
func (m *Metrics) ProcessedOK() int64 {
	return m.processedOK.Load()
}

// ProcessedErr returns the in-process count of failed uploads since start.
func (m *Metrics) ProcessedErr() int64 {
	return m.processedErr.Load()
}
