package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsHappyPath(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter("nfs-ingestd-test")

	m, err := New(meter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	m.RecordUploadSuccess(ctx, 0.25, 1024)
	m.RecordUploadSuccess(ctx, 0.50, 2048)
	m.RecordUploadFailure(ctx)
	m.SetQueueDepth(3)

	if got := m.ProcessedOK(); got != 2 {
		t.Errorf("ProcessedOK() = %d, want 2", got)
	}
	if got := m.ProcessedErr(); got != 1 {
		t.Errorf("ProcessedErr() = %d, want 1", got)
	}

	var rm sdkmetric.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, d := range sm.Metrics {
			names[d.Name] = true
		}
	}
	for _, want := range []string{"files.processed", "files.failed", "upload.duration", "file.size", "queue.depth"} {
		if !names[want] {
			t.Errorf("expected instrument %q to be collected, got %v", want, names)
		}
	}
}

func TestSetQueueDepthUpdatesGauge(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter("nfs-ingestd-test")

	m, err := New(meter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.SetQueueDepth(7)

	var rm sdkmetric.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, d := range sm.Metrics {
			if d.Name != "queue.depth" {
				continue
			}
			gauge, ok := d.Data.(sdkmetric.Gauge[int64])
			if !ok || len(gauge.DataPoints) == 0 {
				t.Fatalf("queue.depth gauge has no data points")
			}
			if gauge.DataPoints[0].Value != 7 {
				t.Errorf("queue.depth = %d, want 7", gauge.DataPoints[0].Value)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("queue.depth instrument not found")
	}
}
