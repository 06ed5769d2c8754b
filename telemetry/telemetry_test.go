package telemetry

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerEmitsStructuredJSON(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	log := NewLogger("test")
	os.Stdout = orig

	log.Info().Str("file_name", "x.bin").Msg("upload complete")
	w.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	out := buf.String()
	for _, field := range []string{`"level":"info"`, `"logger":"test"`, `"message":"upload complete"`, `"file_name":"x.bin"`, `"timestamp":`} {
		if !strings.Contains(out, field) {
			t.Errorf("log line %q missing field %q", out, field)
		}
	}
}

func TestSetupWithoutEndpointSucceeds(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	log := zerolog.Nop()
	providers, err := Setup(context.Background(), log)
	if err != nil {
		t.Fatalf("Setup() error = %v, want nil when no OTLP endpoint is configured", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	if providers.Tracer == nil || providers.Meter == nil {
		t.Fatal("Setup() returned nil providers")
	}
}
