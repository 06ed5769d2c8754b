// Package config implements runtime configuration loading and validation for
// the ingest service, as specified in section 6 of the design specification.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ingest service. Every field is
// loaded from the unprefixed environment variable named in section 6 of
// the spec (see Load).
type Config struct {
	// Azure (required)
	AzureAccountURL string
	AzureContainer  string

	// Azure (optional fallback auth)
	AzureConnectionString string
	AzureAccountName      string
	AzureAccountKey       string

	// NFS paths
	IncomingDir    string
	ProcessingRoot string

	// Local staging
	StagingRoot string

	// Watcher tuning
	PollInterval   time.Duration
	MinFileAge     time.Duration
	FileExtensions []string

	// Queue and workers
	MaxQueueSize      int
	WorkerConcurrency int

	// Azure upload tuning (AzureMaxBlockSize 0 = SDK default;
	// AzureMaxConcurrency must be at least 1)
	AzureMaxBlockSize     int64
	AzureMaxSinglePutSize int64
	AzureMaxConcurrency   int

	// GC
	GCInterval time.Duration

	// Control API
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the unprefixed environment variables listed
// in section 6 of the spec (AZURE_ACCOUNT_URL, NFS_INCOMING_DIR,
// POLL_INTERVAL_S, ...), applies their defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("nfs_incoming_dir", "/mnt/nfs/incoming")
	v.SetDefault("nfs_processing_root", "/mnt/nfs/.processing")
	v.SetDefault("local_staging_root", "/mnt/staging")
	v.SetDefault("poll_interval_s", 2.0)
	v.SetDefault("min_file_age_s", 5.0)
	v.SetDefault("file_extensions", "")
	v.SetDefault("max_queue_size", 2000)
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("azure_max_block_size", 0)
	v.SetDefault("azure_max_single_put_size", 0)
	v.SetDefault("azure_max_concurrency", 8)
	v.SetDefault("gc_interval_s", 30.0)
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("shutdown_timeout_s", 30.0)

	cfg := &Config{
		AzureAccountURL:       v.GetString("azure_account_url"),
		AzureContainer:        v.GetString("azure_container"),
		AzureConnectionString: v.GetString("azure_connection_string"),
		AzureAccountName:      v.GetString("azure_account_name"),
		AzureAccountKey:       v.GetString("azure_account_key"),
		IncomingDir:           v.GetString("nfs_incoming_dir"),
		ProcessingRoot:        v.GetString("nfs_processing_root"),
		StagingRoot:           v.GetString("local_staging_root"),
		PollInterval:          durationFromSeconds(v.GetFloat64("poll_interval_s")),
		MinFileAge:            durationFromSeconds(v.GetFloat64("min_file_age_s")),
		FileExtensions:        parseExtensions(v.GetString("file_extensions")),
		MaxQueueSize:          v.GetInt("max_queue_size"),
		WorkerConcurrency:     v.GetInt("worker_concurrency"),
		AzureMaxBlockSize:     v.GetInt64("azure_max_block_size"),
		AzureMaxSinglePutSize: v.GetInt64("azure_max_single_put_size"),
		AzureMaxConcurrency:   v.GetInt("azure_max_concurrency"),
		GCInterval:            durationFromSeconds(v.GetFloat64("gc_interval_s")),
		HTTPAddr:              v.GetString("http_addr"),
		ShutdownTimeout:       durationFromSeconds(v.GetFloat64("shutdown_timeout_s")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseExtensions parses a comma-separated extension list such as
// ".bin,.mp4,.dat" into a normalized, lower-cased slice. An empty input
// yields nil, which callers treat as "accept all".
func parseExtensions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}

// Validate ensures all required fields are present and have valid values.
func (c *Config) Validate() error {
	if c.AzureAccountURL == "" {
		return fmt.Errorf("azure account URL is required")
	}
	if c.AzureContainer == "" {
		return fmt.Errorf("azure container is required")
	}
	if c.IncomingDir == "" {
		return fmt.Errorf("incoming directory is required")
	}
	if c.ProcessingRoot == "" {
		return fmt.Errorf("processing root is required")
	}
	if c.StagingRoot == "" {
		return fmt.Errorf("staging root is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MinFileAge < 0 {
		return fmt.Errorf("min file age must not be negative")
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("max queue size must be at least 1")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}
	if c.AzureMaxConcurrency < 1 {
		return fmt.Errorf("azure max concurrency must be at least 1")
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("GC interval must be positive")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP address is required")
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second")
	}
	return nil
}

// HasExtensionFilter reports whether FileExtensions restricts which files the
// watcher will consider.
func (c *Config) HasExtensionFilter() bool {
	return len(c.FileExtensions) > 0
}

// MatchesExtension reports whether filename's extension is in the configured
// allow-list. Matching is case-insensitive. Always true when no filter is
// configured.
func (c *Config) MatchesExtension(filename string) bool {
	if !c.HasExtensionFilter() {
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range c.FileExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
