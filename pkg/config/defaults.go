package config

import (
	"strings"
	"time"

	"github.com/marmos91/stowd/internal/bytesize"
	"github.com/marmos91/stowd/pkg/api"
	"github.com/marmos91/stowd/pkg/journal"
	"github.com/marmos91/stowd/pkg/store/backends"
)

// DefaultPort is the file server port when none is configured.
const DefaultPort = 9000

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyJournalDefaults(&cfg.Journal)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyServerDefaults sets event loop defaults. Idle timeout, connection
// limit and upload limit stay disabled unless configured.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 64 * bytesize.KiB
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 64 * bytesize.KiB
	}
	if cfg.ByteOrder == "" {
		cfg.ByteOrder = "little"
	}
	cfg.ByteOrder = strings.ToLower(cfg.ByteOrder)
}

// applyStorageDefaults picks the fs backend. An empty fs path means an
// ephemeral directory removed on exit.
func applyStorageDefaults(cfg *backends.Config) {
	if cfg.Type == "" {
		cfg.Type = backends.TypeFS
	}
	if cfg.Type == backends.TypeS3 && cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

func applyJournalDefaults(cfg *journal.Config) {
	cfg.ApplyDefaults()
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAPIDefaults sets admin API defaults. The API is on by default.
func applyAPIDefaults(cfg *api.APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = api.DefaultPort
	}
	cfg.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	enabled := true
	cfg := &Config{
		API: api.APIConfig{Enabled: &enabled},
	}
	ApplyDefaults(cfg)
	return cfg
}
