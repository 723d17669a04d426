package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "INVALID" }, wantErr: "oneof"},
		{name: "invalid log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "oneof"},
		{name: "privileged port", mutate: func(c *Config) { c.Server.Port = 1023 }, wantErr: "min"},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "max"},
		{name: "lowest allowed port", mutate: func(c *Config) { c.Server.Port = 1024 }},
		{name: "bad bind address", mutate: func(c *Config) { c.Server.BindAddress = "localhost" }, wantErr: "ip"},
		{name: "ipv6 bind address", mutate: func(c *Config) { c.Server.BindAddress = "::1" }},
		{name: "unknown byte order", mutate: func(c *Config) { c.Server.ByteOrder = "middle" }, wantErr: "oneof"},
		{name: "zero chunk size", mutate: func(c *Config) { c.Server.ChunkSize = 0 }, wantErr: "gt"},
		{name: "negative connection limit", mutate: func(c *Config) { c.Server.MaxConnections = -1 }, wantErr: "gte"},
		{name: "unknown storage type", mutate: func(c *Config) { c.Storage.Type = "tape" }, wantErr: "oneof"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Type = "s3" }, wantErr: "bucket"},
		{name: "s3 with bucket", mutate: func(c *Config) {
			c.Storage.Type = "s3"
			c.Storage.S3.Bucket = "files"
		}},
		{name: "sample rate above one", mutate: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: "lte"},
		{name: "unknown profile type", mutate: func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heat"} }, wantErr: "profiletype"},
		{name: "negative api port", mutate: func(c *Config) { c.API.Port = -1 }, wantErr: "min"},
		{name: "metrics and api share a port", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.API.Port
		}, wantErr: "must differ"},
		{name: "postgres journal without host", mutate: func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.Type = "postgres"
		}, wantErr: "postgres host"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
