package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := InitConfig("", false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if path != filepath.Join(dir, "stowd", "config.yaml") {
		t.Errorf("Unexpected config path %q", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	for _, section := range []string{"# stowd configuration file", "logging:", "server:", "storage:", "journal:", "api:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Generated config missing %q", section)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config is not loadable: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("custom: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := InitConfig(path, false)
	if !errors.Is(err, ErrConfigExists) {
		t.Fatalf("Expected ErrConfigExists, got %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "custom: true\n" {
		t.Error("Existing config was overwritten without force")
	}

	if _, err := InitConfig(path, true); err != nil {
		t.Fatalf("InitConfig with force failed: %v", err)
	}
	content, _ = os.ReadFile(path)
	if !strings.Contains(string(content), "server:") {
		t.Error("Expected config overwritten with force")
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	if schema.Title != "stowd Configuration" {
		t.Errorf("Unexpected title %q", schema.Title)
	}
	for _, key := range []string{"logging", "server", "storage", "journal", "metrics", "api", "shutdown_timeout"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("Schema missing property %q", key)
		}
	}
}
