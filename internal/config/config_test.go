package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PollInterval.Std() != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval.Std())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_level: debug
db_path: /var/lib/seqflow/seqflow.db
poll_interval: 30s
backend:
  base_url: https://galaxy.example.org
  timeout: 2m
  max_retries: 5
  retry_delay: 3s
s3:
  endpoint: minio.example.org:9000
  access_key: seqflow
  secret_key: secret
credentials:
  alice:
    api_key: key-alice
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("addr/level = %q/%q", cfg.Addr, cfg.LogLevel)
	}
	if cfg.PollInterval.Std() != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval.Std())
	}

	gc := cfg.Backend.GalaxyConfig()
	if gc.BaseURL != "https://galaxy.example.org" {
		t.Errorf("BaseURL = %q", gc.BaseURL)
	}
	if gc.Timeout != 2*time.Minute || gc.MaxRetries != 5 || gc.RetryDelay != 3*time.Second {
		t.Errorf("backend config = %+v", gc)
	}

	if cfg.S3 == nil || cfg.S3.Endpoint != "minio.example.org:9000" {
		t.Errorf("s3 config = %+v", cfg.S3)
	}
	if cfg.Credentials["alice"].APIKey != "key-alice" {
		t.Errorf("credentials = %+v", cfg.Credentials)
	}
	// LogFormat untouched by the file keeps its default.
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoad_MissingBackendURL(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing backend.base_url")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://galaxy.example.org
poll_interval: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
