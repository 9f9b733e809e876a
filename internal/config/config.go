// Package config loads server configuration from YAML with sensible
// defaults for everything not set.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/seqflow/internal/galaxy"
	"github.com/me/seqflow/internal/mirror"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackendConfig configures the execution backend connection.
type BackendConfig struct {
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`
}

// GalaxyConfig converts to the backend client's configuration.
func (b BackendConfig) GalaxyConfig() galaxy.Config {
	return galaxy.Config{
		BaseURL:    b.BaseURL,
		Timeout:    b.Timeout.Std(),
		MaxRetries: b.MaxRetries,
		RetryDelay: b.RetryDelay.Std(),
	}
}

// UserCredential is one user's execution-backend credential.
type UserCredential struct {
	APIKey string `yaml:"api_key"`
}

// ServerConfig holds configuration for the SeqFlow server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`       // listen address
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // text, json
	DBPath      string `yaml:"db_path"`    // SQLite database path, ":memory:" for testing
	WorkflowDir string `yaml:"workflow_dir"`
	CacheDir    string `yaml:"cache_dir"` // mirrored-file cache directory

	PollInterval Duration `yaml:"poll_interval"` // driver polling cadence

	Backend BackendConfig    `yaml:"backend"`
	S3      *mirror.S3Config `yaml:"s3"` // optional, enables s3:// locators

	// Credentials maps usernames to their backend credentials.
	Credentials map[string]UserCredential `yaml:"credentials"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	gc := galaxy.DefaultConfig()
	return ServerConfig{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		DBPath:       "seqflow.db",
		WorkflowDir:  "workflows",
		CacheDir:     "cache",
		PollInterval: Duration(5 * time.Second),
		Backend: BackendConfig{
			Timeout:    Duration(gc.Timeout),
			MaxRetries: gc.MaxRetries,
			RetryDelay: Duration(gc.RetryDelay),
		},
	}
}

// Load reads server configuration from a YAML file layered over the
// defaults. An empty path returns the defaults unchanged.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail at first use.
func (c ServerConfig) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.PollInterval.Std() <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
