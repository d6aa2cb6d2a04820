// Package config handles loading and parsing of filedepot configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for filedepot. All values are
// resolved once at process start; there is no runtime reconfiguration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Chunks   ChunksConfig   `yaml:"chunks"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text or json.
	Format string `yaml:"format"`
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	// Backend is the active storage backend: "local" or "s3".
	// The selection is fixed for the process lifetime.
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	S3      S3Config    `yaml:"s3"`
}

// LocalConfig holds local filesystem backend settings.
type LocalConfig struct {
	// RootDir is the base directory for stored objects.
	RootDir string `yaml:"root_dir"`
	// PublicPrefix is the URL path prefix under which RootDir is served
	// (e.g. "/static/uploads").
	PublicPrefix string `yaml:"public_prefix"`
}

// S3Config holds remote S3-compatible backend settings.
type S3Config struct {
	// Endpoint is the S3-compatible service URL (e.g. a MinIO endpoint).
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// AccessKey and SecretKey are static credentials. When empty, the
	// standard AWS credential chain is used.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Bucket is the target bucket, created on demand if absent.
	Bucket string `yaml:"bucket"`
	// PublicDomain, when set, overrides the endpoint in returned URLs
	// (CDN or custom domain).
	PublicDomain string `yaml:"public_domain"`
	// UsePathStyle forces path-style addressing, required by most
	// self-hosted S3 implementations.
	UsePathStyle bool `yaml:"use_path_style"`
	// RequestTimeoutSeconds bounds each remote write call at the adapter
	// boundary. Zero disables the explicit timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// ChunksConfig holds chunked-upload session settings.
type ChunksConfig struct {
	// Dir is the scratch directory for in-flight upload sessions.
	Dir string `yaml:"dir"`
	// SessionTTLMinutes is how long an abandoned session survives before
	// the reaper removes it.
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
	// SweepIntervalMinutes is how often the reaper scans for expired sessions.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// MetadataConfig holds upload-record store settings.
type MetadataConfig struct {
	// SQLitePath is the filesystem path for the SQLite database file.
	SQLitePath string `yaml:"sqlite_path"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config with defaults applied. A missing file is not an error: the
// defaults alone form a runnable local-mode configuration.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8300,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "local",
			Local: LocalConfig{
				RootDir:      "./data/uploads",
				PublicPrefix: "/static/uploads",
			},
			S3: S3Config{
				Region:                "us-east-1",
				UsePathStyle:          true,
				RequestTimeoutSeconds: 60,
			},
		},
		Chunks: ChunksConfig{
			Dir:                  "./data/uploads/.chunks",
			SessionTTLMinutes:    24 * 60,
			SweepIntervalMinutes: 60,
		},
		Metadata: MetadataConfig{
			SQLitePath: "./data/filedepot.db",
		},
	}
}

// applyDefaults fills in fields left at their zero value after YAML
// unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8300
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Local.RootDir == "" {
		cfg.Storage.Local.RootDir = "./data/uploads"
	}
	if cfg.Storage.Local.PublicPrefix == "" {
		cfg.Storage.Local.PublicPrefix = "/static/uploads"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Storage.S3.RequestTimeoutSeconds == 0 {
		cfg.Storage.S3.RequestTimeoutSeconds = 60
	}
	if cfg.Chunks.Dir == "" {
		cfg.Chunks.Dir = "./data/uploads/.chunks"
	}
	if cfg.Chunks.SessionTTLMinutes == 0 {
		cfg.Chunks.SessionTTLMinutes = 24 * 60
	}
	if cfg.Chunks.SweepIntervalMinutes == 0 {
		cfg.Chunks.SweepIntervalMinutes = 60
	}
	if cfg.Metadata.SQLitePath == "" {
		cfg.Metadata.SQLitePath = "./data/filedepot.db"
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		// Always valid: defaults cover every field.
	case "s3":
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.s3.endpoint is required when backend is \"s3\"")
		}
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when backend is \"s3\"")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want \"local\" or \"s3\")", c.Storage.Backend)
	}
	return nil
}
