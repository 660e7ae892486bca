// Package config loads and validates the tierfsd service configuration
// from YAML, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Server    ServerConfig    `yaml:"server"`
	Namespace NamespaceConfig `yaml:"namespace"`
	Limits    LimitsConfig    `yaml:"limits"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// NamespaceConfig sets the tenant applied when a request carries none.
type NamespaceConfig struct {
	Default string `yaml:"default"`
}

// LimitsConfig caps resource usage across the engine.
type LimitsConfig struct {
	MaxFileSize      string        `yaml:"max_file_size"`
	MaxPathLength    int           `yaml:"max_path_length"`
	HotMaxSize       string        `yaml:"hot_max_size"`
	RPCChunkSize     string        `yaml:"rpc_chunk_size"`
	StreamChunkSize  string        `yaml:"stream_chunk_size"`
	ReadParallelism  int           `yaml:"read_parallelism"`
	WriteParallelism int           `yaml:"write_parallelism"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// TiersConfig enables storage tiers and, for the S3-backed ones, names the
// bucket and region they live in.
type TiersConfig struct {
	WarmEnabled bool     `yaml:"warm_enabled"`
	ColdEnabled bool     `yaml:"cold_enabled"`
	S3          S3Config `yaml:"s3"`
}

// S3Config configures the object store backend used for warm and cold
// content when enabled.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	KeyPrefix string `yaml:"key_prefix"`
	// Storage classes per tier; defaults are STANDARD_IA and GLACIER.
	WarmStorageClass string `yaml:"warm_storage_class"`
	ColdStorageClass string `yaml:"cold_storage_class"`
}

// StoreConfig selects the metadata and hot blob store driver.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "bolt"
	Path   string `yaml:"path"`   // directory holding meta.db and blobs.db
}

// AuthConfig is the token table and anonymous-read switch.
type AuthConfig struct {
	AllowAnonymousRead bool        `yaml:"allow_anonymous_read"`
	Tokens             []AuthToken `yaml:"tokens"`
}

// AuthToken grants a bearer token a set of scopes.
type AuthToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SandboxConfig bounds the code-execution tool.
type SandboxConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	AllowWrite   bool          `yaml:"allow_write"`
	AllowDelete  bool          `yaml:"allow_delete"`
	AllowedPaths []string      `yaml:"allowed_paths"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Configuration {
	return &Configuration{
		Server: ServerConfig{
			Address:      "localhost:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Namespace: NamespaceConfig{Default: "default"},
		Limits: LimitsConfig{
			MaxFileSize:      "100MB",
			MaxPathLength:    4096,
			HotMaxSize:       "1MB",
			RPCChunkSize:     "64KB",
			StreamChunkSize:  "16KB",
			ReadParallelism:  10,
			WriteParallelism: 5,
			SessionTTL:       5 * time.Minute,
		},
		Tiers: TiersConfig{
			WarmEnabled: true,
			ColdEnabled: true,
			S3: S3Config{
				Region:           "us-west-2",
				WarmStorageClass: "STANDARD_IA",
				ColdStorageClass: "GLACIER",
			},
		},
		Store: StoreConfig{Driver: "memory"},
		Auth:  AuthConfig{AllowAnonymousRead: true},
		Sandbox: SandboxConfig{
			Timeout:     30 * time.Second,
			AllowWrite:  false,
			AllowDelete: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads a YAML configuration file, merges it over the defaults, applies
// environment overrides, and validates the result.
func Load(path string) (*Configuration, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironmentOverrides lets TIERFS_* variables override file values.
func (c *Configuration) applyEnvironmentOverrides() {
	if v := os.Getenv("TIERFS_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("TIERFS_NAMESPACE"); v != "" {
		c.Namespace.Default = v
	}
	if v := os.Getenv("TIERFS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TIERFS_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("TIERFS_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("TIERFS_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TIERFS_S3_BUCKET"); v != "" {
		c.Tiers.S3.Bucket = v
	}
	if v := os.Getenv("TIERFS_S3_REGION"); v != "" {
		c.Tiers.S3.Region = v
	}
	if v := os.Getenv("TIERFS_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Configuration) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address cannot be empty")
	}
	if c.Namespace.Default == "" {
		return fmt.Errorf("namespace.default cannot be empty")
	}
	if strings.ContainsRune(c.Namespace.Default, 0) {
		return fmt.Errorf("namespace.default contains NUL")
	}
	if c.Limits.MaxPathLength <= 0 {
		return fmt.Errorf("limits.max_path_length must be positive")
	}
	if c.Limits.ReadParallelism <= 0 || c.Limits.WriteParallelism <= 0 {
		return fmt.Errorf("limits parallelism values must be positive")
	}
	if c.Limits.SessionTTL <= 0 {
		return fmt.Errorf("limits.session_ttl must be positive")
	}
	for _, name := range []struct {
		field string
		value string
	}{
		{"limits.max_file_size", c.Limits.MaxFileSize},
		{"limits.hot_max_size", c.Limits.HotMaxSize},
		{"limits.rpc_chunk_size", c.Limits.RPCChunkSize},
		{"limits.stream_chunk_size", c.Limits.StreamChunkSize},
	} {
		if _, err := ParseSize(name.value); err != nil {
			return fmt.Errorf("%s: %w", name.field, err)
		}
	}
	switch c.Store.Driver {
	case "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the bolt driver")
		}
	default:
		return fmt.Errorf("store.driver must be \"memory\" or \"bolt\", got %q", c.Store.Driver)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive")
	}
	return nil
}

// MaxFileSizeBytes returns the parsed byte limit for a single file.
func (c *Configuration) MaxFileSizeBytes() int64 { return mustSize(c.Limits.MaxFileSize) }

// HotMaxSizeBytes returns the hot tier placement threshold.
func (c *Configuration) HotMaxSizeBytes() int64 { return mustSize(c.Limits.HotMaxSize) }

// RPCChunkSizeBytes returns the chunk size for RPC stream sessions.
func (c *Configuration) RPCChunkSizeBytes() int64 { return mustSize(c.Limits.RPCChunkSize) }

// StreamChunkSizeBytes returns the chunk size for local read streams.
func (c *Configuration) StreamChunkSizeBytes() int64 { return mustSize(c.Limits.StreamChunkSize) }

func mustSize(s string) int64 {
	n, err := ParseSize(s)
	if err != nil {
		return 0
	}
	return n
}

// ParseSize converts human-readable sizes ("512", "64KB", "1.5GB") to bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("size cannot be empty")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "TB"):
		mult = 1 << 40
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "GB"):
		mult = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if val < 0 {
		return 0, fmt.Errorf("size cannot be negative")
	}
	return int64(val * float64(mult)), nil
}
