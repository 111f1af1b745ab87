// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHAREMAC_"

// Storage backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendS3     = "s3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Storage   StorageConfig   `yaml:"storage"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig contains the auxiliary server listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig contains per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// StorageConfig selects the shared storage the owner writes and the
// auxiliary server reads.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Retries      uint64 `yaml:"retries"`
}

// CryptoConfig contains the HE and key settings.
type CryptoConfig struct {
	// ParamFile is an enc-param file; empty uses the built-in defaults.
	ParamFile string `yaml:"param_file"`
	// SeedDir holds the owner's key seeds and full HE key set. It is never
	// shared with the auxiliary server.
	SeedDir     string `yaml:"seed_dir"`
	KMSKeyID    string `yaml:"kms_key_id"`
	KMSRegion   string `yaml:"kms_region"`
	KMSEndpoint string `yaml:"kms_endpoint"`
	Batched     bool   `yaml:"batched"`
	Workers     int    `yaml:"workers"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8480,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatText,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: 60,
			Burst:          10,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Retries: 3,
		},
		Crypto: CryptoConfig{
			SeedDir: "keys",
			Batched: true,
		},
		Health: HealthConfig{
			Enabled:      true,
			CheckTimeout: 5 * time.Second,
		},
	}
}

// Load reads the configuration from path, falling back to Default when
// path is empty. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that layer further
// overrides on top.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies SHAREMAC_* variables on top of the file.
func (c *Config) applyEnvOverrides(lookup lookupFunc) error {
	strs := map[string]*string{
		"SERVER_HOST":  &c.Server.Host,
		"LOG_LEVEL":    &c.Logging.Level,
		"LOG_FORMAT":   &c.Logging.Format,
		"METRICS_PATH": &c.Metrics.Path,
		"STORAGE":      &c.Storage.Backend,
		"STORAGE_PATH": &c.Storage.Path,
		"S3_BUCKET":    &c.Storage.Bucket,
		"S3_REGION":    &c.Storage.Region,
		"S3_ENDPOINT":  &c.Storage.Endpoint,
		"PARAM_FILE":   &c.Crypto.ParamFile,
		"SEED_DIR":     &c.Crypto.SeedDir,
		"KMS_KEY_ID":   &c.Crypto.KMSKeyID,
		"KMS_REGION":   &c.Crypto.KMSRegion,
		"KMS_ENDPOINT": &c.Crypto.KMSEndpoint,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":          &c.Server.Port,
		"RATELIMIT_PER_MINUTE": &c.RateLimit.RequestsPerMin,
		"RATELIMIT_BURST":      &c.RateLimit.Burst,
		"WORKERS":              &c.Crypto.Workers,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, name, v)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"METRICS_ENABLED":   &c.Metrics.Enabled,
		"RATELIMIT_ENABLED": &c.RateLimit.Enabled,
		"S3_PATH_STYLE":     &c.Storage.UsePathStyle,
		"BATCHED":           &c.Crypto.Batched,
		"HEALTH_ENABLED":    &c.Health.Enabled,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, name, v)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "STORAGE_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSTORAGE_RETRIES=%q", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Storage.Retries = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: negative shutdown timeout", ErrInvalidConfig)
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("%w: invalid log format: %s", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics path must start with /: %q", ErrInvalidConfig, c.Metrics.Path)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin <= 0 {
			return fmt.Errorf("%w: requests_per_min must be positive", ErrInvalidConfig)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("%w: burst must be positive", ErrInvalidConfig)
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage path is required for the file backend", ErrInvalidConfig)
		}
	case BackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage bucket is required for the s3 backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend: %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Crypto.SeedDir == "" {
		return fmt.Errorf("%w: crypto seed_dir is required", ErrInvalidConfig)
	}
	if c.Crypto.Workers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidConfig)
	}

	if c.Health.Enabled && c.Health.CheckTimeout <= 0 {
		return fmt.Errorf("%w: health check_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
