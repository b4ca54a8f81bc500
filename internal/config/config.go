// Package config provides configuration for the trace engine and the
// platform description document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration.
type Config struct {
	// DataDir is the base directory for all local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration for serve mode
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Load configuration for bundle loading
	Load LoadConfig `json:"load" yaml:"load"`

	// Storage configuration for bundle fetching
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Debug enables verbose logging
	Debug bool `json:"debug" yaml:"debug"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP address for the query surface
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// LoadConfig holds bundle loading configuration.
type LoadConfig struct {
	// Concurrency is the number of event tables loaded in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// PoolSize is the maximum number of SQLite connections held open
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// NormalizeTime shifts timestamps so the trace starts at zero
	NormalizeTime bool `json:"normalize_time" yaml:"normalize_time"`

	// Events restricts loading to the named events; empty loads everything
	Events []string `json:"events" yaml:"events"`
}

// StorageConfig holds bundle storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// DownloadDir is the directory remote bundles are cached in
	DownloadDir string `json:"download_dir" yaml:"download_dir"`

	// CacheSizeMB bounds the download cache; least recently used
	// bundles are evicted past it
	CacheSizeMB int `json:"cache_size_mb" yaml:"cache_size_mb"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/lisa",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Load: LoadConfig{
			Concurrency:   8,
			PoolSize:      16,
			NormalizeTime: true,
		},
		Storage: StorageConfig{
			Type:        "local",
			Path:        "",
			DownloadDir: "",
			CacheSizeMB: 4096,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/lisa"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "bundles")
	}

	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = filepath.Join(c.DataDir, "downloads")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Load.Concurrency < 1 {
		return fmt.Errorf("load.concurrency must be at least 1, got %d", c.Load.Concurrency)
	}

	if c.Load.PoolSize < 1 {
		return fmt.Errorf("load.pool_size must be at least 1, got %d", c.Load.PoolSize)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment, for
// LoadFromEnv to pick up afterwards. A missing file is ignored.
func LoadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LISA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LISA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LISA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Load configuration
	if v := os.Getenv("LISA_LOAD_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Load.Concurrency)
	}
	if v := os.Getenv("LISA_LOAD_POOL_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Load.PoolSize)
	}
	if v := os.Getenv("LISA_LOAD_NORMALIZE_TIME"); v != "" {
		cfg.Load.NormalizeTime = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("LISA_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("LISA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LISA_DOWNLOAD_DIR"); v != "" {
		cfg.Storage.DownloadDir = v
	}
	if v := os.Getenv("LISA_CACHE_SIZE_MB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Storage.CacheSizeMB)
	}
	if v := os.Getenv("LISA_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("LISA_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("LISA_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	if v := os.Getenv("LISA_DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
		c.Storage.DownloadDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
