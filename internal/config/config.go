// Package config provides unified configuration for the reparc tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the reparc tools.
type Config struct {
	// ArchiveDir is the root directory of the archive on disk
	ArchiveDir string `json:"archive_dir" yaml:"archive_dir"`

	// ManifestName is the manifest database filename inside ArchiveDir
	ManifestName string `json:"manifest_name" yaml:"manifest_name"`

	// Backend configuration
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Remote sync configuration
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// Verbose enables debug logging
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// BackendConfig holds array persistence configuration.
type BackendConfig struct {
	// Kind is the backend kind: memory, chunked, dir
	Kind string `json:"kind" yaml:"kind"`

	// DataDir is the directory holding backend files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Codec is the chunk compression codec: none, snappy, zstd, lz4
	Codec string `json:"codec" yaml:"codec"`

	// ChunkElems is the number of elements per storage chunk
	ChunkElems int64 `json:"chunk_elems" yaml:"chunk_elems"`
}

// CacheConfig holds chunk cache configuration.
type CacheConfig struct {
	// MaxBytes bounds the decompressed chunk cache; 0 disables it
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

// RemoteConfig holds object storage configuration for push/pull sync.
type RemoteConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local mirror path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is the object key prefix inside the bucket or mirror
	Prefix string `json:"prefix" yaml:"prefix"`

	// Concurrency bounds parallel object transfers
	Concurrency int `json:"concurrency" yaml:"concurrency"`

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

	// UsePathStyle forces path-style addressing (for MinIO and friends)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		ArchiveDir:   "./data/archive",
		ManifestName: "manifest.db",
		Backend: BackendConfig{
			Kind:       "chunked",
			DataDir:    "",
			Codec:      "snappy",
			ChunkElems: 1 << 16,
		},
		Cache: CacheConfig{
			MaxBytes: 64 * 1024 * 1024,
		},
		Remote: RemoteConfig{
			Type:        "local",
			Path:        "",
			Prefix:      "",
			Concurrency: 5,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on ArchiveDir.
func (c *Config) Resolve() {
	if c.ArchiveDir == "" {
		c.ArchiveDir = "./data/archive"
	}
	if c.ManifestName == "" {
		c.ManifestName = "manifest.db"
	}
	if c.Backend.DataDir == "" {
		c.Backend.DataDir = filepath.Join(c.ArchiveDir, "data")
	}
	if c.Remote.Type == "local" && c.Remote.Path == "" {
		c.Remote.Path = filepath.Join(c.ArchiveDir, "remote")
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ArchiveDir, c.ManifestName)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ArchiveDir == "" {
		return fmt.Errorf("archive_dir is required")
	}

	switch c.Backend.Kind {
	case "memory", "chunked", "dir":
		// Valid kinds
	default:
		return fmt.Errorf("invalid backend kind: %s (must be memory, chunked, or dir)", c.Backend.Kind)
	}

	switch c.Backend.Codec {
	case "none", "snappy", "zstd", "lz4":
		// Valid codecs
	default:
		return fmt.Errorf("invalid codec: %s (must be none, snappy, zstd, or lz4)", c.Backend.Codec)
	}

	if c.Backend.ChunkElems <= 0 {
		return fmt.Errorf("backend.chunk_elems must be positive, got %d", c.Backend.ChunkElems)
	}

	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must not be negative, got %d", c.Cache.MaxBytes)
	}

	if c.Remote.Type != "local" && c.Remote.Type != "s3" {
		return fmt.Errorf("invalid remote type: %s (must be local or s3)", c.Remote.Type)
	}

	if c.Remote.Type == "s3" && c.Remote.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when remote type is s3")
	}

	if c.Remote.Concurrency < 1 {
		return fmt.Errorf("remote.concurrency must be at least 1, got %d", c.Remote.Concurrency)
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

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the REPARC_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("REPARC_ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}
	if v := os.Getenv("REPARC_MANIFEST_NAME"); v != "" {
		cfg.ManifestName = v
	}

	// Backend configuration
	if v := os.Getenv("REPARC_BACKEND_KIND"); v != "" {
		cfg.Backend.Kind = v
	}
	if v := os.Getenv("REPARC_BACKEND_DATA_DIR"); v != "" {
		cfg.Backend.DataDir = v
	}
	if v := os.Getenv("REPARC_BACKEND_CODEC"); v != "" {
		cfg.Backend.Codec = v
	}
	if v := os.Getenv("REPARC_BACKEND_CHUNK_ELEMS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Backend.ChunkElems)
	}

	// Cache configuration
	if v := os.Getenv("REPARC_CACHE_MAX_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cache.MaxBytes)
	}

	// Remote configuration
	if v := os.Getenv("REPARC_REMOTE_TYPE"); v != "" {
		cfg.Remote.Type = v
	}
	if v := os.Getenv("REPARC_REMOTE_PATH"); v != "" {
		cfg.Remote.Path = v
	}
	if v := os.Getenv("REPARC_REMOTE_PREFIX"); v != "" {
		cfg.Remote.Prefix = v
	}
	if v := os.Getenv("REPARC_REMOTE_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Remote.Concurrency)
	}
	if v := os.Getenv("REPARC_S3_BUCKET"); v != "" {
		cfg.Remote.S3.Bucket = v
	}
	if v := os.Getenv("REPARC_S3_REGION"); v != "" {
		cfg.Remote.S3.Region = v
	}
	if v := os.Getenv("REPARC_S3_ENDPOINT"); v != "" {
		cfg.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("REPARC_S3_PATH_STYLE"); v != "" {
		cfg.Remote.S3.UsePathStyle = v == "true" || v == "1"
	}

	if v := os.Getenv("REPARC_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.ArchiveDir,
		c.Backend.DataDir,
	}
	if c.Remote.Type == "local" {
		dirs = append(dirs, c.Remote.Path)
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
