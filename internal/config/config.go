// Package config loads AeroDB's on-disk configuration (spec.md §6). The
// file is HuJSON (JSON plus comments and trailing commas), parsed with
// github.com/tailscale/hujson the way calvinalkan-agent-task loads its
// own config file, then standardized to plain JSON for decoding.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// FsyncMode is the WAL durability mode. Only "fsync" is accepted in this
// core (spec.md §6): any other value is rejected at load.
type FsyncMode string

const FsyncAlways FsyncMode = "fsync"

// Config is the recognized configuration surface from spec.md §6.
type Config struct {
	DataDir         string    `json:"data_dir"`
	MaxWALSizeBytes uint64    `json:"max_wal_size_bytes"`
	MaxMemoryBytes  uint64    `json:"max_memory_bytes"`
	WALSyncMode     FsyncMode `json:"wal_sync_mode"`

	// LogLevel and CacheEntries are ambient additions (SPEC_FULL.md §3):
	// they configure the logger and the store's read-through LRU cache,
	// never durable-format or planning behavior.
	LogLevel     string `json:"log_level"`
	CacheEntries int    `json:"cache_entries"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DataDir:         "./data",
		MaxWALSizeBytes: 64 * 1024 * 1024,
		MaxMemoryBytes:  256 * 1024 * 1024,
		WALSyncMode:     FsyncAlways,
		LogLevel:        "info",
		CacheEntries:    4096,
	}
}

// Load reads and validates a HuJSON config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fixed constraints from spec.md §6.
func (c *Config) Validate() error {
	if c.WALSyncMode != FsyncAlways {
		return fmt.Errorf("wal_sync_mode must be %q, got %q", FsyncAlways, c.WALSyncMode)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}
