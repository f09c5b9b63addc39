// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/hashing"
)

// EnvironmentVariable names the variable [Load] reads the config
// file path from.
const EnvironmentVariable = "LONGTAIL_CONFIG"

// Config is the complete set of tunables.
type Config struct {
	// Chunking controls how files are split into chunks.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Blocks controls how chunks are packed into blocks.
	Blocks BlocksConfig `yaml:"blocks"`

	// Workers sizes the worker pools.
	Workers WorkersConfig `yaml:"workers"`

	// Cache configures the local block cache.
	Cache CacheConfig `yaml:"cache"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// ChunkingConfig controls how files are split into chunks.
type ChunkingConfig struct {
	// TargetChunkSize is the average chunk size in bytes. Chunks
	// range from an eighth of it to twice it.
	// Default: 24576
	TargetChunkSize uint32 `yaml:"target_chunk_size"`

	// HashAlgorithm is one of blake3, blake2, meow.
	// Default: blake3
	HashAlgorithm string `yaml:"hash_algorithm"`

	// CompressionAlgorithm names the block codec, e.g. zstd,
	// brotli_max, lz4 or none.
	// Default: zstd
	CompressionAlgorithm string `yaml:"compression_algorithm"`

	// ChunkerPoolSize is the number of idle chunkers kept for reuse.
	// Default: 232
	ChunkerPoolSize int `yaml:"chunker_pool_size"`
}

// BlocksConfig controls how chunks are packed into blocks.
type BlocksConfig struct {
	// TargetBlockSize is the largest block payload in bytes.
	// Default: 524288
	TargetBlockSize uint32 `yaml:"target_block_size"`

	// MaxChunksPerBlock caps the chunk count of a block.
	// Default: 2048
	MaxChunksPerBlock uint32 `yaml:"max_chunks_per_block"`

	// MinBlockUsagePercent is how much of an existing block must be
	// needed before an upload reuses it.
	// Default: 0 (reuse any block holding a needed chunk)
	MinBlockUsagePercent uint32 `yaml:"min_block_usage_percent"`
}

// WorkersConfig sizes the worker pools. Zero means one per CPU.
type WorkersConfig struct {
	// Jobs is the number of concurrent hashing, packing and writing
	// jobs.
	Jobs int `yaml:"jobs"`

	// StoreThreads is the number of goroutines serving block store
	// requests during downloads.
	StoreThreads int `yaml:"store_threads"`

	// StoreQueueCapacity bounds the block store request queue.
	// Default: 1024
	StoreQueueCapacity int `yaml:"store_queue_capacity"`
}

// CacheConfig configures the local block cache.
type CacheConfig struct {
	// Path is the directory of the local block cache. Empty disables
	// caching.
	Path string `yaml:"path"`

	// LRUCapacity is the number of decoded blocks kept in memory
	// during downloads.
	// Default: 32
	LRUCapacity int `yaml:"lru_capacity"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			TargetChunkSize:      24576,
			HashAlgorithm:        "blake3",
			CompressionAlgorithm: "zstd",
			ChunkerPoolSize:      232,
		},
		Blocks: BlocksConfig{
			TargetBlockSize:   524288,
			MaxChunksPerBlock: 2048,
		},
		Workers: WorkersConfig{
			StoreQueueCapacity: 1024,
		},
		Cache: CacheConfig{
			LRUCapacity: 32,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by LONGTAIL_CONFIG, or returns the
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults. Fields the
// file leaves out keep their default. ${HOME} and ${VAR:-default}
// patterns in the cache path are expanded.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Cache.Path = expandVars(c.Cache.Path, vars)
	if c.Cache.Path != "" {
		c.Cache.Path = filepath.Clean(c.Cache.Path)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.TargetChunkSize < 8*48 {
		errs = append(errs, fmt.Errorf("chunking.target_chunk_size must be at least %d, got %d", 8*48, c.Chunking.TargetChunkSize))
	}
	if _, err := hashing.ByName(c.Chunking.HashAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("chunking.hash_algorithm: %w", err))
	}
	if _, err := compression.Parse(c.Chunking.CompressionAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("chunking.compression_algorithm: %w", err))
	}
	if c.Chunking.ChunkerPoolSize < 0 {
		errs = append(errs, fmt.Errorf("chunking.chunker_pool_size must not be negative"))
	}

	if c.Blocks.TargetBlockSize == 0 {
		errs = append(errs, fmt.Errorf("blocks.target_block_size is required"))
	}
	if c.Blocks.MaxChunksPerBlock == 0 {
		errs = append(errs, fmt.Errorf("blocks.max_chunks_per_block is required"))
	}
	if c.Blocks.MinBlockUsagePercent > 100 {
		errs = append(errs, fmt.Errorf("blocks.min_block_usage_percent must be at most 100, got %d", c.Blocks.MinBlockUsagePercent))
	}

	if c.Workers.Jobs < 0 || c.Workers.StoreThreads < 0 || c.Workers.StoreQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("workers counts must not be negative"))
	}
	if c.Cache.LRUCapacity < 1 {
		errs = append(errs, fmt.Errorf("cache.lru_capacity must be at least 1, got %d", c.Cache.LRUCapacity))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
