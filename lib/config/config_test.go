// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "longtail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.EqualValues(t, 24576, cfg.Chunking.TargetChunkSize)
	assert.EqualValues(t, 524288, cfg.Blocks.TargetBlockSize)
	assert.EqualValues(t, 2048, cfg.Blocks.MaxChunksPerBlock)
	assert.Equal(t, "blake3", cfg.Chunking.HashAlgorithm)
	assert.Equal(t, "zstd", cfg.Chunking.CompressionAlgorithm)
	assert.Equal(t, 232, cfg.Chunking.ChunkerPoolSize)
	assert.Equal(t, 32, cfg.Cache.LRUCapacity)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_WithoutVariableUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_WithVariable(t *testing.T) {
	path := writeConfig(t, `
chunking:
  target_chunk_size: 65536
  compression_algorithm: brotli_max
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 65536, cfg.Chunking.TargetChunkSize)
	assert.Equal(t, "brotli_max", cfg.Chunking.CompressionAlgorithm)
	assert.Equal(t, "blake3", cfg.Chunking.HashAlgorithm, "unset fields keep defaults")
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := writeConfig(t, `
chunking:
  hash_algorithm: blake2
  chunker_pool_size: 16
blocks:
  target_block_size: 1048576
  max_chunks_per_block: 512
  min_block_usage_percent: 80
workers:
  jobs: 6
  store_threads: 3
cache:
  path: ${HOME}/.cache/longtail
  lru_capacity: 64
log:
  level: debug
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "blake2", cfg.Chunking.HashAlgorithm)
	assert.Equal(t, 16, cfg.Chunking.ChunkerPoolSize)
	assert.EqualValues(t, 1048576, cfg.Blocks.TargetBlockSize)
	assert.EqualValues(t, 512, cfg.Blocks.MaxChunksPerBlock)
	assert.EqualValues(t, 80, cfg.Blocks.MinBlockUsagePercent)
	assert.Equal(t, 6, cfg.Workers.Jobs)
	assert.Equal(t, 3, cfg.Workers.StoreThreads)
	assert.Equal(t, 1024, cfg.Workers.StoreQueueCapacity)
	assert.Equal(t, "/home/tester/.cache/longtail", cfg.Cache.Path)
	assert.Equal(t, 64, cfg.Cache.LRUCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile_Malformed(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "chunking: [not, a, map"))
	assert.Error(t, err)
}

func TestExpandVars(t *testing.T) {
	t.Setenv("LONGTAIL_TEST_SET", "value")
	vars := map[string]string{"HOME": "/home/x"}

	assert.Equal(t, "/home/x/cache", expandVars("${HOME}/cache", vars))
	assert.Equal(t, "value/a", expandVars("${LONGTAIL_TEST_SET}/a", vars))
	assert.Equal(t, "fallback/a", expandVars("${LONGTAIL_TEST_UNSET:-fallback}/a", vars))
	assert.Equal(t, "/a", expandVars("${LONGTAIL_TEST_UNSET}/a", vars))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Chunking.TargetChunkSize = 100
	cfg.Chunking.HashAlgorithm = "md5"
	cfg.Chunking.CompressionAlgorithm = "zip"
	cfg.Blocks.MinBlockUsagePercent = 101
	cfg.Cache.LRUCapacity = 0
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{
		"target_chunk_size",
		"hash_algorithm",
		"compression_algorithm",
		"min_block_usage_percent",
		"lru_capacity",
		"log.level",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoadFile_RejectsInvalidValues(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "blocks:\n  max_chunks_per_block: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_chunks_per_block")
}
