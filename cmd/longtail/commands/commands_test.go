// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/codec"
	"github.com/bureau-foundation/longtail/lib/config"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/jobs"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// longtail runs the command tree with args and returns stdout.
func longtail(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	var stdout bytes.Buffer
	err := newRoot(&stdout).Execute(context.Background(), append(args, "--log-level", "error"))
	return stdout.String(), err
}

func randomBytes(seed uint64, size int) []byte {
	source := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(source.Uint32())
	}
	return data
}

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

// readTree returns every file below root keyed by slash path.
// Directories map to nil.
func readTree(t *testing.T, root string) map[string][]byte {
	t.Helper()
	tree := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(root, path)
		if err != nil || relative == "." {
			return err
		}
		relative = filepath.ToSlash(relative)
		if entry.IsDir() {
			tree[relative+"/"] = nil
			return nil
		}
		data, err := os.ReadFile(path)
		tree[relative] = data
		return err
	})
	require.NoError(t, err)
	return tree
}

func sampleFiles() map[string][]byte {
	return map[string][]byte{
		"bin/tool":           randomBytes(1, 300_000),
		"data/assets.pak":    randomBytes(2, 150_000),
		"data/nested/a.txt":  []byte(strings.Repeat("longtail ", 5000)),
		"data/nested/empty":  {},
		"readme.md":          []byte("hello\n"),
		"copy-of-tool/tool2": randomBytes(1, 300_000),
	}
}

func TestUpsyncDownsyncRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	store := filepath.Join(dir, "store")
	version := filepath.Join(dir, "v1.lvi")
	target := filepath.Join(dir, "target")
	stats := filepath.Join(dir, "stats.cbor")
	writeTree(t, source, sampleFiles())

	_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", source, "--target-path", version)
	require.NoError(t, err)
	assert.FileExists(t, version)
	assert.DirExists(t, filepath.Join(store, "chunks"))

	_, err = longtail(t, "validate", "--storage-uri", store, "--source-path", version)
	require.NoError(t, err)

	_, err = longtail(t, "downsync", "--storage-uri", "file://"+store, "--source-path", version,
		"--target-path", target, "--stats-output", stats)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, source), readTree(t, target))

	var report map[string]map[string]uint64
	require.NoError(t, codec.ReadFile(storage.NewFS(), stats, &report))
	assert.Contains(t, report, "remote")
	assert.Contains(t, report, "share")
	assert.NotZero(t, report["share"]["get_stored_block_count"])
}

func TestDownsyncUpdatesExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	target := filepath.Join(dir, "target")

	files := sampleFiles()
	writeTree(t, first, files)
	delete(files, "readme.md")
	files["data/assets.pak"] = append(randomBytes(2, 150_000)[:70_000], randomBytes(3, 90_000)...)
	files["new/file.bin"] = randomBytes(4, 40_000)
	writeTree(t, second, files)

	for _, step := range []struct{ source, version string }{{first, "v1.lvi"}, {second, "v2.lvi"}} {
		_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", step.source,
			"--target-path", filepath.Join(dir, step.version))
		require.NoError(t, err)
	}

	_, err := longtail(t, "downsync", "--storage-uri", store, "--source-path", filepath.Join(dir, "v1.lvi"), "--target-path", target)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, first), readTree(t, target))

	_, err = longtail(t, "downsync", "--storage-uri", store, "--source-path", filepath.Join(dir, "v2.lvi"), "--target-path", target)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, second), readTree(t, target))
	assert.NoFileExists(t, filepath.Join(target, "readme.md"))

	// A second run over an up-to-date directory changes nothing.
	_, err = longtail(t, "downsync", "--storage-uri", store, "--source-path", filepath.Join(dir, "v2.lvi"), "--target-path", target)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, second), readTree(t, target))
}

func TestDownsyncThroughCache(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	store := filepath.Join(dir, "store")
	cache := filepath.Join(dir, "cache")
	version := filepath.Join(dir, "v1.lvi")
	target := filepath.Join(dir, "target")
	writeTree(t, source, sampleFiles())

	_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", source, "--target-path", version,
		"--compression-algorithm", "lz4", "--hash-algorithm", "blake2")
	require.NoError(t, err)

	_, err = longtail(t, "downsync", "--storage-uri", store, "--source-path", version, "--target-path", target,
		"--cache-path", cache)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, source), readTree(t, target))
	assert.DirExists(t, filepath.Join(cache, "chunks"))
}

// smallLRUConfig writes a configuration file with a two-block LRU.
func smallLRUConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "longtail.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  lru_capacity: 2\n"), 0o644))
	return path
}

func TestDownsyncDuplicatedFilesBeyondLRUCapacity(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	store := filepath.Join(dir, "store")
	version := filepath.Join(dir, "v1.lvi")
	configPath := smallLRUConfig(t, dir)
	payload := randomBytes(30, 400_000)
	writeTree(t, source, map[string][]byte{
		"a/game.pak": payload,
		"b/game.pak": payload,
	})

	_, err := longtail(t, "upsync", "--config", configPath, "--storage-uri", store, "--source-path", source,
		"--target-path", version, "--target-chunk-size", "4096", "--target-block-size", "32768")
	require.NoError(t, err)
	blocks, err := filepath.Glob(filepath.Join(store, "chunks", "*", "*.lrb"))
	require.NoError(t, err)
	require.Greater(t, len(blocks), 2, "the file must span more blocks than the LRU holds")

	for _, jobCount := range []string{"1", "0"} {
		target := filepath.Join(dir, "target-"+jobCount)
		_, err = longtail(t, "downsync", "--config", configPath, "--jobs", jobCount, "--storage-uri", store,
			"--source-path", version, "--target-path", target)
		require.NoError(t, err, "jobs %s", jobCount)
		assert.Equal(t, readTree(t, source), readTree(t, target))
	}
}

func TestDownsyncMoreJobsThanLRUCapacity(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	store := filepath.Join(dir, "store")
	version := filepath.Join(dir, "v1.lvi")
	target := filepath.Join(dir, "target")
	configPath := smallLRUConfig(t, dir)
	files := map[string][]byte{}
	for i := range 24 {
		files[fmt.Sprintf("f%02d.bin", i)] = randomBytes(uint64(100+i), 40_000)
	}
	writeTree(t, source, files)

	_, err := longtail(t, "upsync", "--config", configPath, "--storage-uri", store, "--source-path", source,
		"--target-path", version, "--target-chunk-size", "4096", "--target-block-size", "16384")
	require.NoError(t, err)

	_, err = longtail(t, "downsync", "--config", configPath, "--jobs", "16", "--storage-uri", store,
		"--source-path", version, "--target-path", target)
	require.NoError(t, err)
	assert.Equal(t, readTree(t, source), readTree(t, target))
}

func TestLRUCapacityCoversJobs(t *testing.T) {
	for _, tc := range []struct {
		configured, jobs, want int
	}{
		{configured: 32, jobs: 4, want: 32},
		{configured: 2, jobs: 16, want: 16},
		{configured: 8, jobs: 8, want: 8},
	} {
		cfg := config.Default()
		cfg.Cache.LRUCapacity = tc.configured
		env := &environment{
			config:    cfg,
			logger:    slog.New(slog.DiscardHandler),
			scheduler: jobs.New(tc.jobs),
		}
		assert.Equal(t, tc.want, env.lruCapacity(), "configured %d, jobs %d", tc.configured, tc.jobs)
	}
}

func TestValidateDetectsMissingBlocks(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	store := filepath.Join(dir, "store")
	version := filepath.Join(dir, "v1.lvi")
	writeTree(t, source, sampleFiles())

	_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", source, "--target-path", version)
	require.NoError(t, err)

	blocks, err := filepath.Glob(filepath.Join(store, "chunks", "*", "*.lrb"))
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	require.NoError(t, os.Remove(blocks[0]))
	require.NoError(t, os.Remove(filepath.Join(store, "store.lsi")))

	_, err = longtail(t, "validate", "--storage-uri", store, "--source-path", version)
	assert.ErrorIs(t, err, errno.EINVAL)

	target := filepath.Join(dir, "target")
	_, err = longtail(t, "downsync", "--storage-uri", store, "--source-path", version, "--target-path", target)
	assert.ErrorIs(t, err, errno.EINVAL)
	assert.NoDirExists(t, target, "nothing is written when the store is incomplete")
}

func TestPruneKeepsListedVersions(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	writeTree(t, filepath.Join(dir, "a"), map[string][]byte{"a.bin": randomBytes(10, 100_000)})
	writeTree(t, filepath.Join(dir, "b"), map[string][]byte{"b.bin": randomBytes(11, 100_000)})
	for _, name := range []string{"a", "b"} {
		_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", filepath.Join(dir, name),
			"--target-path", filepath.Join(dir, name+".lvi"))
		require.NoError(t, err)
	}

	_, err := longtail(t, "prune", "--storage-uri", store)
	var usage *cli.UsageError
	require.ErrorAs(t, err, &usage)

	_, err = longtail(t, "prune", "--storage-uri", store, "--source-path", filepath.Join(dir, "b.lvi"))
	require.NoError(t, err)

	_, err = longtail(t, "validate", "--storage-uri", store, "--source-path", filepath.Join(dir, "b.lvi"))
	assert.NoError(t, err)
	_, err = longtail(t, "validate", "--storage-uri", store, "--source-path", filepath.Join(dir, "a.lvi"))
	assert.ErrorIs(t, err, errno.EINVAL)

	_, err = longtail(t, "prune", "--storage-uri", store, "--source-path", filepath.Join(dir, "a.lvi"))
	assert.ErrorIs(t, err, errno.EINVAL, "pruning for an incomplete version is refused")
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	writeTree(t, filepath.Join(dir, "old"), map[string][]byte{
		"kept.txt":    []byte("same"),
		"changed.bin": randomBytes(20, 50_000),
		"removed.txt": []byte("bye"),
	})
	writeTree(t, filepath.Join(dir, "new"), map[string][]byte{
		"kept.txt":    []byte("same"),
		"changed.bin": randomBytes(21, 50_000),
		"added.txt":   []byte("hi"),
	})
	for _, name := range []string{"old", "new"} {
		_, err := longtail(t, "upsync", "--storage-uri", store, "--source-path", filepath.Join(dir, name),
			"--target-path", filepath.Join(dir, name+".lvi"))
		require.NoError(t, err)
	}

	output := filepath.Join(dir, "diff.cbor")
	stdout, err := longtail(t, "diff", "--source-path", filepath.Join(dir, "old.lvi"),
		"--target-path", filepath.Join(dir, "new.lvi"), "--output", output)
	require.NoError(t, err)
	assert.Contains(t, stdout, "- removed.txt\n")
	assert.Contains(t, stdout, "+ added.txt\n")
	assert.Contains(t, stdout, "M changed.bin\n")
	assert.NotContains(t, stdout, "kept.txt")

	var report DiffReport
	require.NoError(t, codec.ReadFile(storage.NewFS(), output, &report))
	assert.Equal(t, []string{"removed.txt"}, report.Removed)
	assert.Equal(t, []string{"added.txt"}, report.Added)
	assert.Equal(t, []string{"changed.bin"}, report.Modified)
	assert.Positive(t, report.RequiredChunks)
	assert.EqualValues(t, 50_000+2, report.RequiredBytes)
}

func TestPackUnpack(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	archive := filepath.Join(dir, "build.la")
	writeTree(t, source, sampleFiles())

	_, err := longtail(t, "pack", "--source-path", source, "--target-path", archive, "--compression-algorithm", "zstd_max")
	require.NoError(t, err)

	for _, variant := range [][]string{nil, {"--no-mapping"}} {
		target := filepath.Join(t.TempDir(), "target")
		args := append([]string{"unpack", "--source-path", archive, "--target-path", target}, variant...)
		_, err = longtail(t, args...)
		require.NoError(t, err)
		assert.Equal(t, readTree(t, source), readTree(t, target))
	}
}

func TestUpsyncRequiresPaths(t *testing.T) {
	_, err := longtail(t, "upsync", "--storage-uri", t.TempDir())
	var usage *cli.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, err.Error(), "--source-path")
}

func TestSettingsResolve(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "longtail.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
chunking:
  target_chunk_size: 65536
  hash_algorithm: blake2
blocks:
  max_chunks_per_block: 1024
`), 0o644))

	var settings Settings
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	settings.AddFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--config", configPath, "--hash-algorithm", "meow", "--target-block-size", "1048576"}))

	cfg, err := settings.Resolve()
	require.NoError(t, err)
	assert.EqualValues(t, 65536, cfg.Chunking.TargetChunkSize, "file value kept when the flag is not set")
	assert.Equal(t, "meow", cfg.Chunking.HashAlgorithm, "explicit flag overrides the file")
	assert.EqualValues(t, 1048576, cfg.Blocks.TargetBlockSize)
	assert.EqualValues(t, 1024, cfg.Blocks.MaxChunksPerBlock)
	assert.Equal(t, "zstd", cfg.Chunking.CompressionAlgorithm)
}

func TestSettingsResolveRejectsInvalidFlags(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	var settings Settings
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	settings.AddFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--compression-algorithm", "zip"}))

	_, err := settings.Resolve()
	var usage *cli.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, err.Error(), "compression_algorithm")
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, newRoot(&stdout).Execute(context.Background(), []string{"version"}))
	assert.Contains(t, stdout.String(), "Go: ")
}

func TestUnknownCommand(t *testing.T) {
	_, err := longtail(t, "upsnyc")
	var usage *cli.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, err.Error(), `did you mean "upsync"?`)
}

func TestStorePath(t *testing.T) {
	path, err := storePath("file:///mnt/store/")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/store", path)

	path, err = storePath("relative/store")
	require.NoError(t, err)
	assert.Equal(t, "relative/store", path)

	_, err = storePath("s3://bucket/prefix")
	assert.ErrorIs(t, err, errno.ENOTSUP)

	_, err = storePath("")
	var usage *cli.UsageError
	assert.ErrorAs(t, err, &usage)
}
