// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/chunker"
	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/config"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
	"github.com/bureau-foundation/longtail/lib/jobs"
	"github.com/bureau-foundation/longtail/lib/snapshot"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// Settings binds the tuning flags shared by every command. Flags the
// user sets explicitly override the configuration file; the others
// keep the file's value (or the built-in default).
type Settings struct {
	ConfigPath           string
	TargetChunkSize      uint32
	TargetBlockSize      uint32
	MaxChunksPerBlock    uint32
	MinBlockUsagePercent uint32
	HashAlgorithm        string
	CompressionAlgorithm string
	CachePath            string
	LogLevel             string
	Jobs                 int

	flagSet *pflag.FlagSet
}

// AddFlags implements cli.FlagBinder.
func (s *Settings) AddFlags(flagSet *pflag.FlagSet) {
	s.flagSet = flagSet
	defaults := config.Default()
	flagSet.StringVar(&s.ConfigPath, "config", "", "YAML configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.Uint32Var(&s.TargetChunkSize, "target-chunk-size", defaults.Chunking.TargetChunkSize, "average chunk size in bytes")
	flagSet.Uint32Var(&s.TargetBlockSize, "target-block-size", defaults.Blocks.TargetBlockSize, "largest block payload in bytes")
	flagSet.Uint32Var(&s.MaxChunksPerBlock, "max-chunks-per-block", defaults.Blocks.MaxChunksPerBlock, "largest number of chunks in a block")
	flagSet.Uint32Var(&s.MinBlockUsagePercent, "min-block-usage-percent", defaults.Blocks.MinBlockUsagePercent, "share of an existing block that must be needed to reuse it")
	flagSet.StringVar(&s.HashAlgorithm, "hash-algorithm", defaults.Chunking.HashAlgorithm, "chunk hash: blake3, blake2 or meow")
	flagSet.StringVar(&s.CompressionAlgorithm, "compression-algorithm", defaults.Chunking.CompressionAlgorithm,
		"block codec: "+strings.Join(compression.Names(), ", "))
	flagSet.StringVar(&s.CachePath, "cache-path", defaults.Cache.Path, "local block cache directory (empty disables caching)")
	flagSet.StringVar(&s.LogLevel, "log-level", defaults.Log.Level, "debug, info, warn or error")
	flagSet.IntVar(&s.Jobs, "jobs", defaults.Workers.Jobs, "concurrent jobs (0 means one per CPU)")
}

func (s *Settings) changed(name string) bool {
	return s.flagSet != nil && s.flagSet.Changed(name)
}

// Resolve loads the configuration file and applies explicit flags on
// top. Invalid values are usage errors.
func (s *Settings) Resolve() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if s.ConfigPath != "" {
		cfg, err = config.LoadFile(s.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if s.changed("target-chunk-size") {
		cfg.Chunking.TargetChunkSize = s.TargetChunkSize
	}
	if s.changed("target-block-size") {
		cfg.Blocks.TargetBlockSize = s.TargetBlockSize
	}
	if s.changed("max-chunks-per-block") {
		cfg.Blocks.MaxChunksPerBlock = s.MaxChunksPerBlock
	}
	if s.changed("min-block-usage-percent") {
		cfg.Blocks.MinBlockUsagePercent = s.MinBlockUsagePercent
	}
	if s.changed("hash-algorithm") {
		cfg.Chunking.HashAlgorithm = s.HashAlgorithm
	}
	if s.changed("compression-algorithm") {
		cfg.Chunking.CompressionAlgorithm = s.CompressionAlgorithm
	}
	if s.changed("cache-path") {
		cfg.Cache.Path = s.CachePath
	}
	if s.changed("log-level") {
		cfg.Log.Level = s.LogLevel
	}
	if s.changed("jobs") {
		cfg.Workers.Jobs = s.Jobs
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli.Usagef("%v", err)
	}
	return cfg, nil
}

// environment is what a command run needs beyond its own flags.
type environment struct {
	config    *config.Config
	logger    *slog.Logger
	fs        storage.Storage
	scheduler *jobs.Scheduler
	pool      *chunker.Pool
}

// open resolves the settings and builds the logger, storage and
// worker pools of one command run.
func (s *Settings) open(command string) (*environment, error) {
	cfg, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewCommandLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)
	return &environment{
		config:    cfg,
		logger:    logger,
		fs:        storage.NewFS(),
		scheduler: jobs.New(cfg.Workers.Jobs, jobs.WithLogger(logger)),
		pool:      chunker.NewPool(cfg.Chunking.ChunkerPoolSize),
	}, nil
}

func (e *environment) snapshotOptions(extra ...snapshot.Option) []snapshot.Option {
	return append([]snapshot.Option{
		snapshot.WithLogger(e.logger),
		snapshot.WithScheduler(e.scheduler),
		snapshot.WithChunkerPool(e.pool),
	}, extra...)
}

// chunking returns the configured hasher, chunk size and codec.
func (e *environment) chunking() (snapshot.Chunking, error) {
	hasher, err := hashing.ByName(e.config.Chunking.HashAlgorithm)
	if err != nil {
		return snapshot.Chunking{}, err
	}
	tag, err := compression.Parse(e.config.Chunking.CompressionAlgorithm)
	if err != nil {
		return snapshot.Chunking{}, err
	}
	return snapshot.Chunking{
		Hasher:          hasher,
		TargetChunkSize: e.config.Chunking.TargetChunkSize,
		Compression:     tag,
	}, nil
}

func (e *environment) packing() snapshot.Packing {
	return snapshot.Packing{
		MaxBlockSize:         e.config.Blocks.TargetBlockSize,
		MaxChunksPerBlock:    e.config.Blocks.MaxChunksPerBlock,
		MinBlockUsagePercent: e.config.Blocks.MinBlockUsagePercent,
	}
}

// localPath converts a command-line path to the slash-separated form
// the storage layer takes.
func localPath(flag, value string) (string, error) {
	if value == "" {
		return "", cli.Usagef("--%s is required", flag)
	}
	return filepath.ToSlash(filepath.Clean(value)), nil
}

// storePath resolves --storage-uri. Plain paths and file:// URIs name
// a filesystem block store; other schemes are not supported.
func storePath(uri string) (string, error) {
	if uri == "" {
		return "", cli.Usagef("--storage-uri is required")
	}
	if rest, ok := strings.CutPrefix(uri, "file://"); ok {
		return localPath("storage-uri", rest)
	}
	if scheme, _, ok := strings.Cut(uri, "://"); ok {
		return "", errno.Wrap(errno.ENOTSUP, "storage scheme %q", scheme)
	}
	return localPath("storage-uri", uri)
}
