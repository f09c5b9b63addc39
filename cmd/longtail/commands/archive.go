// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/snapshot"
)

type packParams struct {
	Settings
	statsParams
	SourcePath string `flag:"source-path" desc:"directory to pack"`
	TargetPath string `flag:"target-path" desc:"archive file (.la) to write"`
}

func packCommand() *cli.Command {
	var params packParams

	return &cli.Command{
		Name:    "pack",
		Summary: "Pack a directory into a single archive file",
		Description: `Chunk --source-path and write its version index together with every
block it needs into one self-contained archive at --target-path.`,
		Usage: "longtail pack --source-path DIR --target-path FILE.la [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runPack(ctx, &params)
		},
	}
}

func runPack(ctx context.Context, params *packParams) (err error) {
	source, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	target, err := localPath("target-path", params.TargetPath)
	if err != nil {
		return err
	}
	env, err := params.open("pack")
	if err != nil {
		return err
	}
	chunking, err := env.chunking()
	if err != nil {
		return err
	}

	files, err := snapshot.GetFilesRecursively(ctx, env.fs, source)
	if err != nil {
		return err
	}
	version, err := snapshot.CreateVersionIndex(ctx, env.fs, source, files, chunking, env.snapshotOptions()...)
	if err != nil {
		return err
	}
	content, err := index.CreateContentIndex(chunking.Hasher, version, env.config.Blocks.TargetBlockSize, env.config.Blocks.MaxChunksPerBlock)
	if err != nil {
		return err
	}

	options := blockstore.WithLogger(env.logger)
	archive, err := blockstore.CreateArchive(env.fs, target, &content.StoreIndex, version, options)
	if err != nil {
		return err
	}
	store := &chain{}
	store.add("archive", archive)
	store.add("compress", blockstore.NewCompressStore(archive, options))
	if err := snapshot.WriteContent(ctx, env.fs, source, store.top, content, version, env.snapshotOptions()...); err != nil {
		store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("finishing archive %s: %w", target, err)
	}
	if err := env.writeStats(params.StatsOutput, store); err != nil {
		return err
	}

	env.logger.Info("pack complete",
		"archive", target,
		"assets", version.AssetCount(),
		"size", humanize.IBytes(version.TotalSize()),
		"blocks", content.BlockCount())
	return nil
}

type unpackParams struct {
	Settings
	statsParams
	SourcePath        string `flag:"source-path" desc:"archive file (.la) to unpack"`
	TargetPath        string `flag:"target-path" desc:"directory to write the archived version into"`
	RetainPermissions bool   `flag:"retain-permissions" desc:"apply the permissions recorded in the archive" default:"true"`
	NoMapping         bool   `flag:"no-mapping" desc:"read blocks with positional reads instead of memory-mapping the archive"`
}

func unpackCommand() *cli.Command {
	var params unpackParams

	return &cli.Command{
		Name:    "unpack",
		Summary: "Restore a directory from an archive file",
		Description: `Bring --target-path to the version stored in the archive at
--source-path. Like downsync, only files that differ are written.`,
		Usage: "longtail unpack --source-path FILE.la --target-path DIR [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("unpack", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runUnpack(ctx, &params)
		},
	}
}

func runUnpack(ctx context.Context, params *unpackParams) (err error) {
	source, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	target, err := localPath("target-path", params.TargetPath)
	if err != nil {
		return err
	}
	env, err := params.open("unpack")
	if err != nil {
		return err
	}

	options := []blockstore.Option{blockstore.WithLogger(env.logger)}
	if params.NoMapping {
		options = append(options, blockstore.WithoutMapping())
	}
	archive, err := blockstore.OpenArchive(env.fs, source, options...)
	if err != nil {
		return err
	}
	store := &chain{}
	store.add("archive", archive)
	store.add("compress", blockstore.NewCompressStore(store.top, options...))
	store.add("share", blockstore.NewShareStore(store.top, options...))
	store.add("retain", blockstore.NewRetainStore(store.top, options...))
	defer func() {
		if closeErr := store.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing archive: %w", closeErr)
		}
	}()

	contents := archive.Index()
	if err := env.applyVersion(ctx, store.top, &contents.Store, target, &contents.Version, params.RetainPermissions); err != nil {
		return err
	}
	if offenders := archive.WorstOffenders(8); len(offenders) > 0 {
		env.logger.Debug("blocks read more than once", "blocks", offenders)
	}
	if err := env.writeStats(params.StatsOutput, store); err != nil {
		return err
	}
	env.logger.Info("unpack complete",
		"target", target,
		"assets", contents.Version.AssetCount(),
		"size", humanize.IBytes(contents.Version.TotalSize()))
	return nil
}
