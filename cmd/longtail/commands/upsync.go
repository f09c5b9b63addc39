// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/snapshot"
)

// statsParams adds --stats-output to commands that use a block store.
type statsParams struct {
	StatsOutput string `flag:"stats-output" desc:"write block store counters as CBOR to this file"`
}

type upsyncParams struct {
	Settings
	statsParams
	StorageURI string `flag:"storage-uri" desc:"block store to upload to"`
	SourcePath string `flag:"source-path" desc:"directory to upload"`
	TargetPath string `flag:"target-path" desc:"version index file (.lvi) to write"`
}

func upsyncCommand() *cli.Command {
	var params upsyncParams

	return &cli.Command{
		Name:    "upsync",
		Summary: "Upload a directory as a new version",
		Description: `Chunk and hash every file below --source-path, upload the blocks the
store does not already hold, and write the version index to
--target-path. Unchanged content is never uploaded twice.`,
		Usage: "longtail upsync --storage-uri STORE --source-path DIR --target-path FILE.lvi [flags]",
		Examples: []cli.Example{
			{
				Description: "Upload a build with brotli compression",
				Command:     "longtail upsync --storage-uri /mnt/store --source-path build --target-path v1.lvi --compression-algorithm brotli",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("upsync", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runUpsync(ctx, &params)
		},
	}
}

func runUpsync(ctx context.Context, params *upsyncParams) (err error) {
	source, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	target, err := localPath("target-path", params.TargetPath)
	if err != nil {
		return err
	}
	env, err := params.open("upsync")
	if err != nil {
		return err
	}
	chunking, err := env.chunking()
	if err != nil {
		return err
	}
	store, err := env.uploadChain(params.StorageURI)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing block store: %w", closeErr)
		}
	}()

	files, err := snapshot.GetFilesRecursively(ctx, env.fs, source)
	if err != nil {
		return err
	}
	version, err := snapshot.CreateVersionIndex(ctx, env.fs, source, files, chunking, env.snapshotOptions()...)
	if err != nil {
		return err
	}
	written, err := snapshot.UploadMissing(ctx, env.fs, source, store.top, version, env.packing(), env.snapshotOptions()...)
	if err != nil {
		return err
	}
	if err := index.WriteVersionIndex(env.fs, target, version); err != nil {
		return err
	}
	if err := env.writeStats(params.StatsOutput, store); err != nil {
		return err
	}

	env.logger.Info("upsync complete",
		"version", target,
		"assets", version.AssetCount(),
		"size", humanize.IBytes(version.TotalSize()),
		"new_blocks", written.BlockCount(),
		"new_chunks", written.ChunkCount())
	return nil
}
