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
)

type downsyncParams struct {
	Settings
	statsParams
	StorageURI        string `flag:"storage-uri" desc:"block store to download from"`
	SourcePath        string `flag:"source-path" desc:"version index file (.lvi) to restore"`
	TargetPath        string `flag:"target-path" desc:"directory to write the version into"`
	RetainPermissions bool   `flag:"retain-permissions" desc:"apply the permissions recorded in the version" default:"true"`
}

func downsyncCommand() *cli.Command {
	var params downsyncParams

	return &cli.Command{
		Name:    "downsync",
		Summary: "Write a version into a directory",
		Description: `Bring --target-path to the state described by the version index at
--source-path. Files that already match are left alone, changed files
are rewritten from the store and files the version does not list are
removed.`,
		Usage: "longtail downsync --storage-uri STORE --source-path FILE.lvi --target-path DIR [flags]",
		Examples: []cli.Example{
			{
				Description: "Restore a build through a local cache",
				Command:     "longtail downsync --storage-uri /mnt/store --source-path v1.lvi --target-path build --cache-path ~/.cache/longtail",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("downsync", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runDownsync(ctx, &params)
		},
	}
}

func runDownsync(ctx context.Context, params *downsyncParams) (err error) {
	source, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	target, err := localPath("target-path", params.TargetPath)
	if err != nil {
		return err
	}
	env, err := params.open("downsync")
	if err != nil {
		return err
	}
	version, err := index.ReadVersionIndex(env.fs, source)
	if err != nil {
		return err
	}
	store, err := env.downloadChain(params.StorageURI)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing block store: %w", closeErr)
		}
	}()

	content, err := blockstore.GetExistingContentSync(store.top, version.ChunkHashes, 0)
	if err != nil {
		return err
	}
	if err := index.ValidateContent(content, version); err != nil {
		return fmt.Errorf("store %s cannot restore %s: %w", params.StorageURI, source, err)
	}
	if err := env.applyVersion(ctx, store.top, content, target, version, params.RetainPermissions); err != nil {
		return err
	}
	if err := env.writeStats(params.StatsOutput, store); err != nil {
		return err
	}

	env.logger.Info("downsync complete",
		"target", target,
		"assets", version.AssetCount(),
		"size", humanize.IBytes(version.TotalSize()))
	return nil
}
