// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/index"
)

type pruneParams struct {
	Settings
	statsParams
	StorageURI string   `flag:"storage-uri" desc:"block store to prune"`
	SourcePath []string `flag:"source-path" desc:"version index files (.lvi) whose blocks are kept"`
}

func pruneCommand() *cli.Command {
	var params pruneParams

	return &cli.Command{
		Name:    "prune",
		Summary: "Delete blocks no listed version needs",
		Description: `Keep the blocks that hold chunks of the versions given with
--source-path and delete every other block from the store. Pruning
is refused when a listed version is not complete in the store.`,
		Usage: "longtail prune --storage-uri STORE --source-path A.lvi[,B.lvi...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Keep only the two most recent builds",
				Command:     "longtail prune --storage-uri /mnt/store --source-path v7.lvi,v8.lvi",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("prune", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runPrune(&params)
		},
	}
}

func runPrune(params *pruneParams) (err error) {
	if len(params.SourcePath) == 0 {
		return cli.Usagef("--source-path is required: pruning without versions would delete every block")
	}
	env, err := params.open("prune")
	if err != nil {
		return err
	}

	var versions []*index.VersionIndex
	var chunks []uint64
	for _, value := range params.SourcePath {
		path, err := localPath("source-path", value)
		if err != nil {
			return err
		}
		version, err := index.ReadVersionIndex(env.fs, path)
		if err != nil {
			return err
		}
		versions = append(versions, version)
		chunks = append(chunks, version.ChunkHashes...)
	}

	root, err := storePath(params.StorageURI)
	if err != nil {
		return err
	}
	store := &chain{}
	store.add("remote", blockstore.NewFSStore(env.fs, root, env.scheduler, blockstore.WithLogger(env.logger)))
	defer func() {
		if closeErr := store.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing block store: %w", closeErr)
		}
	}()

	keep, err := blockstore.GetExistingContentSync(store.top, chunks, 0)
	if err != nil {
		return err
	}
	for i, version := range versions {
		if err := index.ValidateContent(keep, version); err != nil {
			return fmt.Errorf("refusing to prune %s: %s is incomplete: %w", params.StorageURI, params.SourcePath[i], err)
		}
	}
	removed, err := blockstore.PruneBlocksSync(store.top, keep.BlockHashes)
	if err != nil {
		return err
	}
	if err := env.writeStats(params.StatsOutput, store); err != nil {
		return err
	}
	env.logger.Info("prune complete", "kept_blocks", keep.BlockCount(), "removed_blocks", removed)
	return nil
}
