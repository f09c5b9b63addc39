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

type validateParams struct {
	Settings
	StorageURI string `flag:"storage-uri" desc:"block store to check"`
	SourcePath string `flag:"source-path" desc:"version index file (.lvi) to check"`
}

func validateCommand() *cli.Command {
	var params validateParams

	return &cli.Command{
		Name:    "validate",
		Summary: "Check that a store can restore a version",
		Description: `Verify that every chunk the version index at --source-path references
is present in the store with the recorded size. No block data is read.`,
		Usage: "longtail validate --storage-uri STORE --source-path FILE.lvi [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			return runValidate(&params)
		},
	}
}

func runValidate(params *validateParams) error {
	source, err := localPath("source-path", params.SourcePath)
	if err != nil {
		return err
	}
	env, err := params.open("validate")
	if err != nil {
		return err
	}
	version, err := index.ReadVersionIndex(env.fs, source)
	if err != nil {
		return err
	}
	root, err := storePath(params.StorageURI)
	if err != nil {
		return err
	}
	store := blockstore.NewFSStore(env.fs, root, env.scheduler, blockstore.WithLogger(env.logger))
	defer store.Close()

	content, err := blockstore.GetExistingContentSync(store, version.ChunkHashes, 0)
	if err != nil {
		return err
	}
	if missing := index.MissingChunks(content, version); len(missing) > 0 {
		env.logger.Error("version is incomplete", "missing_chunks", len(missing), "chunks", len(version.ChunkHashes))
	}
	if err := index.ValidateContent(content, version); err != nil {
		return fmt.Errorf("validating %s against %s: %w", source, params.StorageURI, err)
	}
	env.logger.Info("version is complete", "version", source, "blocks", content.BlockCount(), "chunks", len(version.ChunkHashes))
	return nil
}
