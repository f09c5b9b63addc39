// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the longtail command tree.
package commands

import (
	"io"
	"os"

	"github.com/bureau-foundation/longtail/cmd/longtail/cli"
)

// Root returns the top-level "longtail" command.
func Root() *cli.Command {
	return newRoot(os.Stdout)
}

func newRoot(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "longtail",
		Summary: "Incremental, deduplicated directory snapshots",
		Description: `longtail splits files into content-defined chunks, packs the chunks
into compressed blocks in a block store, and records each snapshot of a
directory as a version index. Uploading a new version only stores
chunks the store lacks; restoring one only rewrites files that differ.`,
		Subcommands: []*cli.Command{
			upsyncCommand(),
			downsyncCommand(),
			validateCommand(),
			pruneCommand(),
			diffCommand(stdout),
			packCommand(),
			unpackCommand(),
			versionCommand(stdout),
		},
		Examples: []cli.Example{
			{
				Description: "Upload a directory",
				Command:     "longtail upsync --storage-uri /mnt/store --source-path build --target-path v1.lvi",
			},
			{
				Description: "Restore it elsewhere",
				Command:     "longtail downsync --storage-uri /mnt/store --source-path v1.lvi --target-path restored",
			},
			{
				Description: "Show what changed between two uploads",
				Command:     "longtail diff --source-path v1.lvi --target-path v2.lvi",
			},
		},
	}
}
